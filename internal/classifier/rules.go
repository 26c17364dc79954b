package classifier

import (
	"regexp"
	"strings"

	"github.com/Lllllllleong/ectsflow/internal/textnorm"
)

// keywordSet is a list of lower-case phrases matched by substring.
type keywordSet []string

func (ks keywordSet) any(text string) bool {
	for _, kw := range ks {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (ks keywordSet) all(text string) bool {
	for _, kw := range ks {
		if !strings.Contains(text, kw) {
			return false
		}
	}
	return true
}

// occurrences sums the non-overlapping occurrences of every phrase.
func (ks keywordSet) occurrences(text string) int {
	n := 0
	for _, kw := range ks {
		n += strings.Count(text, kw)
	}
	return n
}

// folded returns the set with diacritics removed, for matching against
// OCR output that lost its umlauts.
func (ks keywordSet) folded() keywordSet {
	out := make(keywordSet, len(ks))
	for i, kw := range ks {
		out[i] = textnorm.Fold(kw)
	}
	return out
}

var (
	transcriptKeywords = keywordSet{
		"transcript of records", "transcript of academic record", "grade report",
		"leistungsübersicht", "notenübersicht", "notenspiegel", "leistungsnachweis",
		"academic transcript", "student transcript", "official transcript",
		"study record", "course history", "marksheet", "mark sheet",
		"statement of marks", "statement of results",
	}
	transcriptKeywordsFolded = transcriptKeywords.folded()

	ectsKeywords = keywordSet{"ects", "leistungspunkte", "credits", "credit points", "cp "}

	germanCertKeywords = keywordSet{
		"dsh-2", "dsh-3", "testdaf", "goethe-zertifikat", "deutsches sprachdiplom",
		"telc deutsch", "ösd", "sprachprüfung",
	}

	englishCertKeywords = keywordSet{
		"toefl", "ielts", "cambridge english", "linguaskill",
		"first certificate", "language test report form",
	}

	moduleOverviewKeywords = keywordSet{
		"module overview", "modulübersicht", "moduluebersicht",
		"module catalogue", "course catalogue", "study plan", "modulkatalog",
		"curriculum",
	}

	creditUnitWords = keywordSet{"ects", "lp"}

	gradeWords = keywordSet{"note", "grade", "bewertung", "ergebnis", "result"}

	degreeKeywords = keywordSet{
		"bachelorzeugnis", "zeugnis", "urkunde", "bachelor of science",
		"bachelor of arts", "bachelor of engineering", "degree certificate",
		"diploma", "this is to certify that", "has been awarded the degree",
	}
	degreeKeywordsFolded = degreeKeywords.folded()

	transcriptIndicators = keywordSet{"transcript", "ects", "credits"}

	vpdKeywords = keywordSet{"vorprüfungsdokumentation", "vorpruefungsdokumentation", "uni-assist", "vpd"}
	vpdPhrases  = keywordSet{"bewertung", "ausländischer hochschulabschluss"}

	semesterRe = regexp.MustCompile(`(wise|sose|wintersemester|sommersemester|ws ?20|ss ?20)`)
	digitRe    = regexp.MustCompile(`\d`)
)
