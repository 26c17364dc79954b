package classifier

import "strings"

// Text is the input shared by every scorer.
type Text struct {
	// Lower is the recognized text, lower-cased.
	Lower string
	// Folded is Lower with diacritics removed.
	Folded string
	// GermanTrack selects German rather than English certificate keywords.
	GermanTrack bool
}

// Scorer rates how strongly a text looks like one document category.
type Scorer interface {
	Category() Category
	Score(Text) int
}

// scorers is iterated in declaration order; on equal scores the earlier
// category wins.
var scorers = []Scorer{
	moduleOverviewScorer{},
	transcriptScorer{},
	languageCertificateScorer{},
	degreeCertificateScorer{},
	vpdScorer{},
}

type moduleOverviewScorer struct{}

func (moduleOverviewScorer) Category() Category { return ModuleOverview }

func (moduleOverviewScorer) Score(t Text) int {
	score := 0
	if moduleOverviewKeywords.any(t.Lower) {
		score += 6
	}
	if creditUnitWords.occurrences(t.Lower) >= 4 {
		score += 3
	}
	if gradeWords.occurrences(t.Lower) <= 2 {
		score++
	}
	return score
}

type transcriptScorer struct{}

func (transcriptScorer) Category() Category { return Transcript }

func (transcriptScorer) Score(t Text) int {
	score := 0
	if transcriptKeywords.any(t.Lower) || transcriptKeywordsFolded.any(t.Folded) {
		score += 5
	}
	if ectsKeywords.any(t.Lower) {
		score += 3
	}
	if semesterRe.MatchString(t.Lower) {
		score += 2
	}
	if countDigitLines(t.Lower) >= 15 {
		score += 2
	}
	return score
}

func countDigitLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if digitRe.MatchString(line) {
			n++
		}
	}
	return n
}

type languageCertificateScorer struct{}

func (languageCertificateScorer) Category() Category { return LanguageCertificate }

func (languageCertificateScorer) Score(t Text) int {
	keywords := englishCertKeywords
	if t.GermanTrack {
		keywords = germanCertKeywords
	}
	if keywords.any(t.Lower) {
		return 5
	}
	return 0
}

type degreeCertificateScorer struct{}

func (degreeCertificateScorer) Category() Category { return DegreeCertificate }

func (degreeCertificateScorer) Score(t Text) int {
	score := 0
	if degreeKeywords.any(t.Lower) || degreeKeywordsFolded.any(t.Folded) {
		score += 4
	}
	if gradeWords.occurrences(t.Lower) >= 1 {
		score++
	}
	if !transcriptIndicators.any(t.Lower) {
		score++
	}
	return score
}

type vpdScorer struct{}

func (vpdScorer) Category() Category { return VPD }

func (vpdScorer) Score(t Text) int {
	score := 0
	if vpdKeywords.any(t.Lower) {
		score += 7
	}
	if vpdPhrases.all(t.Lower) {
		score += 3
	}
	return score
}
