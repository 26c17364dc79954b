package ects

import (
	"regexp"
	"strings"
)

var (
	gradeKeywords = []string{
		"gesamtnote", "abschlussnote", "abschlusspruefung", "abschlussprüfung",
		"average mark", "overall grade", "overall result", "overall mark",
		"final grade", "final result", "gesamturteil", "gesamtbewertung",
		"gesamtprädikat", "gesamtpraedikat", "gesamtleistung",
	}
	gradeValueRe = regexp.MustCompile(`\b([0-6][.,]\d{1,2})\b`)
)

// FinalGrade returns the first grade-shaped number on the first line that
// names an overall grade.
func FinalGrade(text string) (float64, bool) {
	for _, line := range strings.Split(text, "\n") {
		low := strings.ToLower(line)
		if !containsAny(low, gradeKeywords) {
			continue
		}
		m := gradeValueRe.FindStringSubmatch(low)
		if m == nil {
			continue
		}
		grade, err := ParseCredit(m[1])
		if err != nil {
			continue
		}
		return grade, true
	}
	return 0, false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
