// Package textnorm folds OCR text into a diacritic-free, lower-case form so
// that "Universität Düsseldorf" and "universitat dusseldorf" compare equal.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9 ]`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Fold lower-cases s, decomposes it (NFKD), drops combining marks and
// replaces ß with "ss". Punctuation and spacing are kept.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	return strings.ReplaceAll(folded, "ß", "ss")
}

// Normalize folds s and collapses every run of characters outside
// [a-z0-9] into a single space, trimming the result.
func Normalize(s string) string {
	s = Fold(s)
	if s == "" {
		return ""
	}
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
