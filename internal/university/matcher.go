// Package university finds whitelisted institutions named on the first page
// of applicant documents.
package university

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/ectsflow/internal/ocr"
	"github.com/Lllllllleong/ectsflow/internal/textnorm"
)

// Keywords mark a line as naming an institution.
var Keywords = []string{
	"hochschule",
	"fachhochschule",
	"universität",
	"university",
	"college",
	"academy",
	"akademie",
	"institut",
	"institute",
	"polytechnic",
	"school of",
}

const minCandidateLen = 5

// RecognizeFunc returns the first-page text of a document.
type RecognizeFunc func(ctx context.Context, path string) (string, error)

// Match is the outcome of a whitelist scan.
type Match struct {
	Found bool `json:"found"`
	// Name is the whitelist entry as configured.
	Name string `json:"name,omitempty"`
	// Normalized is the matching candidate line in normalised form.
	Normalized string `json:"normalized,omitempty"`
	// Path is the document the match was found in.
	Path string `json:"path,omitempty"`
}

// Normalize is the comparison form shared by candidate lines and whitelist
// entries.
func Normalize(s string) string {
	return textnorm.Normalize(s)
}

// Candidates returns the normalised form of every line that contains an
// institution keyword, skipping forms shorter than five characters.
func Candidates(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		low := strings.ToLower(line)
		if !containsKeyword(low) {
			continue
		}
		if cleaned := Normalize(line); len(cleaned) >= minCandidateLen {
			out = append(out, cleaned)
		}
	}
	return out
}

func containsKeyword(low string) bool {
	for _, k := range Keywords {
		if strings.Contains(low, k) {
			return true
		}
	}
	return false
}

// FindWhitelisted scans paths in order and returns the first candidate that
// equals a whitelist entry after normalisation. Only the first page of each
// document is read, and scanning stops at the first match.
//
// Recognition errors skip the document, except ocr.ErrCapabilityUnavailable
// which is returned.
func FindWhitelisted(ctx context.Context, paths, whitelist []string, recognize RecognizeFunc) (Match, error) {
	entries := make(map[string]string, len(whitelist))
	for _, w := range whitelist {
		if n := Normalize(w); n != "" {
			if _, dup := entries[n]; !dup {
				entries[n] = w
			}
		}
	}
	if len(entries) == 0 {
		return Match{}, nil
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}
		logCtx := slog.With("file", filepath.Base(path))

		text, err := recognize(ctx, path)
		if err != nil {
			if errors.Is(err, ocr.ErrCapabilityUnavailable) {
				return Match{}, err
			}
			logCtx.Warn("Skipping document in whitelist scan.", "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		for _, cand := range Candidates(text) {
			if name, ok := entries[cand]; ok {
				logCtx.Info("Whitelisted university found.", "university", name)
				return Match{Found: true, Name: name, Normalized: cand, Path: path}, nil
			}
		}
	}
	return Match{}, nil
}
