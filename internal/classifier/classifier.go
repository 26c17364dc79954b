// Package classifier decides which kind of admission document a recognized
// text belongs to by running five keyword scorers over it.
package classifier

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/ectsflow/internal/ocr"
	"github.com/Lllllllleong/ectsflow/internal/textnorm"
)

// Category is a document archetype label.
type Category string

const (
	ModuleOverview      Category = "module_overview"
	Transcript          Category = "transcript"
	LanguageCertificate Category = "language_certificate"
	DegreeCertificate   Category = "degree_certificate"
	VPD                 Category = "vpd"
	Other               Category = "other"
)

// Categories lists the scored categories in tie-break order.
var Categories = []Category{ModuleOverview, Transcript, LanguageCertificate, DegreeCertificate, VPD}

// MinScore is the floor below which a document is labelled Other.
const MinScore = 3

// Result is a label plus the raw score of every category.
type Result struct {
	Label  Category         `json:"label" firestore:"label"`
	Scores map[Category]int `json:"scores" firestore:"scores"`
}

// Previewer returns the recognized text of a document's first page.
type Previewer interface {
	Preview(ctx context.Context, path string) (string, error)
}

// Classifier scores texts and documents.
type Classifier struct {
	germanPrograms map[string]bool
	previewer      Previewer
}

// New returns a Classifier. Programs listed in germanPrograms are scored
// against German language certificates; all others against English ones.
// previewer may be nil when only Classify is used.
func New(previewer Previewer, germanPrograms []string) *Classifier {
	gp := make(map[string]bool, len(germanPrograms))
	for _, p := range germanPrograms {
		gp[strings.ToLower(strings.TrimSpace(p))] = true
	}
	return &Classifier{germanPrograms: gp, previewer: previewer}
}

// Classify labels text. Empty or whitespace-only text is Other with no
// scores. The label is the first category in Categories with the highest
// score, or Other when that score is below MinScore.
func (c *Classifier) Classify(text, program string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Label: Other, Scores: map[Category]int{}}
	}

	lower := strings.ToLower(text)
	input := Text{
		Lower:       lower,
		Folded:      textnorm.Fold(lower),
		GermanTrack: c.germanPrograms[strings.ToLower(program)],
	}

	scores := make(map[Category]int, len(scorers))
	best, bestScore := Other, -1
	for _, s := range scorers {
		score := s.Score(input)
		scores[s.Category()] = score
		if score > bestScore {
			best, bestScore = s.Category(), score
		}
	}

	if bestScore < MinScore {
		return Result{Label: Other, Scores: scores}
	}
	return Result{Label: best, Scores: scores}
}

// ClassifyDocument classifies the first page of the document at path. Only
// ocr.ErrCapabilityUnavailable is returned; other recognition failures
// classify as Other.
func (c *Classifier) ClassifyDocument(ctx context.Context, path, program string) (Result, error) {
	slog.Info("Classifying document.", "file", filepath.Base(path), "program", program)

	text, err := c.previewer.Preview(ctx, path)
	if err != nil {
		if errors.Is(err, ocr.ErrCapabilityUnavailable) {
			return Result{}, err
		}
		slog.Error("Preview recognition failed.", "file", filepath.Base(path), "error", err)
		text = ""
	}
	return c.Classify(text, program), nil
}

// Batch groups classified documents.
type Batch struct {
	ByType map[Category][]string
	// BestTranscript is the transcript with the highest transcript score, or
	// "" when none was found.
	BestTranscript       string
	BestTranscriptScores map[Category]int
}

// ClassifyMany classifies every path and picks the strongest transcript.
func (c *Classifier) ClassifyMany(ctx context.Context, paths []string, program string) (Batch, error) {
	batch := Batch{ByType: make(map[Category][]string, len(Categories)+1)}
	for _, cat := range append(append([]Category(nil), Categories...), Other) {
		batch.ByType[cat] = []string{}
	}

	bestScore := -1
	for _, p := range paths {
		res, err := c.ClassifyDocument(ctx, p, program)
		if err != nil {
			return Batch{}, err
		}
		batch.ByType[res.Label] = append(batch.ByType[res.Label], p)

		if res.Label == Transcript {
			if sc := res.Scores[Transcript]; sc > bestScore {
				bestScore = sc
				batch.BestTranscript = p
				batch.BestTranscriptScores = res.Scores
			}
		}
	}
	return batch, nil
}
