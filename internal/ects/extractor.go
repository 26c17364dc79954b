// Package ects sums ECTS credits per category from a document, either by
// scanning module-overview text line by line or through a layout-aware
// extractor for transcripts.
package ects

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/ectsflow/internal/ocr"
)

// DocTypeModuleOverview selects the line-scanning strategy in Extract.
const DocTypeModuleOverview = "module_overview"

// DefaultTimeout bounds one Extract call.
const DefaultTimeout = 60 * time.Second

var ErrTimeout = errors.New("extraction timed out")

// TextSource provides the full recognized text of a document.
type TextSource interface {
	Full(ctx context.Context, path string) (string, error)
}

// LayoutExtractor extracts credits from documents whose credits are laid out
// in tables rather than one module per line.
type LayoutExtractor interface {
	ExtractLayout(ctx context.Context, path string, modules ModuleMap, categories []string) (Result, error)
}

// Extractor dispatches a document to the strategy matching its type.
type Extractor struct {
	text    TextSource
	layout  LayoutExtractor
	timeout time.Duration
}

// NewExtractor returns an Extractor. A non-positive timeout selects
// DefaultTimeout. layout may be nil, in which case non-overview documents
// fail with FAILED_ERROR.
func NewExtractor(text TextSource, layout LayoutExtractor, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{text: text, layout: layout, timeout: timeout}
}

// Extract sums the credits of path per category.
//
// Failures are reported through the FAILED_* method tags with zero sums.
// The only returned error is ocr.ErrCapabilityUnavailable, which callers
// treat as a configuration problem.
func (e *Extractor) Extract(ctx context.Context, path string, modules ModuleMap, categories []string, docType string) (Result, error) {
	logCtx := slog.With("file", filepath.Base(path), "docType", docType)

	if _, err := os.Stat(path); err != nil {
		logCtx.Warn("Document not found for ECTS extraction.", "error", err)
		return Failed(categories, MethodFailedNoFile), nil
	}

	var strategy func(context.Context) (Result, error)
	if docType == DocTypeModuleOverview {
		strategy = func(ctx context.Context) (Result, error) {
			text, err := e.text.Full(ctx, path)
			if err != nil {
				return Result{}, err
			}
			if strings.TrimSpace(text) == "" {
				return Failed(categories, MethodModuleOverviewEmpty), nil
			}
			return ScanOverview(text, modules, categories), nil
		}
	} else {
		if e.layout == nil {
			logCtx.Error("No layout extractor configured.")
			return Failed(categories, MethodFailedError), nil
		}
		strategy = func(ctx context.Context) (Result, error) {
			return e.layout.ExtractLayout(ctx, path, modules, categories)
		}
	}

	start := time.Now()
	res, err := e.bounded(ctx, strategy)
	switch {
	case err == nil:
	case errors.Is(err, ocr.ErrCapabilityUnavailable):
		return Result{}, err
	case errors.Is(err, ErrTimeout), errors.Is(err, ocr.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		logCtx.Warn("ECTS extraction timed out.", "timeout", e.timeout)
		return Failed(categories, MethodFailedTimeout), nil
	default:
		logCtx.Error("ECTS extraction failed.", "error", err)
		return Failed(categories, MethodFailedError), nil
	}

	res = res.withCategories(categories)
	logCtx.Info("ECTS extraction finished.",
		"method", res.Method,
		"total", res.Total(),
		"matched", len(res.Matched),
		"unrecognized", len(res.Unrecognized),
		"elapsed", time.Since(start))
	return res, nil
}

// bounded runs fn under the extraction timeout. A panic in fn is turned into
// an error; a strategy that ignores its context is abandoned at the deadline.
func (e *Extractor) bounded(ctx context.Context, fn func(context.Context) (Result, error)) (Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("extraction panicked: %v", r)}
			}
		}()
		res, err := fn(callCtx)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-callCtx.Done():
		return Result{}, ErrTimeout
	case o := <-done:
		return o.res, o.err
	}
}
