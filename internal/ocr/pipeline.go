// Package ocr turns document files into recognized text: it fingerprints
// files, renders pages, recognizes them in parallel and serves repeated
// requests from a text cache.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/ectsflow/internal/textcache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Options fixes the recognition settings of a Pipeline.
type Options struct {
	DPI            int
	PSM            int
	Languages      []string
	PageTimeout    time.Duration
	WorkerFraction float64
}

// DefaultOptions mirrors the production defaults: German and English,
// single-block layout, 200 DPI, one minute per page, 80% of the cores.
func DefaultOptions() Options {
	return Options{
		DPI:            200,
		PSM:            6,
		Languages:      []string{"deu", "eng"},
		PageTimeout:    60 * time.Second,
		WorkerFraction: 0.8,
	}
}

// Pipeline recognizes documents page by page.
type Pipeline struct {
	renderer     Renderer
	engine       Engine
	cache        textcache.Cache
	fingerprints *Fingerprinter
	opts         Options
	numCPU       int
	flights      singleflight.Group

	mu       sync.Mutex
	inflight map[string]*flight
	gen      uint64
}

// flight is one shared recognition. Its context is cancelled once the last
// waiting caller has left.
type flight struct {
	name    string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewPipeline wires a renderer, an engine and a cache. A nil fingerprinter
// gets a private one.
func NewPipeline(renderer Renderer, engine Engine, cache textcache.Cache, fingerprints *Fingerprinter, opts Options) *Pipeline {
	if fingerprints == nil {
		fingerprints = NewFingerprinter()
	}
	return &Pipeline{
		renderer:     renderer,
		engine:       engine,
		cache:        cache,
		fingerprints: fingerprints,
		opts:         opts,
		numCPU:       runtime.NumCPU(),
		inflight:     make(map[string]*flight),
	}
}

// Options returns the pipeline settings.
func (p *Pipeline) Options() Options { return p.opts }

// Available reports ErrCapabilityUnavailable when the renderer or engine
// cannot run.
func (p *Pipeline) Available() error {
	if err := p.engine.Available(); err != nil {
		return capabilityError(err)
	}
	if err := p.renderer.Available(); err != nil {
		return capabilityError(err)
	}
	return nil
}

func capabilityError(err error) error {
	if errors.Is(err, ErrCapabilityUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrCapabilityUnavailable, err)
}

// Preview recognizes only the first page at the configured resolution.
func (p *Pipeline) Preview(ctx context.Context, path string) (string, error) {
	return p.Recognize(ctx, path, p.opts.DPI, 1)
}

// Full recognizes every page at the configured resolution.
func (p *Pipeline) Full(ctx context.Context, path string) (string, error) {
	return p.Recognize(ctx, path, p.opts.DPI, 0)
}

// Recognize returns the text of the first pageLimit pages of path (all pages
// when pageLimit <= 0), joined by newlines in page order.
//
// Only ErrCapabilityUnavailable, fingerprinting failures and ctx errors are
// returned. Rendering failures yield empty text; failed pages contribute
// empty strings.
func (p *Pipeline) Recognize(ctx context.Context, path string, dpi, pageLimit int) (string, error) {
	if err := p.Available(); err != nil {
		return "", err
	}
	if pageLimit < 0 {
		pageLimit = 0
	}

	fingerprint, err := p.fingerprints.Fingerprint(path)
	if err != nil {
		return "", err
	}
	key := textcache.Key{Fingerprint: fingerprint, DPI: dpi, PSM: p.opts.PSM, PageLimit: pageLimit}

	if text, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		return text, nil
	}

	f := p.join(ctx, key.String())
	defer p.leave(key.String(), f)

	ch := p.flights.DoChan(f.name, func() (interface{}, error) {
		return p.recognizeUncached(f.ctx, path, key)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// join attaches the caller to the running flight for key, starting a new one
// when none is running. Flights detach from the caller's deadline; they end
// when every caller has left.
func (p *Pipeline) join(ctx context.Context, key string) *flight {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.inflight[key]
	if !ok {
		p.gen++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{name: fmt.Sprintf("%s#%d", key, p.gen), ctx: fctx, cancel: cancel}
		p.inflight[key] = f
	}
	f.waiters++
	return f
}

func (p *Pipeline) leave(key string, f *flight) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if p.inflight[key] == f {
		delete(p.inflight, key)
	}
}

// RecognizeWithin is Recognize bounded by a whole-call budget. On overrun it
// returns ErrTimeout and no partial text.
func (p *Pipeline) RecognizeWithin(ctx context.Context, path string, dpi, pageLimit int, budget time.Duration) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()
	text, err := p.Recognize(callCtx, path, dpi, pageLimit)
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s: %s", ErrTimeout, budget, filepath.Base(path))
	}
	return text, err
}

func (p *Pipeline) recognizeUncached(ctx context.Context, path string, key textcache.Key) (string, error) {
	if text, ok, err := p.cache.Get(ctx, key); err == nil && ok {
		return text, nil
	}

	logCtx := slog.With("file", filepath.Base(path), "dpi", key.DPI, "pages", key.PageLimit)
	logCtx.Info("Start OCR.")

	pages, err := p.renderer.Render(ctx, path, key.DPI, key.PageLimit)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logCtx.Error("Page rendering failed.", "error", err)
		return "", nil
	}

	texts := make([]string, len(pages))
	if len(pages) > 0 {
		var eg errgroup.Group
		eg.SetLimit(p.workers(len(pages)))
		params := Params{Languages: p.opts.Languages, PSM: key.PSM, DPI: key.DPI}
		for i, img := range pages {
			eg.Go(func() error {
				texts[i] = p.recognizePage(ctx, logCtx, i, img, params)
				return nil
			})
		}
		_ = eg.Wait()
	}
	// Abandoned flights are not cached: their pages may be cut short.
	if err := ctx.Err(); err != nil {
		logCtx.Warn("OCR abandoned.", "error", err)
		return "", err
	}

	fullText := strings.Join(texts, "\n")
	if err := p.cache.Put(ctx, key, fullText); err != nil {
		logCtx.Warn("Failed to cache recognized text.", "error", err)
	}
	logCtx.Info("OCR complete.", "pageCount", len(pages), "chars", len(fullText))
	return fullText, nil
}

func (p *Pipeline) recognizePage(ctx context.Context, logCtx *slog.Logger, index int, img []byte, params Params) string {
	if ctx.Err() != nil {
		return ""
	}
	pageCtx, cancel := context.WithTimeout(ctx, p.opts.PageTimeout)
	defer cancel()

	text, err := p.engine.Recognize(pageCtx, img, params)
	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		if errors.Is(err, context.DeadlineExceeded) {
			logCtx.Warn("OCR page timeout.", "page", index+1, "timeout", p.opts.PageTimeout.String())
		} else {
			logCtx.Error("OCR page error.", "page", index+1, "error", err)
		}
		return ""
	}
	return text
}

// PageCount returns the number of pages the renderer sees in path.
func (p *Pipeline) PageCount(path string) (int, error) {
	return p.renderer.PageCount(path)
}

// RecognizeHOCR renders every page and returns its hOCR markup in page order.
// hOCR output is not cached. Pages that fail or time out yield "".
func (p *Pipeline) RecognizeHOCR(ctx context.Context, path string) ([]string, error) {
	if err := p.Available(); err != nil {
		return nil, err
	}
	logCtx := slog.With("file", filepath.Base(path), "dpi", p.opts.DPI, "mode", "hocr")

	pages, err := p.renderer.Render(ctx, path, p.opts.DPI, 0)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(pages))
	if len(pages) == 0 {
		return out, nil
	}

	var eg errgroup.Group
	eg.SetLimit(p.workers(len(pages)))
	params := Params{Languages: p.opts.Languages, PSM: p.opts.PSM, DPI: p.opts.DPI}
	for i, img := range pages {
		eg.Go(func() error {
			pageCtx, cancel := context.WithTimeout(ctx, p.opts.PageTimeout)
			defer cancel()
			markup, err := p.engine.RecognizeHOCR(pageCtx, img, params)
			if err != nil {
				logCtx.Warn("hOCR page failed.", "page", i+1, "error", err)
				return nil
			}
			out[i] = markup
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// workers sizes the per-call pool: a fraction of the cores, at least one,
// never more than the page count.
func (p *Pipeline) workers(pages int) int {
	n := int(float64(p.numCPU) * p.opts.WorkerFraction)
	if n < 1 {
		n = 1
	}
	if n > pages {
		n = pages
	}
	return n
}
