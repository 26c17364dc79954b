package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lllllllleong/ectsflow/internal/textcache"
)

// fakeRenderer returns one image per page whose bytes name the page.
type fakeRenderer struct {
	pages     int
	err       error
	calls     atomic.Int32
	lastPages []int
	mu        sync.Mutex
}

func (r *fakeRenderer) Available() error { return nil }

func (r *fakeRenderer) PageCount(string) (int, error) { return r.pages, nil }

func (r *fakeRenderer) Render(_ context.Context, _ string, _ int, lastPage int) ([][]byte, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.lastPages = append(r.lastPages, lastPage)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	n := r.pages
	if lastPage > 0 && lastPage < n {
		n = lastPage
	}
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte(fmt.Sprintf("page-%d", i+1))
	}
	return out, nil
}

// fakeEngine echoes the image bytes as text. Pages listed in slow block until
// their context ends; pages listed in fail return an error.
type fakeEngine struct {
	unavailable error
	slow        map[string]bool
	fail        map[string]bool
	delay       map[string]time.Duration
	calls       atomic.Int32
	active      atomic.Int32
}

func (e *fakeEngine) Available() error { return e.unavailable }

func (e *fakeEngine) Recognize(ctx context.Context, image []byte, _ Params) (string, error) {
	e.calls.Add(1)
	e.active.Add(1)
	defer e.active.Add(-1)
	name := string(image)
	if e.slow[name] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if d := e.delay[name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if e.fail[name] {
		return "", errors.New("engine crashed")
	}
	return "text of " + name, nil
}

func (e *fakeEngine) RecognizeHOCR(ctx context.Context, image []byte, p Params) (string, error) {
	text, err := e.Recognize(ctx, image, p)
	return "<p>" + text + "</p>", err
}

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	return path
}

func newTestPipeline(r Renderer, e Engine, cache textcache.Cache) *Pipeline {
	opts := DefaultOptions()
	opts.PageTimeout = 200 * time.Millisecond
	p := NewPipeline(r, e, cache, nil, opts)
	p.numCPU = 4
	return p
}

func TestRecognizeJoinsPagesInOrder(t *testing.T) {
	r := &fakeRenderer{pages: 4}
	e := &fakeEngine{delay: map[string]time.Duration{"page-1": 30 * time.Millisecond}}
	p := newTestPipeline(r, e, textcache.NewMemory())

	text, err := p.Recognize(context.Background(), writeDoc(t, "pdf"), 200, 0)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	want := "text of page-1\ntext of page-2\ntext of page-3\ntext of page-4"
	if text != want {
		t.Fatalf("unexpected text:\n%s", text)
	}
}

func TestRecognizeCacheHitSkipsCollaborators(t *testing.T) {
	r := &fakeRenderer{pages: 2}
	e := &fakeEngine{}
	p := newTestPipeline(r, e, textcache.NewMemory())
	path := writeDoc(t, "pdf")

	first, err := p.Recognize(context.Background(), path, 200, 0)
	if err != nil {
		t.Fatalf("first Recognize() error = %v", err)
	}
	second, err := p.Recognize(context.Background(), path, 200, 0)
	if err != nil {
		t.Fatalf("second Recognize() error = %v", err)
	}
	if first != second {
		t.Fatalf("cached text differs: %q vs %q", first, second)
	}
	if got := r.calls.Load(); got != 1 {
		t.Fatalf("renderer called %d times, want 1", got)
	}
	if got := e.calls.Load(); got != 2 {
		t.Fatalf("engine called %d times, want 2", got)
	}
}

func TestPreviewAndFullUseSeparateEntries(t *testing.T) {
	r := &fakeRenderer{pages: 3}
	cache := textcache.NewMemory()
	p := newTestPipeline(r, &fakeEngine{}, cache)
	path := writeDoc(t, "pdf")

	preview, err := p.Preview(context.Background(), path)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	full, err := p.Full(context.Background(), path)
	if err != nil {
		t.Fatalf("Full() error = %v", err)
	}
	if preview != "text of page-1" {
		t.Fatalf("unexpected preview %q", preview)
	}
	if len(full) < len(preview) || !strings.HasPrefix(full, preview) {
		t.Fatalf("full text %q should extend preview %q", full, preview)
	}
	if cache.Len() != 2 {
		t.Fatalf("expected 2 cache entries, got %d", cache.Len())
	}
	if r.lastPages[0] != 1 || r.lastPages[1] != 0 {
		t.Fatalf("unexpected render limits %v", r.lastPages)
	}
}

func TestFailedPagesDegradeToEmpty(t *testing.T) {
	r := &fakeRenderer{pages: 3}
	e := &fakeEngine{
		slow: map[string]bool{"page-2": true},
		fail: map[string]bool{"page-3": true},
	}
	p := newTestPipeline(r, e, textcache.NewMemory())

	text, err := p.Recognize(context.Background(), writeDoc(t, "pdf"), 200, 0)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "text of page-1\n\n" {
		t.Fatalf("unexpected degraded text %q", text)
	}
}

func TestRenderFailureReturnsEmptyText(t *testing.T) {
	r := &fakeRenderer{err: fmt.Errorf("%w: corrupt xref", ErrRenderFailed)}
	cache := textcache.NewMemory()
	p := newTestPipeline(r, &fakeEngine{}, cache)

	text, err := p.Recognize(context.Background(), writeDoc(t, "not a pdf"), 200, 0)
	if err != nil {
		t.Fatalf("render failure must not raise, got %v", err)
	}
	if text != "" {
		t.Fatalf("expected empty text, got %q", text)
	}
	if cache.Len() != 0 {
		t.Fatalf("render failures must not be cached")
	}
}

func TestCapabilityUnavailableIsEager(t *testing.T) {
	r := &fakeRenderer{pages: 1}
	e := &fakeEngine{unavailable: errors.New("libtesseract missing")}
	p := newTestPipeline(r, e, textcache.NewMemory())

	_, err := p.Recognize(context.Background(), writeDoc(t, "pdf"), 200, 0)
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Fatalf("expected ErrCapabilityUnavailable, got %v", err)
	}
	if r.calls.Load() != 0 {
		t.Fatalf("renderer must not run when a capability is missing")
	}
}

func TestRecognizeWithinTimesOut(t *testing.T) {
	r := &fakeRenderer{pages: 1}
	e := &fakeEngine{delay: map[string]time.Duration{"page-1": 150 * time.Millisecond}}
	p := newTestPipeline(r, e, textcache.NewMemory())

	text, err := p.RecognizeWithin(context.Background(), writeDoc(t, "pdf"), 200, 0, 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if text != "" {
		t.Fatalf("timeout must not return partial text, got %q", text)
	}
}

func TestRecognizeWithinStopsRecognition(t *testing.T) {
	r := &fakeRenderer{pages: 4}
	delays := map[string]time.Duration{}
	for i := 1; i <= 4; i++ {
		delays[fmt.Sprintf("page-%d", i)] = 150 * time.Millisecond
	}
	e := &fakeEngine{delay: delays}
	cache := textcache.NewMemory()
	p := newTestPipeline(r, e, cache)
	path := writeDoc(t, "pdf")

	if _, err := p.RecognizeWithin(context.Background(), path, 200, 0, 20*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}

	deadline := time.Now().Add(100 * time.Millisecond)
	for e.active.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := e.active.Load(); n != 0 {
		t.Fatalf("%d pages still recognizing after the timeout", n)
	}
	time.Sleep(20 * time.Millisecond)
	if cache.Len() != 0 {
		t.Fatalf("abandoned recognition was cached")
	}

	// A later caller starts a fresh recognition instead of joining the
	// abandoned one.
	text, err := p.Recognize(context.Background(), path, 200, 0)
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "text of page-1\ntext of page-2\ntext of page-3\ntext of page-4" {
		t.Fatalf("unexpected text %q", text)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 cache entry, got %d", cache.Len())
	}
}

func TestConcurrentCallsShareOneRecognition(t *testing.T) {
	r := &fakeRenderer{pages: 2}
	e := &fakeEngine{delay: map[string]time.Duration{"page-1": 50 * time.Millisecond}}
	p := newTestPipeline(r, e, textcache.NewMemory())
	path := writeDoc(t, "pdf")

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = p.Recognize(context.Background(), path, 200, 0)
		}(i)
	}
	wg.Wait()
	for _, got := range results {
		if got != results[0] || got == "" {
			t.Fatalf("callers disagree: %q", results)
		}
	}
	if r.calls.Load() != 1 {
		t.Fatalf("expected a single render, got %d", r.calls.Load())
	}
}

func TestWorkersBounds(t *testing.T) {
	p := &Pipeline{numCPU: 10, opts: Options{WorkerFraction: 0.8}}
	if got := p.workers(3); got != 3 {
		t.Fatalf("workers(3) = %d", got)
	}
	if got := p.workers(40); got != 8 {
		t.Fatalf("workers(40) = %d", got)
	}
	p.numCPU = 1
	if got := p.workers(5); got != 1 {
		t.Fatalf("workers on a single core = %d", got)
	}
}

func TestRecognizeHOCRKeepsPageOrder(t *testing.T) {
	r := &fakeRenderer{pages: 3}
	e := &fakeEngine{delay: map[string]time.Duration{"page-1": 20 * time.Millisecond}}
	p := newTestPipeline(r, e, textcache.NewMemory())

	pages, err := p.RecognizeHOCR(context.Background(), writeDoc(t, "pdf"))
	if err != nil {
		t.Fatalf("RecognizeHOCR() error = %v", err)
	}
	if len(pages) != 3 || pages[2] != "<p>text of page-3</p>" {
		t.Fatalf("unexpected hOCR pages %q", pages)
	}
}
