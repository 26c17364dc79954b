package textcache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestKeyStringSeparatesPreviewFromFull(t *testing.T) {
	full := Key{Fingerprint: "abc", DPI: 200, PSM: 6}
	preview := Key{Fingerprint: "abc", DPI: 200, PSM: 6, PageLimit: 1}
	if full.String() == preview.String() {
		t.Fatalf("preview and full keys collide: %s", full.String())
	}
	if got, want := full.String(), "abc/dpi-200_psm-6_pages-all"; got != want {
		t.Fatalf("unexpected key string: got %q want %q", got, want)
	}
}

func TestMemoryWriteOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	key := Key{Fingerprint: "f", DPI: 200, PSM: 6}

	if _, ok, _ := m.Get(ctx, key); ok {
		t.Fatalf("expected miss on empty cache")
	}
	_ = m.Put(ctx, key, "first")
	_ = m.Put(ctx, key, "second")

	text, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if text != "first" {
		t.Fatalf("expected first writer to win, got %q", text)
	}
	if s := m.Stats(); s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}

func TestMemoryConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key{Fingerprint: "doc", DPI: 200, PSM: 6, PageLimit: i % 2}
			_ = m.Put(ctx, key, "text")
			_, _, _ = m.Get(ctx, key)
		}(i)
	}
	wg.Wait()
	if m.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", m.Len())
	}
}

type stubCache struct {
	entries map[Key]string
	getErr  error
	puts    int
}

func (s *stubCache) Get(_ context.Context, key Key) (string, bool, error) {
	if s.getErr != nil {
		return "", false, s.getErr
	}
	text, ok := s.entries[key]
	return text, ok, nil
}

func (s *stubCache) Put(_ context.Context, key Key, text string) error {
	s.puts++
	s.entries[key] = text
	return nil
}

func TestTieredPromotesBackingHits(t *testing.T) {
	ctx := context.Background()
	key := Key{Fingerprint: "f", DPI: 300, PSM: 6}
	backing := &stubCache{entries: map[Key]string{key: "persisted"}}
	mem := NewMemory()
	tiered := NewTiered(mem, backing)

	text, ok, err := tiered.Get(ctx, key)
	if err != nil || !ok || text != "persisted" {
		t.Fatalf("unexpected lookup: %q ok=%v err=%v", text, ok, err)
	}
	if mem.Len() != 1 {
		t.Fatalf("expected backing hit to be promoted into memory")
	}

	other := Key{Fingerprint: "g", DPI: 300, PSM: 6}
	_ = tiered.Put(ctx, other, "fresh")
	if backing.puts != 1 {
		t.Fatalf("expected put to reach backing tier, got %d", backing.puts)
	}
}

func TestTieredDegradesOnBackingError(t *testing.T) {
	ctx := context.Background()
	backing := &stubCache{entries: map[Key]string{}, getErr: errors.New("unavailable")}
	tiered := NewTiered(NewMemory(), backing)

	_, ok, err := tiered.Get(ctx, Key{Fingerprint: "x"})
	if err != nil {
		t.Fatalf("backing errors must not surface, got %v", err)
	}
	if ok {
		t.Fatalf("expected miss")
	}
}
