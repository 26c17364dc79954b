package textcache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/ectsflow/internal/gcp"
)

// GCS persists recognized text as write-once objects so separate function
// instances share recognition work.
type GCS struct {
	bucket *storage.BucketHandle
	prefix string
}

// NewGCS returns a cache tier backed by the given bucket. Objects are written
// under prefix, which may be empty.
func NewGCS(bucket *storage.BucketHandle, prefix string) *GCS {
	return &GCS{bucket: bucket, prefix: prefix}
}

func (g *GCS) objectName(key Key) string {
	if g.prefix == "" {
		return key.String() + ".txt"
	}
	return g.prefix + "/" + key.String() + ".txt"
}

func (g *GCS) Get(ctx context.Context, key Key) (string, bool, error) {
	reader, err := g.bucket.Object(g.objectName(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to open cached text %s: %w", g.objectName(key), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", false, fmt.Errorf("failed to read cached text %s: %w", g.objectName(key), err)
	}
	return string(data), true, nil
}

func (g *GCS) Put(ctx context.Context, key Key, text string) error {
	return gcp.SaveToGCSAtomically(ctx, g.bucket, g.objectName(key), text)
}

// Tiered answers from the in-process cache first and falls back to a slower
// backing tier. Backing hits are promoted into memory. Backing tier failures
// are logged and never fail the lookup.
type Tiered struct {
	memory  *Memory
	backing Cache
}

// NewTiered combines an in-process cache with a backing tier. A nil backing
// tier makes Tiered behave like memory alone.
func NewTiered(memory *Memory, backing Cache) *Tiered {
	return &Tiered{memory: memory, backing: backing}
}

func (t *Tiered) Get(ctx context.Context, key Key) (string, bool, error) {
	if text, ok, _ := t.memory.Get(ctx, key); ok {
		return text, true, nil
	}
	if t.backing == nil {
		return "", false, nil
	}
	text, ok, err := t.backing.Get(ctx, key)
	if err != nil {
		slog.Warn("Backing text cache lookup failed.", "key", key.String(), "error", err)
		return "", false, nil
	}
	if !ok {
		return "", false, nil
	}
	_ = t.memory.Put(ctx, key, text)
	return text, true, nil
}

func (t *Tiered) Put(ctx context.Context, key Key, text string) error {
	_ = t.memory.Put(ctx, key, text)
	if t.backing == nil {
		return nil
	}
	if err := t.backing.Put(ctx, key, text); err != nil {
		slog.Warn("Backing text cache write failed.", "key", key.String(), "error", err)
	}
	return nil
}
