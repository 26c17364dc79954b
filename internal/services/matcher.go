package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/ectsflow/internal/config"
	"github.com/Lllllllleong/ectsflow/internal/gcp"
	"github.com/Lllllllleong/ectsflow/internal/models"
	"github.com/Lllllllleong/ectsflow/internal/ocr"
	"github.com/Lllllllleong/ectsflow/internal/university"
)

// MatcherFunction looks for a whitelisted university across an applicant's
// documents.
type MatcherFunction struct {
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	pipeline        *ocr.Pipeline
	config          config.Config
}

func NewMatcher(ctx context.Context) (*MatcherFunction, error) {
	cfg := config.Load()
	storageClient, firestoreClient, err := newClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("University matcher initialized.", "whitelist", len(cfg.Catalog.Whitelist))
	return &MatcherFunction{
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		pipeline:        newPipeline(cfg, storageClient),
		config:          cfg,
	}, nil
}

func (f *MatcherFunction) Process(ctx context.Context, req *models.MatchRequest) (*models.MatchResponse, error) {
	start := time.Now()
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID, "documents", len(req.GCSUris))
	logCtx.Info("Starting whitelist scan.")
	docRef := documentRef(f.firestoreClient, f.config.Collection, req.DocumentID)

	tempDir, cleanup, err := makeTempDir(logCtx, "university-matcher-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	whitelist := f.config.Catalog.Whitelist
	if len(req.Whitelist) > 0 {
		whitelist = req.Whitelist
	}

	// Documents are downloaded lazily so the scan stops paying for
	// downloads once a match is found.
	d := &lazyDownloader{client: f.storageClient, dir: tempDir}
	recognize := func(ctx context.Context, uri string) (string, error) {
		path, err := d.fetch(ctx, uri)
		if err != nil {
			return "", err
		}
		return f.pipeline.Preview(ctx, path)
	}

	match, err := university.FindWhitelisted(ctx, req.GCSUris, whitelist, recognize)
	if err != nil {
		return nil, handleError(ctx, logCtx, docRef, "university scan unavailable", err)
	}

	if docRef != nil {
		fields := map[string]interface{}{"status": models.StatusMatched, "university": match.Name}
		if err := gcp.UpdateFields(ctx, docRef, fields); err != nil {
			return nil, handleError(ctx, logCtx, docRef, "failed to store university match", err)
		}
	}

	logCtx.Info("Whitelist scan complete.", "found", match.Found, "university", match.Name, "elapsedMs", elapsedMillis(start))
	return matchResponse(match), nil
}

func matchResponse(match university.Match) *models.MatchResponse {
	return &models.MatchResponse{
		Status:     "SUCCESS",
		Found:      match.Found,
		University: match.Name,
		Normalized: match.Normalized,
		GCSUri:     match.Path,
	}
}

// lazyDownloader fetches gs:// objects into dir on first use.
type lazyDownloader struct {
	client *storage.Client
	dir    string

	mu    sync.Mutex
	count int
}

func (d *lazyDownloader) fetch(ctx context.Context, uri string) (string, error) {
	bucket, object, err := gcp.ParseGCSURI(uri)
	if err != nil {
		return "", err
	}
	d.mu.Lock()
	d.count++
	path := filepath.Join(d.dir, fmt.Sprintf("%03d.pdf", d.count))
	d.mu.Unlock()

	if err := gcp.DownloadObject(ctx, d.client, bucket, object, path); err != nil {
		return "", err
	}
	return path, nil
}
