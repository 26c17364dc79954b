package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/ectsflow/internal/config"
	"github.com/Lllllllleong/ectsflow/internal/gcp"
	"github.com/Lllllllleong/ectsflow/internal/models"
	"github.com/Lllllllleong/ectsflow/internal/ocr"
	"github.com/Lllllllleong/ectsflow/internal/ocr/tesseract"
	"github.com/Lllllllleong/ectsflow/internal/textcache"
)

const cacheObjectPrefix = "ocr-text"

// GCSEvent is the payload of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// newPipeline builds the recognition pipeline shared by every function.
// With OCR_CACHE_BUCKET set, recognized text also survives cold starts.
func newPipeline(cfg config.Config, storageClient *storage.Client) *ocr.Pipeline {
	renderer := ocr.NewPopplerRenderer(cfg.OCR.PopplerPath)
	engine := tesseract.New(cfg.OCR.TessdataPrefix, cfg.OCR.Languages)

	var backing textcache.Cache
	if cfg.CacheBucket != "" {
		backing = textcache.NewGCS(storageClient.Bucket(cfg.CacheBucket), cacheObjectPrefix)
	}
	pipeline := ocr.NewPipeline(renderer, engine, textcache.NewTiered(textcache.NewMemory(), backing), ocr.NewFingerprinter(), cfg.OCR.Options())

	if err := pipeline.Available(); err != nil {
		slog.Error("OCR capability check failed at startup.", "error", err)
	}
	return pipeline
}

// newClients creates the storage and Firestore clients every function needs.
func newClients(ctx context.Context, cfg config.Config) (*storage.Client, *firestore.Client, error) {
	if cfg.ProjectID == "" {
		return nil, nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return storageClient, firestoreClient, nil
}

// documentRef returns nil when the caller did not name a record.
func documentRef(client *firestore.Client, collection, documentID string) *firestore.DocumentRef {
	if documentID == "" {
		return nil
	}
	return client.Collection(collection).Doc(documentID)
}

// handleError logs, marks the record FAILED and returns the combined error.
func handleError(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if docRef != nil {
		if err := updateStatus(ctx, docRef, models.StatusFailed, fullError); err != nil {
			logCtx.Error("CRITICAL: Failed to update Firestore status to FAILED after a processing error.", "updateError", err)
		}
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}

func updateStatus(ctx context.Context, docRef *firestore.DocumentRef, status, errDetails string) error {
	fields := map[string]interface{}{"status": status}
	if errDetails != "" {
		fields["errorDetails"] = errDetails
	}
	return gcp.UpdateFields(ctx, docRef, fields)
}

// makeTempDir creates a scratch directory removed by the returned cleanup.
func makeTempDir(logCtx *slog.Logger, pattern string) (string, func(), error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			logCtx.Warn("Failed to remove temp dir.", "path", dir, "error", err)
		}
	}, nil
}

// programOf reads the program from the first segment of an upload path,
// e.g. "bwl/applicant-42/transcript.pdf" -> "bwl".
func programOf(objectName string) string {
	dir := path.Dir(objectName)
	if dir == "." || dir == "/" {
		return ""
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(dir, "/"), "/")
	return strings.ToLower(first)
}

// elapsedMillis is logged with every finished request.
func elapsedMillis(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
