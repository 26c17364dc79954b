package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/ectsflow/internal/classifier"
	"github.com/Lllllllleong/ectsflow/internal/config"
	"github.com/Lllllllleong/ectsflow/internal/ects"
	"github.com/Lllllllleong/ectsflow/internal/gcp"
	"github.com/Lllllllleong/ectsflow/internal/models"
	"github.com/Lllllllleong/ectsflow/internal/ocr"
)

// ExtractorFunction sums the ECTS credits of one stored document.
type ExtractorFunction struct {
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	vertexClient    *gcp.VertexClient
	pipeline        *ocr.Pipeline
	extractor       *ects.Extractor
	config          config.Config
}

func NewExtractor(ctx context.Context) (*ExtractorFunction, error) {
	cfg := config.Load()
	storageClient, firestoreClient, err := newClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pipeline := newPipeline(cfg, storageClient)

	f := &ExtractorFunction{
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		pipeline:        pipeline,
		config:          cfg,
	}

	var layout ects.LayoutExtractor
	switch cfg.LayoutExtractor {
	case config.LayoutVertex:
		f.vertexClient, err = gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexRegion)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		layout = ects.NewVertexExtractor(f.vertexClient.LayoutModel)
	default:
		layout = ects.NewHOCRExtractor(pipeline)
	}
	f.extractor = ects.NewExtractor(pipeline, layout, cfg.OCR.Timeout)

	slog.Info("ECTS extractor initialized.",
		"layoutExtractor", cfg.LayoutExtractor,
		"modules", len(cfg.Catalog.Modules),
		"categories", cfg.Catalog.Categories)
	return f, nil
}

func (f *ExtractorFunction) Process(ctx context.Context, req *models.ExtractRequest) (*models.ExtractResponse, error) {
	start := time.Now()
	logCtx := slog.With("documentId", req.DocumentID, "executionId", req.ExecutionID, "docType", req.DocType)
	logCtx.Info("Starting ECTS extraction.")
	docRef := documentRef(f.firestoreClient, f.config.Collection, req.DocumentID)

	bucket, object, err := gcp.ParseGCSURI(req.GCSUri)
	if err != nil {
		return nil, handleError(ctx, logCtx, docRef, "invalid gcsUri", err)
	}

	tempDir, cleanup, err := makeTempDir(logCtx, "ects-extractor-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	// A missing object leaves no local file, which the extractor reports as
	// FAILED_NOFILE.
	path := filepath.Join(tempDir, "document.pdf")
	if err := gcp.DownloadObject(ctx, f.storageClient, bucket, object, path); err != nil {
		if !errors.Is(err, storage.ErrObjectNotExist) {
			return nil, handleError(ctx, logCtx, docRef, "failed to download document", err)
		}
		logCtx.Warn("Document object does not exist.", "gcsUri", req.GCSUri)
	}

	modules, categories := f.catalogFor(req)
	res, err := f.extractor.Extract(ctx, path, modules, categories, req.DocType)
	if err != nil {
		return nil, handleError(ctx, logCtx, docRef, "ECTS extraction unavailable", err)
	}

	var finalGrade *float64
	if !res.Failed() && carriesFinalGrade(req.DocType) {
		finalGrade = f.finalGrade(ctx, logCtx, path)
	}

	if docRef != nil {
		fields := map[string]interface{}{
			"status":     models.StatusExtracted,
			"ectsSums":   res.Sums,
			"ectsMethod": res.Method,
		}
		if finalGrade != nil {
			fields["finalGrade"] = *finalGrade
		}
		if err := gcp.UpdateFields(ctx, docRef, fields); err != nil {
			return nil, handleError(ctx, logCtx, docRef, "failed to store ECTS sums", err)
		}
	}

	logCtx.Info("ECTS extraction complete.", "method", res.Method, "total", res.Total(), "elapsedMs", elapsedMillis(start))
	return &models.ExtractResponse{
		Status:       "SUCCESS",
		Method:       res.Method,
		Sums:         res.Sums,
		Matched:      res.Matched,
		Unrecognized: res.Unrecognized,
		FinalGrade:   finalGrade,
	}, nil
}

// catalogFor prefers the modules and categories carried by the request.
func (f *ExtractorFunction) catalogFor(req *models.ExtractRequest) (ects.ModuleMap, []string) {
	modules := f.config.Catalog.Modules
	if len(req.Modules) > 0 {
		modules = req.Modules
	}
	categories := f.config.Catalog.Categories
	if len(req.Categories) > 0 {
		categories = req.Categories
	}
	return modules, categories
}

func carriesFinalGrade(docType string) bool {
	return docType == string(classifier.Transcript) || docType == string(classifier.DegreeCertificate)
}

// finalGrade reads the overall grade from the full text. Recognition
// problems leave the grade unset.
func (f *ExtractorFunction) finalGrade(ctx context.Context, logCtx *slog.Logger, path string) *float64 {
	text, err := f.pipeline.RecognizeWithin(ctx, path, f.pipeline.Options().DPI, 0, f.config.OCR.Timeout)
	if err != nil {
		logCtx.Warn("Skipping final grade.", "error", err)
		return nil
	}
	grade, ok := ects.FinalGrade(text)
	if !ok {
		return nil
	}
	return &grade
}
