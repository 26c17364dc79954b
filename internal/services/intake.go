package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/ectsflow/internal/classifier"
	"github.com/Lllllllleong/ectsflow/internal/config"
	"github.com/Lllllllleong/ectsflow/internal/gcp"
	"github.com/Lllllllleong/ectsflow/internal/models"
	"github.com/Lllllllleong/ectsflow/internal/ocr"
)

// normalizedPrefix holds the validated copies written back by intake. Events
// for objects under it are ignored.
const normalizedPrefix = "normalized/"

// IntakeFunction validates uploads, classifies them and hands them to the
// workflow.
type IntakeFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	classifier       *classifier.Classifier
	config           config.Config
}

func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	cfg := config.Load()
	storageClient, firestoreClient, err := newClients(ctx, cfg)
	if err != nil {
		return nil, err
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	pipeline := newPipeline(cfg, storageClient)
	f := &IntakeFunction{
		storageClient:    storageClient,
		firestoreClient:  firestoreClient,
		executionsClient: executionsClient,
		classifier:       classifier.New(pipeline, cfg.Catalog.GermanPrograms),
		config:           cfg,
	}
	slog.Info("Document intake initialized.", "workflowId", cfg.WorkflowID, "collection", cfg.Collection)
	return f, nil
}

func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	start := time.Now()
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if strings.HasPrefix(e.Name, normalizedPrefix) {
		logCtx.Info("Ignoring normalized copy.")
		return nil
	}
	if !strings.EqualFold(filepath.Ext(e.Name), ".pdf") {
		logCtx.Info("Ignoring non-PDF upload.")
		return nil
	}
	logCtx.Info("Processing new GCS object.")

	tempDir, cleanup, err := makeTempDir(logCtx, "document-intake-*")
	if err != nil {
		return err
	}
	defer cleanup()

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := gcp.DownloadObject(ctx, f.storageClient, e.Bucket, e.Name, sourcePath); err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}

	fileHash, err := ocr.HashFile(sourcePath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := f.isDuplicate(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", docID)
		return nil
	}

	program := programOf(e.Name)
	docRef, err := f.createInitialDocument(ctx, fileHash, e.Name, program)
	if err != nil {
		logCtx.Error("Failed to create initial Firestore document", "error", err)
		return err
	}
	logCtx = logCtx.With("documentId", docRef.ID, "program", program)
	logCtx.Info("Created document record in Firestore.")

	normalizedPath := filepath.Join(tempDir, "normalized.pdf")
	pageCount, err := f.validate(ctx, logCtx, docRef, sourcePath, normalizedPath)
	if err != nil {
		return err
	}

	gcsURI, err := f.storeNormalized(ctx, logCtx, docRef, e.Bucket, normalizedPath, pageCount)
	if err != nil {
		return err
	}

	docType, err := f.classify(ctx, logCtx, docRef, normalizedPath, program)
	if err != nil {
		return err
	}

	arg := models.WorkflowArgument{
		DocumentID: docRef.ID,
		DocType:    docType,
		Program:    program,
		GCSUri:     gcsURI,
		PageCount:  pageCount,
	}
	if err := f.triggerWorkflow(ctx, logCtx, docRef, arg); err != nil {
		return err
	}

	logCtx.Info("Hand-off to workflow complete.", "docType", docType, "elapsedMs", elapsedMillis(start))
	return nil
}

func (f *IntakeFunction) isDuplicate(ctx context.Context, fileHash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.Collection).Where("fileHash", "==", fileHash).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *IntakeFunction) createInitialDocument(ctx context.Context, fileHash, filename, program string) (*firestore.DocumentRef, error) {
	newDoc := models.Document{
		FileHash:         fileHash,
		OriginalFilename: filename,
		Program:          program,
		Status:           models.StatusValidating,
		CreatedAt:        time.Now(),
	}
	docRef, _, err := f.firestoreClient.Collection(f.config.Collection).Add(ctx, newDoc)
	if err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}
	return docRef, nil
}

// validate rewrites the upload through pdfcpu in relaxed mode, which repairs
// the minor defects common in scanner output, and counts its pages.
func (f *IntakeFunction) validate(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, source, normalized string) (int, error) {
	if err := normalizePDF(source, normalized); err != nil {
		return 0, handleError(ctx, logCtx, docRef, "failed to validate PDF", err)
	}
	pageCount, err := api.PageCountFile(normalized)
	if err != nil {
		return 0, handleError(ctx, logCtx, docRef, "failed to get page count", err)
	}
	logCtx.Info("PDF validated.", "pageCount", pageCount)
	return pageCount, nil
}

func normalizePDF(inPath, outPath string) error {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.OptimizeFile(inPath, outPath, cfg)
}

// storeNormalized uploads the validated copy next to the upload so the
// extraction and matching functions read the same bytes that were classified.
func (f *IntakeFunction) storeNormalized(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, eventBucket, localPath string, pageCount int) (string, error) {
	bucket := f.config.UploadBucket
	if bucket == "" {
		bucket = eventBucket
	}
	object := fmt.Sprintf("%s%s.pdf", normalizedPrefix, docRef.ID)
	if err := f.uploadFile(ctx, bucket, localPath, object); err != nil {
		return "", handleError(ctx, logCtx, docRef, "failed to upload normalized PDF", err)
	}
	gcsURI := fmt.Sprintf("gs://%s/%s", bucket, object)
	if err := gcp.UpdateFields(ctx, docRef, map[string]interface{}{
		"status":    models.StatusClassifying,
		"gcsUri":    gcsURI,
		"pageCount": pageCount,
	}); err != nil {
		return "", handleError(ctx, logCtx, docRef, "failed to update status to CLASSIFYING", err)
	}
	return gcsURI, nil
}

func (f *IntakeFunction) classify(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, path, program string) (string, error) {
	res, err := f.classifier.ClassifyDocument(ctx, path, program)
	if err != nil {
		return "", handleError(ctx, logCtx, docRef, "failed to classify document", err)
	}
	fields := map[string]interface{}{
		"status":  models.StatusClassified,
		"docType": string(res.Label),
		"scores":  scoreFields(res.Scores),
	}
	if err := gcp.UpdateFields(ctx, docRef, fields); err != nil {
		return "", handleError(ctx, logCtx, docRef, "failed to store classification", err)
	}
	logCtx.Info("Document classified.", "docType", res.Label, "scores", res.Scores)
	return string(res.Label), nil
}

func scoreFields(scores map[classifier.Category]int) map[string]int {
	out := make(map[string]int, len(scores))
	for c, s := range scores {
		out[string(c)] = s
	}
	return out
}

func (f *IntakeFunction) triggerWorkflow(ctx context.Context, logCtx *slog.Logger, docRef *firestore.DocumentRef, arg models.WorkflowArgument) error {
	if f.config.WorkflowID == "" {
		logCtx.Warn("WORKFLOW_ID not set, skipping workflow hand-off.")
		return nil
	}
	logCtx.Info("Triggering workflow.")
	payloadBytes, err := json.Marshal(arg)
	if err != nil {
		return handleError(ctx, logCtx, docRef, "failed to marshal workflow payload", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	execution, err := f.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return handleError(ctx, logCtx, docRef, "failed to trigger workflow execution", err)
	}
	if err := gcp.UpdateFields(ctx, docRef, map[string]interface{}{"workflowExecutionId": execution.GetName()}); err != nil {
		logCtx.Warn("Failed to record workflow execution id.", "error", err)
	}
	return nil
}

// uploadFile writes localPath to bucket/destObject, retrying with
// exponential backoff.
func (f *IntakeFunction) uploadFile(ctx context.Context, bucket, localPath, destObject string) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := func() error {
			localFileReader, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer localFileReader.Close()

			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()

			gcsWriter := f.storageClient.Bucket(bucket).Object(destObject).NewWriter(writeCtx)
			gcsWriter.ContentType = "application/pdf"
			if _, err := io.Copy(gcsWriter, localFileReader); err != nil {
				_ = gcsWriter.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := gcsWriter.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", destObject, lastErr)
}
