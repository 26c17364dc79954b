package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/ectsflow/internal/models"
	"github.com/Lllllllleong/ectsflow/internal/services"
)

var (
	matcherInstance *services.MatcherFunction
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleMatchUniversity" is the entry point name configured in GCP.
	functions.HTTP("HandleMatchUniversity", handleMatchUniversity)
}

// main is required by the Go Functions Framework.
func main() {}

// handleMatchUniversity scans an applicant's documents for a whitelisted
// university.
func handleMatchUniversity(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		matcherInstance, initErr = services.NewMatcher(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: university matcher initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := matcherInstance.Process(r.Context(), &req)
	if err != nil {
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "executionId", req.ExecutionID)
		http.Error(w, "Internal Server Error: failed to encode response", http.StatusInternalServerError)
	}
}
