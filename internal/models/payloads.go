package models

import "github.com/Lllllllleong/ectsflow/internal/ects"

// These structs define the JSON payloads exchanged between the Cloud Workflow
// and the worker functions.

// WorkflowArgument is passed to the workflow execution by document-intake.
type WorkflowArgument struct {
	DocumentID string `json:"documentId"`
	DocType    string `json:"docType"`
	Program    string `json:"program"`
	GCSUri     string `json:"gcsUri"`
	PageCount  int    `json:"pageCount"`
}

// ExtractRequest is the input for the ects-extractor function.
type ExtractRequest struct {
	DocumentID  string `json:"documentId"`
	GCSUri      string `json:"gcsUri"`
	DocType     string `json:"docType"`
	ExecutionID string `json:"executionId"`
	// Modules and Categories override the configured catalogue when set.
	Modules    ects.ModuleMap `json:"modules,omitempty"`
	Categories []string       `json:"categories,omitempty"`
}

// ExtractResponse is the output of the ects-extractor function.
type ExtractResponse struct {
	Status       string             `json:"status"`
	Method       string             `json:"method"`
	Sums         map[string]float64 `json:"sums"`
	Matched      []string           `json:"matched"`
	Unrecognized []string           `json:"unrecognized"`
	FinalGrade   *float64           `json:"finalGrade,omitempty"`
}

// MatchRequest is the input for the university-matcher function.
type MatchRequest struct {
	DocumentID  string   `json:"documentId,omitempty"`
	GCSUris     []string `json:"gcsUris"`
	Whitelist   []string `json:"whitelist,omitempty"`
	ExecutionID string   `json:"executionId"`
}

// MatchResponse is the output of the university-matcher function.
type MatchResponse struct {
	Status     string `json:"status"`
	Found      bool   `json:"found"`
	University string `json:"university,omitempty"`
	// Normalized is the matching document line in normalised form.
	Normalized string `json:"normalized,omitempty"`
	GCSUri     string `json:"gcsUri,omitempty"`
}
