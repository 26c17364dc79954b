package models

import "time"

// Status values of a Document record.
const (
	StatusValidating  = "VALIDATING"
	StatusClassifying = "CLASSIFYING"
	StatusClassified  = "CLASSIFIED"
	StatusExtracted   = "EXTRACTED"
	StatusMatched     = "MATCHED"
	StatusFailed      = "FAILED"
)

// Document is the Firestore record of one uploaded applicant document.
type Document struct {
	FileHash            string             `firestore:"fileHash,omitempty"`
	OriginalFilename    string             `firestore:"originalFilename,omitempty"`
	Program             string             `firestore:"program,omitempty"`
	GCSUri              string             `firestore:"gcsUri,omitempty"`
	Status              string             `firestore:"status,omitempty"`
	ErrorDetails        string             `firestore:"errorDetails,omitempty"`
	PageCount           int                `firestore:"pageCount,omitempty"`
	DocType             string             `firestore:"docType,omitempty"`
	Scores              map[string]int     `firestore:"scores,omitempty"`
	ECTSSums            map[string]float64 `firestore:"ectsSums,omitempty"`
	ECTSMethod          string             `firestore:"ectsMethod,omitempty"`
	FinalGrade          *float64           `firestore:"finalGrade,omitempty"`
	University          string             `firestore:"university,omitempty"`
	WorkflowExecutionID string             `firestore:"workflowExecutionId,omitempty"`
	CreatedAt           time.Time          `firestore:"createdAt,omitempty"`
}
