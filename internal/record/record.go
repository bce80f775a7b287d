package record

import (
	"time"

	"github.com/zombor/cuisine-ocr/internal/engine"
)

// Status is the lifecycle state of an extraction record
type Status string

const (
	// StatusExtracted records hold proposals awaiting confirmation
	StatusExtracted Status = "extracted"
	// StatusRejected records failed quality scoring and are kept as a report only
	StatusRejected Status = "rejected"
	// StatusConfirmed records had their proposals confirmed by an operator
	StatusConfirmed Status = "confirmed"
)

// Record is a persisted extraction run
type Record struct {
	ID           string              `json:"id"`
	DocumentID   string              `json:"document_id"`
	DocumentType engine.DocumentType `json:"document_type"`
	PageCount    int                 `json:"page_count,omitempty"`
	TextFile     string              `json:"text_file"`
	Status       Status              `json:"status"`
	Result       *engine.Result      `json:"result"`
	Error        string              `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
	ConfirmedAt  *time.Time          `json:"confirmed_at,omitempty"`
}
