package models

import (
	"time"

	"github.com/google/uuid"
)

// TransformRecord is one finished transform, kept for diagnostics.
type TransformRecord struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	Rating       int       `json:"rating"`
	Input        string    `json:"input"`
	Output       string    `json:"output"`
	Failed       bool      `json:"failed"`
	ErrorMessage *string   `json:"error_message"`
	DurationMs   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
