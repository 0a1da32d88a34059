package models

import (
	"github.com/google/uuid"
)

// Snapshot is the full render state of one widget session.
type Snapshot struct {
	SessionID     uuid.UUID `json:"session_id"`
	Rating        int       `json:"rating"`
	Stars         []bool    `json:"stars"`
	Busy          bool      `json:"busy"`
	TriggerLabel  string    `json:"trigger_label"`
	Input         string    `json:"input"`
	Output        string    `json:"output"`
	OutputVisible bool      `json:"output_visible"`
}

type CreateSessionResponse struct {
	Token    string   `json:"token"`
	Snapshot Snapshot `json:"snapshot"`
}

type SetRatingRequest struct {
	Rating int `json:"rating"`
}

type StepRatingRequest struct {
	Direction string `json:"direction"` // "left" | "right"
}

type TransformRequest struct {
	Text string `json:"text"`
}

type TransformResponse struct {
	Status   string   `json:"status"` // "ignored" | "busy" | "completed" | "failed"
	Output   string   `json:"output,omitempty"`
	Snapshot Snapshot `json:"snapshot"`
}

type CopyResponse struct {
	Text string `json:"text"`
}

type HistoryResponse struct {
	Messages []ChatMessage `json:"messages"`
}
