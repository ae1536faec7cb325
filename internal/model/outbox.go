package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusProcessed  OutboxStatus = "processed"
	OutboxStatusFailed     OutboxStatus = "failed"
	// OutboxStatusDead marks an event that ran out of retries.
	OutboxStatusDead OutboxStatus = "dead"
)

// Event types
const (
	EventPredictionRecorded = "PATIENT_PREDICTION_RECORDED"
	EventPatientDeleted     = "PATIENT_DELETED"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       string          `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// PredictionRecordedPayload is the payload of EventPredictionRecorded.
type PredictionRecordedPayload struct {
	RecordID   uuid.UUID `json:"record_id"`
	Phone      string    `json:"phone"`
	Source     string    `json:"source"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PatientDeletedPayload is the payload of EventPatientDeleted.
type PatientDeletedPayload struct {
	Phone     string    `json:"phone"`
	DeletedBy string    `json:"deleted_by"`
	DeletedAt time.Time `json:"deleted_at"`
}
