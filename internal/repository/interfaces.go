package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/deepmed-api/internal/model"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidRecord is returned when a record fails storage-level validation.
	ErrInvalidRecord = errors.New("invalid patient record")
)

// All repository interfaces in one file
type (
	// PatientRepository stores the latest submission per phone number.
	PatientRepository interface {
		UpsertByPhone(ctx context.Context, record *model.PatientRecord) (*model.PatientRecord, error)
		FindHistory(ctx context.Context, name, phone string) ([]*model.PatientRecord, error)
		List(ctx context.Context, limit, offset int) ([]*model.PatientRecord, int, error)
		DeleteByPhone(ctx context.Context, phone string) error
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending hands out due events and reclaims events left in
		// processing for longer than lease.
		ClaimPending(ctx context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)

// ValidateRecord enforces the storage-boundary rules shared by every
// PatientRepository implementation.
func ValidateRecord(record *model.PatientRecord) error {
	if record == nil {
		return ErrInvalidRecord
	}
	req := model.PredictRequest{
		Name:     record.Name,
		Phone:    record.Phone,
		Address:  record.Address,
		Symptoms: record.Symptoms,
	}
	if !req.Valid() {
		return ErrInvalidRecord
	}
	return nil
}
