package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository"
)

const patientColumns = `id, name, phone, address, symptoms, prediction, created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) UpsertByPhone(ctx context.Context, record *model.PatientRecord) (out *model.PatientRecord, err error) {
	if err := repository.ValidateRecord(record); err != nil {
		return nil, err
	}
	defer func(start time.Time) { r.observe("patient_upsert", start, err) }(time.Now())

	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (phone) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			symptoms = EXCLUDED.symptoms,
			prediction = EXCLUDED.prediction,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + patientColumns

	var patient model.PatientRecord
	err = r.db.GetContext(ctx, &patient, query,
		uuid.New(),
		record.Name,
		record.Phone,
		record.Address,
		record.Symptoms,
		record.Prediction,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert patient: %w", err)
	}
	return &patient, nil
}

func (r *patientRepository) FindHistory(ctx context.Context, name, phone string) (out []*model.PatientRecord, err error) {
	defer func(start time.Time) { r.observe("patient_history", start, err) }(time.Now())

	query := `SELECT ` + patientColumns + ` FROM patients WHERE name = $1 AND phone = $2 ORDER BY updated_at DESC`
	patients := make([]*model.PatientRecord, 0)
	if err = r.db.SelectContext(ctx, &patients, query, name, phone); err != nil {
		return nil, fmt.Errorf("failed to find patient history: %w", err)
	}
	return patients, nil
}

func (r *patientRepository) List(ctx context.Context, limit, offset int) (out []*model.PatientRecord, total int, err error) {
	defer func(start time.Time) { r.observe("patient_list", start, err) }(time.Now())

	if err = r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM patients`); err != nil {
		return nil, 0, fmt.Errorf("failed to count patients: %w", err)
	}

	query := `SELECT ` + patientColumns + ` FROM patients ORDER BY updated_at DESC LIMIT $1 OFFSET $2`
	patients := make([]*model.PatientRecord, 0)
	if err = r.db.SelectContext(ctx, &patients, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, total, nil
}

func (r *patientRepository) DeleteByPhone(ctx context.Context, phone string) (err error) {
	defer func(start time.Time) { r.observe("patient_delete", start, err) }(time.Now())

	result, err := r.db.ExecContext(ctx, `DELETE FROM patients WHERE phone = $1`, phone)
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
