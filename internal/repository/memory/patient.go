// Package memory holds in-process repository implementations, used when no
// database is wired and in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository"
)

type PatientRepo struct {
	mu      sync.RWMutex
	records map[string]model.PatientRecord // phone -> record
	now     func() time.Time
}

func NewPatientRepo() *PatientRepo {
	return &PatientRepo{
		records: map[string]model.PatientRecord{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.PatientRepository = (*PatientRepo)(nil)

func (r *PatientRepo) UpsertByPhone(_ context.Context, record *model.PatientRecord) (*model.PatientRecord, error) {
	if err := repository.ValidateRecord(record); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stored := model.PatientRecord{
		Name:       record.Name,
		Phone:      record.Phone,
		Address:    record.Address,
		Symptoms:   record.Symptoms,
		Prediction: record.Prediction.Clone(),
	}
	if existing, ok := r.records[record.Phone]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.ID = uuid.New()
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	r.records[record.Phone] = stored

	return copyRecord(stored), nil
}

func (r *PatientRepo) FindHistory(_ context.Context, name, phone string) ([]*model.PatientRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.PatientRecord, 0, 1)
	if rec, ok := r.records[phone]; ok && rec.Name == name {
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

func (r *PatientRepo) List(_ context.Context, limit, offset int) ([]*model.PatientRecord, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]model.PatientRecord, 0, len(r.records))
	for _, rec := range r.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].Phone < all[j].Phone
		}
		return all[i].UpdatedAt.After(all[j].UpdatedAt)
	})

	total := len(all)
	start := offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	out := make([]*model.PatientRecord, 0, end-start)
	for _, rec := range all[start:end] {
		out = append(out, copyRecord(rec))
	}
	return out, total, nil
}

func (r *PatientRepo) DeleteByPhone(_ context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[phone]; !ok {
		return repository.ErrNotFound
	}
	delete(r.records, phone)
	return nil
}

// Len returns the number of stored records.
func (r *PatientRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func copyRecord(rec model.PatientRecord) *model.PatientRecord {
	rec.Prediction = rec.Prediction.Clone()
	return &rec
}
