package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository"
)

type OutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
	now    func() time.Time
}

func NewOutboxRepo() *OutboxRepo {
	return &OutboxRepo{now: func() time.Time { return time.Now().UTC() }}
}

var _ repository.OutboxRepository = (*OutboxRepo)(nil)

func (r *OutboxRepo) Create(_ context.Context, event *model.OutboxEvent) error {
	if event == nil || event.Payload == nil {
		return errors.New("event payload cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	event.ID = uuid.New()
	event.Status = string(model.OutboxStatusPending)
	event.CreatedAt = r.now()
	event.UpdatedAt = event.CreatedAt

	stored := *event
	r.events = append(r.events, &stored)
	return nil
}

func (r *OutboxRepo) ClaimPending(_ context.Context, limit int, lease time.Duration) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	staleBefore := now.Add(-lease)
	var out []*model.OutboxEvent
	for _, e := range r.events {
		if len(out) >= limit {
			break
		}
		due := e.RetryAt == nil || !e.RetryAt.After(now)
		retryable := (e.Status == string(model.OutboxStatusPending) || e.Status == string(model.OutboxStatusFailed)) && due
		stale := e.Status == string(model.OutboxStatusProcessing) && e.UpdatedAt.Before(staleBefore)
		if retryable || stale {
			e.Status = string(model.OutboxStatusProcessing)
			e.UpdatedAt = now
			claimed := *e
			out = append(out, &claimed)
		}
	}
	return out, nil
}

func (r *OutboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.find(id)
	if e == nil {
		return repository.ErrNotFound
	}
	now := r.now()
	e.Status = string(model.OutboxStatusProcessed)
	e.ErrorMessage = nil
	e.ProcessedAt = &now
	e.UpdatedAt = now
	return nil
}

func (r *OutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.find(id)
	if e == nil {
		return repository.ErrNotFound
	}
	e.Status = string(model.OutboxStatusFailed)
	if retryAt == nil {
		e.Status = string(model.OutboxStatusDead)
	}
	e.ErrorMessage = &errMsg
	e.RetryCount++
	e.RetryAt = retryAt
	e.UpdatedAt = r.now()
	return nil
}

func (r *OutboxRepo) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		if e.Status == string(model.OutboxStatusProcessed) && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n, nil
}

// Events returns a snapshot of every stored event.
func (r *OutboxRepo) Events() []model.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.OutboxEvent, len(r.events))
	for i, e := range r.events {
		out[i] = *e
	}
	return out
}

func (r *OutboxRepo) find(id uuid.UUID) *model.OutboxEvent {
	for _, e := range r.events {
		if e.ID == id {
			return e
		}
	}
	return nil
}
