package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository"
)

const outboxColumns = `id, event_type, payload, status, error_message, retry_count, retry_at, created_at, updated_at, processed_at`

type outboxRepository struct {
	BaseRepository
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) (err error) {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}
	defer func(start time.Time) { r.observe("outbox_create", start, err) }(time.Now())

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $5
		)
	`
	event.ID = uuid.New()
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	event.Status = string(model.OutboxStatusPending)

	_, err = r.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		string(event.Payload),
		event.Status,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}
	return nil
}

// ClaimPending locks up to limit due events, flips them to processing and
// returns them. Concurrent workers skip rows another worker holds. A row stuck
// in processing for longer than lease belongs to a worker that died and is
// claimed again.
func (r *outboxRepository) ClaimPending(ctx context.Context, limit int, lease time.Duration) (events []*model.OutboxEvent, err error) {
	defer func(start time.Time) { r.observe("outbox_claim", start, err) }(time.Now())

	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			SELECT ` + outboxColumns + `
			FROM outbox_events
			WHERE (
				status IN ('pending', 'failed')
				AND (retry_at IS NULL OR retry_at <= NOW())
			) OR (
				status = 'processing'
				AND updated_at < $2
			)
			ORDER BY created_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		`
		staleBefore := time.Now().UTC().Add(-lease)
		if err := tx.SelectContext(ctx, &events, query, limit, staleBefore); err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(events))
		for i, e := range events {
			ids[i] = e.ID
			e.Status = string(model.OutboxStatusProcessing)
		}
		update, args, err := sqlx.In(`UPDATE outbox_events SET status = ?, updated_at = NOW() WHERE id IN (?)`,
			string(model.OutboxStatusProcessing), ids)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(update), args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	return events, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) (err error) {
	defer func(start time.Time) { r.observe("outbox_mark_processed", start, err) }(time.Now())

	query := `
		UPDATE outbox_events
		SET status = $1, error_message = NULL, processed_at = NOW(), updated_at = NOW()
		WHERE id = $2
	`
	if _, err = r.db.ExecContext(ctx, query, string(model.OutboxStatusProcessed), id); err != nil {
		return fmt.Errorf("failed to mark outbox event processed: %w", err)
	}
	return nil
}

// MarkFailed records the failure. A nil retryAt parks the event for good.
func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) (err error) {
	defer func(start time.Time) { r.observe("outbox_mark_failed", start, err) }(time.Now())

	status := model.OutboxStatusFailed
	if retryAt == nil {
		status = model.OutboxStatusDead
	}
	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_count = retry_count + 1,
			retry_at = $3,
			updated_at = NOW()
		WHERE id = $4
	`
	if _, err = r.db.ExecContext(ctx, query, string(status), errMsg, retryAt, id); err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (n int64, err error) {
	defer func(start time.Time) { r.observe("outbox_cleanup", start, err) }(time.Now())

	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
