package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository"
	"github.com/jwalitptl/deepmed-api/internal/repository/memory"
	"github.com/jwalitptl/deepmed-api/pkg/logger"
	"github.com/jwalitptl/deepmed-api/pkg/messaging"
	"github.com/jwalitptl/deepmed-api/pkg/metrics"
)

type published struct {
	channel string
	message []byte
}

type fakeBroker struct {
	mu   sync.Mutex
	fail error
	sent []published
}

func (b *fakeBroker) Publish(_ context.Context, channel string, message []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.sent = append(b.sent, published{channel: channel, message: message})
	return nil
}

func (b *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *fakeBroker) Close() error { return nil }

// contextRepo fails status writes on a done context, as a database would.
type contextRepo struct {
	*memory.OutboxRepo
}

func (r contextRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.OutboxRepo.MarkProcessed(ctx, id)
}

func (r contextRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.OutboxRepo.MarkFailed(ctx, id, errMsg, retryAt)
}

// contextBroker fails publishing once ctx is done.
type contextBroker struct {
	fakeBroker
}

func (b *contextBroker) Publish(ctx context.Context, channel string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.fakeBroker.Publish(ctx, channel, message)
}

// cancellingBroker delivers the message and then cancels the batch context.
type cancellingBroker struct {
	fakeBroker
	cancel context.CancelFunc
}

func (b *cancellingBroker) Publish(ctx context.Context, channel string, message []byte) error {
	err := b.fakeBroker.Publish(ctx, channel, message)
	b.cancel()
	return err
}

func newProcessor(repo repository.OutboxRepository, broker messaging.Broker) *OutboxProcessor {
	return NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Millisecond,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		ClaimLease:    time.Minute,
	}, logger.Nop(), metrics.NewNop())
}

func seed(t *testing.T, repo *memory.OutboxRepo, eventType, payload string) {
	t.Helper()
	require.NoError(t, repo.Create(context.Background(), &model.OutboxEvent{
		EventType: eventType,
		Payload:   json.RawMessage(payload),
	}))
}

func TestOutboxProcessor_PublishesAndMarksProcessed(t *testing.T) {
	repo := memory.NewOutboxRepo()
	broker := &fakeBroker{}
	seed(t, repo, model.EventPredictionRecorded, `{"phone":"555-0101"}`)

	n, err := newProcessor(repo, broker).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, broker.sent, 1)
	assert.Equal(t, "events.PATIENT_PREDICTION_RECORDED", broker.sent[0].channel)
	assert.JSONEq(t, `{"phone":"555-0101"}`, string(broker.sent[0].message))

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, string(model.OutboxStatusProcessed), events[0].Status)
	assert.NotNil(t, events[0].ProcessedAt)
}

func TestOutboxProcessor_FailureSchedulesRetry(t *testing.T) {
	repo := memory.NewOutboxRepo()
	broker := &fakeBroker{fail: errors.New("redis down")}
	seed(t, repo, model.EventPatientDeleted, `{}`)

	p := newProcessor(repo, broker)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	n, err := p.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, string(model.OutboxStatusFailed), events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Equal(t, "redis down", *events[0].ErrorMessage)
	require.NotNil(t, events[0].RetryAt)
	assert.Equal(t, fixed.Add(time.Second), *events[0].RetryAt)
}

func TestOutboxProcessor_CancelledBatchLeavesEventRetryable(t *testing.T) {
	mem := memory.NewOutboxRepo()
	seed(t, mem, model.EventPredictionRecorded, `{"phone":"555-0101"}`)

	p := newProcessor(contextRepo{mem}, &contextBroker{})
	p.now = func() time.Time { return time.Now().Add(-time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := p.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	events := mem.Events()
	require.Len(t, events, 1)
	assert.Equal(t, string(model.OutboxStatusFailed), events[0].Status)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Equal(t, context.Canceled.Error(), *events[0].ErrorMessage)

	claimable, err := mem.ClaimPending(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, claimable, 1)
}

func TestOutboxProcessor_MarksProcessedAfterShutdownDuringPublish(t *testing.T) {
	mem := memory.NewOutboxRepo()
	seed(t, mem, model.EventPredictionRecorded, `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := &cancellingBroker{cancel: cancel}

	n, err := newProcessor(contextRepo{mem}, broker).ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, broker.sent, 1)
	assert.Equal(t, string(model.OutboxStatusProcessed), mem.Events()[0].Status)
}

func TestOutboxProcessor_NextAttempt(t *testing.T) {
	p := newProcessor(memory.NewOutboxRepo(), &fakeBroker{})
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	first := p.nextAttempt(0)
	require.NotNil(t, first)
	assert.Equal(t, fixed.Add(time.Second), *first)

	second := p.nextAttempt(1)
	require.NotNil(t, second)
	assert.Equal(t, fixed.Add(2*time.Second), *second)

	assert.Nil(t, p.nextAttempt(2), "third failure exhausts three attempts")
}

func TestOutboxProcessor_StopsOnCancel(t *testing.T) {
	repo := memory.NewOutboxRepo()
	broker := &fakeBroker{}
	seed(t, repo, model.EventPredictionRecorded, `{}`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newProcessor(repo, broker).Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		events := repo.Events()
		return len(events) == 1 && events[0].Status == string(model.OutboxStatusProcessed)
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("processor did not stop")
	}
}

func TestNewOutboxProcessor_RejectsBadConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewOutboxProcessor(memory.NewOutboxRepo(), &fakeBroker{}, OutboxProcessorConfig{}, logger.Nop(), metrics.NewNop())
	})
}
