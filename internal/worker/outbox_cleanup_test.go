package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/deepmed-api/internal/model"
	"github.com/jwalitptl/deepmed-api/internal/repository/memory"
	"github.com/jwalitptl/deepmed-api/pkg/logger"
)

func TestOutboxCleanupWorker_Cleanup(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOutboxRepo()

	for _, typ := range []string{"A", "B"} {
		require.NoError(t, repo.Create(ctx, &model.OutboxEvent{EventType: typ, Payload: json.RawMessage(`{}`)}))
	}
	claimed, err := repo.ClaimPending(ctx, 1, time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, repo.MarkProcessed(ctx, claimed[0].ID))

	w := NewOutboxCleanupWorker(repo, 7, time.Hour, logger.Nop())

	n, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "fresh events are retained")

	w.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }
	n, err = w.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events := repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "B", events[0].EventType)
}
