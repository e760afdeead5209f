package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fractea_engine/internal/entity"
)

func TestHistoryStatusIsMonotonic(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.history.Append(ctx, &entity.Transaction{
		ID: "1", OwnerID: "alice@example.com", Hash: "0xaa",
	}))

	require.NoError(t, engine.history.UpdateStatus(ctx, "alice@example.com", "0xaa", entity.StatusCompleted, 42))

	// Terminal states never move again.
	err := engine.history.UpdateStatus(ctx, "alice@example.com", "0xaa", entity.StatusFailed, 43)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindValidation))

	tx, err := engine.history.GetByHash(ctx, "alice@example.com", "0xaa")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, tx.Status)
	assert.Equal(t, uint64(42), tx.BlockNumber)
}

func TestHistoryRepeatedTerminalStatusIsNoOp(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, engine.history.Append(ctx, &entity.Transaction{
		ID: "1", OwnerID: "alice@example.com", Hash: "0xaa",
	}))
	require.NoError(t, engine.history.UpdateStatus(ctx, "alice@example.com", "0xaa", entity.StatusFailed, 0))
	// The re-check worker can race the confirmation wait onto the same state.
	require.NoError(t, engine.history.UpdateStatus(ctx, "alice@example.com", "0xaa", entity.StatusFailed, 0))
}

func TestHistoryListNewestFirst(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	older := &entity.Transaction{ID: "1", OwnerID: "alice@example.com", Hash: "0xaa",
		CreatedAt: time.Now().UTC().Add(-time.Hour)}
	newer := &entity.Transaction{ID: "2", OwnerID: "alice@example.com", Hash: "0xbb"}
	require.NoError(t, engine.history.Append(ctx, older))
	require.NoError(t, engine.history.Append(ctx, newer))

	rows, err := engine.history.ListByOwner(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "0xbb", rows[0].Hash)
	assert.Equal(t, "0xaa", rows[1].Hash)
}

func TestHistoryUpdateUnknownHash(t *testing.T) {
	engine := newTestEngine(t)

	err := engine.history.UpdateStatus(context.Background(), "alice@example.com", "0xmissing", entity.StatusCompleted, 0)
	require.Error(t, err)
	assert.True(t, entity.IsKind(err, entity.KindValidation))
}
