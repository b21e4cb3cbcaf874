package snapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/internal/daemon/store"
	"github.com/grovetools/wastenet/pkg/models"
)

type emptySource struct{}

func (emptySource) GetAll() []models.BinRecord { return nil }

func TestSnapshotReflectsStore(t *testing.T) {
	s := store.New()
	for _, seed := range models.DefaultSeeds() {
		_, _, err := s.Provision(seed)
		require.NoError(t, err)
	}
	_, _, err := s.LogItem("BIN-003", "paper")
	require.NoError(t, err)

	snap, err := New(s).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Bins, 3)
	assert.False(t, snap.TakenAt.IsZero())

	assert.Equal(t, "BIN-001", snap.Bins[0].ID)
	assert.Equal(t, models.StatusFull, snap.Bins[1].Status)
	assert.Equal(t, 56, snap.Bins[2].TotalItems)
}

func TestSnapshotEmptySource(t *testing.T) {
	snap, err := New(emptySource{}).Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snap.Bins)
	assert.Empty(t, snap.Bins)
}

func TestSnapshotCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(emptySource{}).Snapshot(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
