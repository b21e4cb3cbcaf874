// Package testutil holds fixtures shared by wastenet tests.
package testutil

import (
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/internal/daemon/store"
	"github.com/grovetools/wastenet/pkg/models"
)

// NewBin builds a consistent record holding counts. Status is derived
// from the totals.
func NewBin(id string, version int64, capacity int, counts map[string]int) models.BinRecord {
	rec := models.BinRecord{
		ID:             id,
		Capacity:       capacity,
		CategoryCounts: make(map[string]int, len(counts)),
		Version:        version,
		LastUpdated:    time.Unix(0, version).UTC(),
	}
	for k, v := range counts {
		rec.CategoryCounts[k] = v
		rec.TotalItems += v
	}
	rec.Status = rec.DerivedStatus()
	return rec
}

// SeedStore provisions seeds and fails the test on any error or duplicate.
func SeedStore(t *testing.T, st *store.Store, seeds ...models.BinSeed) []models.BinRecord {
	t.Helper()
	out := make([]models.BinRecord, 0, len(seeds))
	for _, seed := range seeds {
		rec, created, err := st.Provision(seed)
		require.NoError(t, err)
		require.True(t, created, "bin %s already provisioned", seed.ID)
		out = append(out, rec)
	}
	return out
}

// WaitFor receives from ch until match returns true or timeout elapses.
func WaitFor[T any](t *testing.T, ch <-chan T, timeout time.Duration, match func(T) bool) T {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case v, ok := <-ch:
			if !ok {
				t.Fatal("channel closed while waiting")
			}
			if match(v) {
				return v
			}
		case <-deadline.C:
			t.Fatalf("no matching value within %s", timeout)
		}
	}
}

// RandomString generates a random hex string of the specified length.
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}
