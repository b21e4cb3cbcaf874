package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/errors"
)

func TestRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveMutation("logItem", false, nil)
	r.ObserveMutation("logItem", true, nil)
	r.ObserveMutation("empty", false, errors.BinNotFound("X", "empty"))
	r.EventPublished(3)
	r.EventDropped("dashboard")
	r.ObserverAttached(2)
	r.ObserverDetached("slow", 1)
	r.IncSnapshot()
	r.ObserveRequest("/api/bins", http.StatusOK, 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.mutations.WithLabelValues("logItem", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.mutations.WithLabelValues("empty", "NOT_FOUND")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("logItem")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.observers))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dropped.WithLabelValues("dashboard")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveMutation("logItem", true, nil)
	r.EventPublished(1)
	r.EventDropped("x")
	r.ObserverAttached(1)
	r.ObserverDetached("slow", 0)
	r.IncSnapshot()
	r.ObserveRequest("/", 200, time.Millisecond)
	assert.Nil(t, r.Registry())
}

func TestHTTPHandler(t *testing.T) {
	r := NewRecorder(nil)
	r.IncSnapshot()

	rec := httptest.NewRecorder()
	r.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "wastenet_snapshots_served_total"))
}
