package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/internal/daemon/engine"
	"github.com/grovetools/wastenet/internal/daemon/metrics"
	"github.com/grovetools/wastenet/internal/daemon/notifier"
	"github.com/grovetools/wastenet/internal/daemon/store"
	"github.com/grovetools/wastenet/pkg/models"
)

func newTestServer(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()
	eng := engine.New(store.New(), notifier.NewRegistry(notifier.Options{}, nil), nil)
	require.NoError(t, eng.Bootstrap(context.Background(), nil, nil))
	eng.Provision([]models.BinSeed{{ID: "SMALL", Capacity: 2}})

	srv := New(eng, Options{Heartbeat: 50 * time.Millisecond}, nil)
	srv.SetMetrics(metrics.NewRecorder(nil))
	srv.SetRunningConfig(&RunningConfig{Addr: "test", StartedAt: time.Now()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return eng, ts
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestGetBinsSnapshot(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/bins")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	_, err = time.Parse(time.RFC3339Nano, resp.Header.Get(SnapshotTakenAtHeader))
	assert.NoError(t, err)

	var bins []models.BinRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&bins))
	require.Len(t, bins, 4)
	assert.Equal(t, "BIN-001", bins[0].ID)
	assert.Equal(t, -74.006, bins[0].Position.Longitude)
}

func TestGetBin(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/bins/BIN-003")
	require.NoError(t, err)
	defer resp.Body.Close()
	var rec models.BinRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, 55, rec.TotalItems)

	missing, err := http.Get(ts.URL + "/api/bins/NOPE")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestLogItem(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name     string
		body     string
		wantCode int
		errCode  string
	}{
		{"ok", `{"binId":"BIN-001","wasteType":"plastic"}`, http.StatusOK, ""},
		{"missing type", `{"binId":"BIN-001"}`, http.StatusBadRequest, "INVALID_INPUT"},
		{"malformed", `{`, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown bin", `{"binId":"NOPE","wasteType":"paper"}`, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/log", tt.body)
			assert.Equal(t, tt.wantCode, resp.StatusCode)
			if tt.errCode == "" {
				var rec models.BinRecord
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
				assert.Equal(t, 31, rec.TotalItems)
				assert.Equal(t, 11, rec.CategoryCounts["plastic"])
				return
			}
			body := decodeError(t, resp)
			assert.Equal(t, tt.errCode, body["code"])
			assert.NotEmpty(t, body["message"])
			details, ok := body["details"].(map[string]interface{})
			require.True(t, ok)
			assert.Equal(t, "logItem", details["operation"])
		})
	}
}

func TestEmptyEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/bins/BIN-002/empty", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var rec models.BinRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	assert.Equal(t, models.StatusCollecting, rec.Status)
	assert.Equal(t, 0, rec.TotalItems)

	missing := postJSON(t, ts.URL+"/api/bins/NOPE/empty", "")
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	body := decodeError(t, missing)
	details := body["details"].(map[string]interface{})
	assert.Equal(t, "NOPE", details["binId"])
}

func TestSSEStream(t *testing.T) {
	eng, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	_, _, err = eng.LogItem("SMALL", "paper")
	require.NoError(t, err)
	_, _, err = eng.LogItem("SMALL", "paper")
	require.NoError(t, err)

	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	assert.Equal(t, models.EventStatusChanged, event)
	var ev models.StatusChanged
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "SMALL", ev.Bin.ID)
	assert.Equal(t, models.StatusFull, ev.Bin.Status)
	assert.Equal(t, 2, ev.Bin.TotalItems)
}

func TestSSEHeartbeat(t *testing.T) {
	_, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == ": ping\n" {
			return
		}
	}
}

func TestWebSocketStream(t *testing.T) {
	eng, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return eng.Notifier().Count() == 1 }, time.Second, 5*time.Millisecond)

	_, _, err = eng.Empty("BIN-002")
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev models.StatusChanged
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "BIN-002", ev.Bin.ID)
	assert.Equal(t, models.StatusCollecting, ev.Bin.Status)
}

func TestObserversAndConfig(t *testing.T) {
	eng, ts := newTestServer(t)
	sub, err := eng.Notifier().Attach("relay:test")
	require.NoError(t, err)
	defer eng.Notifier().Detach(sub.ID)

	resp, err := http.Get(ts.URL + "/api/observers")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats []models.ObserverStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "relay:test", stats[0].Name)

	cfgResp, err := http.Get(ts.URL + "/api/config")
	require.NoError(t, err)
	defer cfgResp.Body.Close()
	var cfg RunningConfig
	require.NoError(t, json.NewDecoder(cfgResp.Body).Decode(&cfg))
	assert.Equal(t, "test", cfg.Addr)
}

func TestMetricsAndCORS(t *testing.T) {
	_, ts := newTestServer(t)

	first, err := http.Get(ts.URL + "/api/bins")
	require.NoError(t, err)
	first.Body.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "wastenet_snapshots_served_total")
	assert.Contains(t, string(body), "wastenet_http_request_duration_seconds")

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/log", nil)
	require.NoError(t, err)
	opts, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer opts.Body.Close()
	assert.Equal(t, http.StatusNoContent, opts.StatusCode)
}
