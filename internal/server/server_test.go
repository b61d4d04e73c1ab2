package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/collector"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/config"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/store"
)

const (
	testAPISecret    = "api-s3cret"
	testClientSecret = "client-s3cret"
)

type stubDetector struct {
	res *cpu.Result
	err error
}

func (d stubDetector) Detect(cpu.Options) (*cpu.Result, error) { return d.res, d.err }

type testServer struct {
	url     string
	handler *Handler
	agents  *AgentRegistry
}

func newTestServer(t *testing.T, apiSecret, clientSecret string, d Detector) *testServer {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "cpuinfo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		HTTPListen:     "127.0.0.1:0",
		PollWait:       200 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
		ApiSecret:      apiSecret,
		ClientSecret:   clientSecret,
	}
	agents := NewAgentRegistry(time.Minute)
	h := NewHandler(db, agents, d, cfg.PollWait, nil)

	ts := httptest.NewServer(NewHTTPServer(cfg, h, nil))
	t.Cleanup(ts.Close)
	return &testServer{url: ts.URL, handler: h, agents: agents}
}

func (s *testServer) do(t *testing.T, method, path string, headers map[string]string, body, out any) int {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.url+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func testSnapshot(id, hostname string, collectedAt time.Time) *collector.Snapshot {
	return &collector.Snapshot{
		ID:          id,
		CollectedAt: collectedAt,
		Hostname:    hostname,
		System:      collector.SystemInfo{Manufacturer: "Dell Inc.", SerialNumber: "SN-" + hostname, UUID: "uuid-" + hostname},
		CPU: &cpu.Result{
			Name:          "Intel(R) Xeon(R) Gold 6338 CPU @ 2.00GHz",
			Vendor:        "GenuineIntel",
			FrequencyMin:  2.0,
			FrequencyMax:  3.2,
			CoresPhysical: 32,
			CoresLogical:  64,
			CoresOnline:   64,
		},
	}
}

var (
	apiKey       = map[string]string{headerAPIKey: testAPISecret}
	clientSecret = map[string]string{headerClientSecret: testClientSecret}
)

func TestSnapshotLifecycle(t *testing.T) {
	s := newTestServer(t, "", "", nil)
	collected := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

	var submitted api.SubmitSnapshotResponse
	req := api.SubmitSnapshotRequest{Snapshot: testSnapshot("9f1c2d7e-4b1a-4c55-8f0e-2a6b3c4d5e6f", "web-01", collected)}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/snapshots", nil, req, &submitted))
	assert.Positive(t, submitted.ID)
	assert.Equal(t, "9f1c2d7e-4b1a-4c55-8f0e-2a6b3c4d5e6f", submitted.SnapshotID)

	// Resubmitting the same snapshot returns the stored row.
	var again api.SubmitSnapshotResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/snapshots", nil, req, &again))
	assert.Equal(t, submitted.ID, again.ID)

	var got api.GetSnapshotResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/snapshots/"+formatID(submitted.ID), nil, nil, &got))
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, "web-01", got.Snapshot.Hostname)
	assert.True(t, got.Snapshot.CollectedAt.Equal(collected))
	require.NotNil(t, got.Snapshot.CPU)
	assert.Equal(t, uint32(32), got.Snapshot.CPU.CoresPhysical)
	assert.InDelta(t, 3.2, got.Snapshot.CPU.FrequencyMax, 1e-9)

	var latest api.GetSnapshotResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/hosts/web-01/latest", nil, nil, &latest))
	assert.Equal(t, submitted.ID, latest.ID)

	var list api.ListSnapshotsResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/snapshots?cpu_name=Xeon", nil, nil, &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 50, list.PageSize)
	require.Len(t, list.Snapshots, 1)
	assert.Equal(t, "SN-web-01", list.Snapshots[0].SystemSerial)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/v1/snapshots/"+formatID(submitted.ID), nil, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/snapshots/"+formatID(submitted.ID), nil, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/v1/snapshots/"+formatID(submitted.ID), nil, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/v1/hosts/web-01/latest", nil, nil, nil))
}

func TestSubmitValidation(t *testing.T) {
	s := newTestServer(t, "", "", nil)

	tests := []struct {
		name string
		req  api.SubmitSnapshotRequest
	}{
		{"missing snapshot", api.SubmitSnapshotRequest{}},
		{"missing hostname", api.SubmitSnapshotRequest{Snapshot: testSnapshot("", "", time.Now())}},
		{"bad id", api.SubmitSnapshotRequest{Snapshot: testSnapshot("not-a-uuid", "web-01", time.Now())}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/v1/snapshots", nil, tt.req, nil))
		})
	}

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/snapshots/abc", nil, nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/snapshots?page=-1", nil, nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/v1/snapshots?collected_after=yesterday", nil, nil, nil))
}

func TestSubmitGeneratesID(t *testing.T) {
	s := newTestServer(t, "", "", nil)

	var resp api.SubmitSnapshotResponse
	req := api.SubmitSnapshotRequest{Snapshot: testSnapshot("", "web-02", time.Now())}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/snapshots", nil, req, &resp))
	assert.Len(t, resp.SnapshotID, 36)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t, testAPISecret, testClientSecret, nil)
	submit := api.SubmitSnapshotRequest{Snapshot: testSnapshot("", "web-01", time.Now())}

	tests := []struct {
		name    string
		method  string
		path    string
		headers map[string]string
		body    any
		want    int
	}{
		{"submit without credentials", http.MethodPost, "/v1/snapshots", nil, submit, http.StatusUnauthorized},
		{"submit with client secret", http.MethodPost, "/v1/snapshots", clientSecret, submit, http.StatusOK},
		{"submit with api key", http.MethodPost, "/v1/snapshots", apiKey, submit, http.StatusOK},
		{"undecodable submit without credentials", http.MethodPost, "/v1/snapshots", nil, "not a snapshot", http.StatusUnauthorized},
		{"undecodable submit with client secret", http.MethodPost, "/v1/snapshots", clientSecret, "not a snapshot", http.StatusBadRequest},
		{"submit with wrong secret", http.MethodPost, "/v1/snapshots", map[string]string{headerClientSecret: "nope"}, submit, http.StatusUnauthorized},
		{"list without credentials", http.MethodGet, "/v1/snapshots", nil, nil, http.StatusUnauthorized},
		{"list with wrong api key", http.MethodGet, "/v1/snapshots", map[string]string{headerAPIKey: "nope"}, nil, http.StatusUnauthorized},
		{"list with client secret", http.MethodGet, "/v1/snapshots", clientSecret, nil, http.StatusForbidden},
		{"list with api key", http.MethodGet, "/v1/snapshots", apiKey, nil, http.StatusOK},
		{"agents with client secret", http.MethodGet, "/v1/agents", clientSecret, nil, http.StatusForbidden},
		{"refresh with client secret", http.MethodPost, "/v1/hosts/web-01/refresh", clientSecret, nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(t, tt.method, tt.path, tt.headers, tt.body, nil))
		})
	}
}

func TestAuthOpenAgentOperations(t *testing.T) {
	s := newTestServer(t, testAPISecret, "", nil)
	submit := api.SubmitSnapshotRequest{Snapshot: testSnapshot("", "web-01", time.Now())}

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/snapshots", nil, submit, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/v1/snapshots", nil, nil, nil))
}

func TestDetectLocal(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, "", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/v1/cpu", nil, nil, nil))
	})

	t.Run("enabled", func(t *testing.T) {
		s := newTestServer(t, "", "", stubDetector{res: &cpu.Result{Name: "AMD EPYC 7763 64-Core Processor", CoresPhysical: 64}})
		var resp api.DetectResponse
		require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/cpu?temperature=true", nil, nil, &resp))
		require.NotNil(t, resp.CPU)
		assert.Equal(t, "AMD EPYC 7763 64-Core Processor", resp.CPU.Name)
		assert.Equal(t, uint32(64), resp.CPU.CoresPhysical)
	})

	t.Run("failure", func(t *testing.T) {
		s := newTestServer(t, "", "", stubDetector{err: errors.New("topology: no data")})
		assert.Equal(t, http.StatusInternalServerError, s.do(t, http.MethodGet, "/v1/cpu", nil, nil, nil))
	})
}

func TestRefreshNotConnected(t *testing.T) {
	s := newTestServer(t, "", "", nil)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/v1/hosts/web-01/refresh", nil, nil, nil))
}

func TestPollCommandsEmpty(t *testing.T) {
	s := newTestServer(t, "", "", nil)

	var resp api.PollCommandsResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/agents/web-01/commands?version=1.0.0", nil, nil, &resp))
	assert.Empty(t, resp.Commands)

	var agents api.ListAgentsResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/v1/agents", nil, nil, &agents))
	require.Len(t, agents.Agents, 1)
	assert.Equal(t, "web-01", agents.Agents[0].ClientID)
	assert.Equal(t, "1.0.0", agents.Agents[0].Version)
}

func TestRefreshDeliveredToPoll(t *testing.T) {
	s := newTestServer(t, "", "", nil)
	s.handler.pollWait = 5 * time.Second

	type pollResult struct {
		resp api.PollCommandsResponse
		code int
	}
	done := make(chan pollResult, 1)
	go func() {
		var r pollResult
		r.code = s.do(t, http.MethodGet, "/v1/agents/web-01/commands", nil, nil, &r.resp)
		done <- r
	}()

	require.Eventually(t, func() bool { return s.agents.IsConnected("web-01") }, 2*time.Second, 10*time.Millisecond)

	var refresh api.RefreshResponse
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/hosts/web-01/refresh", nil, nil, &refresh))
	assert.True(t, refresh.Sent)

	select {
	case r := <-done:
		require.Equal(t, http.StatusOK, r.code)
		require.Len(t, r.resp.Commands, 1)
		assert.Equal(t, refresh.CommandID, r.resp.Commands[0].CommandID)
		assert.Equal(t, api.CommandRefresh, r.resp.Commands[0].Type)
	case <-time.After(4 * time.Second):
		t.Fatal("poll did not return the refresh command")
	}
}

func TestPollCommandsCancelled(t *testing.T) {
	h := NewHandler(nil, NewAgentRegistry(time.Minute), nil, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := h.PollCommands(ctx, "web-01", "1")
	require.NoError(t, err)
	assert.Empty(t, resp.Commands)
	assert.True(t, h.agents.IsConnected("web-01"))
}
