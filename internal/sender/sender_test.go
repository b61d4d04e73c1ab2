package sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/collector"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
)

func TestSend(t *testing.T) {
	var got api.SubmitSnapshotRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/snapshots", r.URL.Path)
		assert.Equal(t, "s3cret", r.Header.Get("X-Client-Secret"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.SubmitSnapshotResponse{ID: 42, SnapshotID: got.Snapshot.ID, StoredAt: time.Now().UTC()})
	}))
	defer srv.Close()

	snap := &collector.Snapshot{
		ID:       "0b5a3c2e-6d39-4f7d-9a55-0f8c2f7f2a11",
		Hostname: "web-01",
		CPU:      &cpu.Result{Name: "Intel(R) Core(TM) i7-8700 CPU @ 3.20GHz", CoresPhysical: 6},
	}
	id, err := Send(context.Background(), srv.URL, "s3cret", snap)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, snap.ID, got.Snapshot.ID)
	assert.Equal(t, uint32(6), got.Snapshot.CPU.CoresPhysical)
}

func TestSendWithoutSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("X-Client-Secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	_, err := Send(context.Background(), srv.URL, "", &collector.Snapshot{Hostname: "h"})
	require.NoError(t, err)
}

func TestSendRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":401,"reason":"UNAUTHENTICATED","message":"missing or invalid X-Client-Secret"}`))
	}))
	defer srv.Close()

	_, err := Send(context.Background(), srv.URL, "wrong", &collector.Snapshot{Hostname: "h"})
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorized(err))
}

func TestPollCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/agents/web 01/commands", r.URL.Path)
		assert.Equal(t, "1.2.3", r.URL.Query().Get("version"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"commands":[{"command_id":"c1","type":"REFRESH"}]}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), srv.URL, "", PollTimeout(time.Second))
	require.NoError(t, err)
	defer c.Close()

	cmds, err := c.PollCommands(context.Background(), "web 01", "1.2.3")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, api.CommandRefresh, cmds[0].Type)
	assert.Equal(t, "c1", cmds[0].CommandID)
}
