package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(staleAfter time.Duration) (*AgentRegistry, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)}
	r := NewAgentRegistry(staleAfter)
	r.now = clock.now
	return r, clock
}

func TestRegistrySendToUnknownAgent(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	err := r.Send("web-01", &api.Command{CommandID: "c1", Type: api.CommandRefresh})
	assert.ErrorContains(t, err, "not connected")
	assert.False(t, r.IsConnected("web-01"))
}

func TestRegistryQueuesBetweenPolls(t *testing.T) {
	r, clock := newTestRegistry(time.Minute)

	ch := r.Acquire("web-01", "1.0.0")
	r.Release("web-01")

	clock.advance(30 * time.Second)
	require.True(t, r.IsConnected("web-01"))
	require.NoError(t, r.Send("web-01", &api.Command{CommandID: "c1", Type: api.CommandRefresh}))

	again := r.Acquire("web-01", "1.0.1")
	defer r.Release("web-01")
	assert.Equal(t, ch, again)

	select {
	case cmd := <-again:
		assert.Equal(t, "c1", cmd.CommandID)
	default:
		t.Fatal("queued command lost between polls")
	}

	agents := r.ListConnected()
	require.Len(t, agents, 1)
	assert.Equal(t, "1.0.1", agents[0].Version)
}

func TestRegistryStaleAgents(t *testing.T) {
	r, clock := newTestRegistry(time.Minute)

	r.Acquire("polling", "1")
	r.Acquire("gone", "1")
	r.Release("gone")

	clock.advance(2 * time.Minute)

	assert.True(t, r.IsConnected("polling"))
	assert.False(t, r.IsConnected("gone"))
	assert.Error(t, r.Send("gone", &api.Command{CommandID: "c1"}))

	agents := r.ListConnected()
	require.Len(t, agents, 1)
	assert.Equal(t, "polling", agents[0].ClientID)

	assert.Equal(t, 1, r.Prune())
	assert.Equal(t, 0, r.Prune())

	// A returning agent is connected anew.
	r.Acquire("gone", "2")
	agents = r.ListConnected()
	require.Len(t, agents, 2)
	assert.Equal(t, "gone", agents[0].ClientID)
	assert.Equal(t, clock.t, agents[0].ConnectedAt)
}

func TestRegistryQueueFull(t *testing.T) {
	r, _ := newTestRegistry(time.Minute)
	r.Acquire("web-01", "1")
	defer r.Release("web-01")

	for i := 0; i < commandChannelBufferSize; i++ {
		require.NoError(t, r.Send("web-01", &api.Command{Type: api.CommandRefresh}))
	}
	assert.ErrorContains(t, r.Send("web-01", &api.Command{Type: api.CommandRefresh}), "full")
}
