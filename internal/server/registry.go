package server

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
)

const commandChannelBufferSize = 16

// connectedAgent holds the command queue and metadata of a polling agent.
type connectedAgent struct {
	ch          chan *api.Command
	version     string
	connectedAt time.Time
	lastSeen    time.Time
	polling     int
}

// AgentRegistry tracks agents that long-poll for commands. An agent counts as
// connected while it is polling or for staleAfter since its last poll.
type AgentRegistry struct {
	mu         sync.RWMutex
	agents     map[string]*connectedAgent
	staleAfter time.Duration
	now        func() time.Time
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry(staleAfter time.Duration) *AgentRegistry {
	return &AgentRegistry{
		agents:     make(map[string]*connectedAgent),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Acquire marks the start of a poll and returns the agent's command queue.
// Commands queued between polls stay in the queue. Every Acquire must be
// paired with a Release.
func (r *AgentRegistry) Acquire(clientID, version string) <-chan *api.Command {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	a, ok := r.agents[clientID]
	if !ok || !r.live(a, now) {
		var ch chan *api.Command
		if ok {
			ch = a.ch
		} else {
			ch = make(chan *api.Command, commandChannelBufferSize)
		}
		a = &connectedAgent{ch: ch, connectedAt: now}
		r.agents[clientID] = a
	}
	a.version = version
	a.lastSeen = now
	a.polling++
	return a.ch
}

// Release marks the end of a poll.
func (r *AgentRegistry) Release(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.agents[clientID]; ok {
		a.lastSeen = r.now()
		if a.polling > 0 {
			a.polling--
		}
	}
}

func (r *AgentRegistry) live(a *connectedAgent, now time.Time) bool {
	return a.polling > 0 || now.Sub(a.lastSeen) <= r.staleAfter
}

// Send queues a command for a connected agent. It fails when the agent is
// not connected or its queue is full.
func (r *AgentRegistry) Send(clientID string, cmd *api.Command) error {
	r.mu.RLock()
	a, ok := r.agents[clientID]
	live := ok && r.live(a, r.now())
	r.mu.RUnlock()

	if !live {
		return fmt.Errorf("agent %s not connected", clientID)
	}

	select {
	case a.ch <- cmd:
		return nil
	default:
		return fmt.Errorf("command queue of agent %s is full", clientID)
	}
}

// IsConnected checks whether an agent polled recently.
func (r *AgentRegistry) IsConnected(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[clientID]
	return ok && r.live(a, r.now())
}

// ListConnected returns the connected agents ordered by client ID.
func (r *AgentRegistry) ListConnected() []*api.ConnectedAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	result := make([]*api.ConnectedAgent, 0, len(r.agents))
	for id, a := range r.agents {
		if !r.live(a, now) {
			continue
		}
		result = append(result, &api.ConnectedAgent{
			ClientID:    id,
			Version:     a.version,
			ConnectedAt: a.connectedAt,
			LastSeen:    a.lastSeen,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ClientID < result[j].ClientID })
	return result
}

// Prune forgets agents that have been gone for longer than staleAfter and
// returns how many were removed. Queued commands of pruned agents are lost.
func (r *AgentRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for id, a := range r.agents {
		if !r.live(a, now) {
			delete(r.agents, id)
			n++
		}
	}
	return n
}
