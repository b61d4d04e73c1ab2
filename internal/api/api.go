// Package api holds the request and response bodies of the collector REST API.
package api

import (
	"time"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/collector"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
)

// SubmitSnapshotRequest is the body of POST /v1/snapshots.
type SubmitSnapshotRequest struct {
	Snapshot *collector.Snapshot `json:"snapshot"`
}

// SubmitSnapshotResponse reports where a submitted snapshot was stored.
type SubmitSnapshotResponse struct {
	ID         int64     `json:"id"`
	SnapshotID string    `json:"snapshot_id"`
	StoredAt   time.Time `json:"stored_at"`
}

// SnapshotSummary is a list entry without the full snapshot body.
type SnapshotSummary struct {
	ID           int64     `json:"id"`
	SnapshotID   string    `json:"snapshot_id"`
	Hostname     string    `json:"hostname"`
	SystemUUID   string    `json:"system_uuid"`
	SystemSerial string    `json:"system_serial"`
	CPUName      string    `json:"cpu_name"`
	CollectedAt  time.Time `json:"collected_at"`
	StoredAt     time.Time `json:"stored_at"`
}

// ListSnapshotsResponse is one page of snapshot summaries.
type ListSnapshotsResponse struct {
	Snapshots []*SnapshotSummary `json:"snapshots"`
	Total     int                `json:"total"`
	Page      int                `json:"page"`
	PageSize  int                `json:"page_size"`
}

// GetSnapshotResponse is a stored snapshot with its storage metadata.
type GetSnapshotResponse struct {
	ID       int64               `json:"id"`
	StoredAt time.Time           `json:"stored_at"`
	Snapshot *collector.Snapshot `json:"snapshot"`
}

// DetectResponse is the CPU of the collector host itself.
type DetectResponse struct {
	Hostname string      `json:"hostname"`
	CPU      *cpu.Result `json:"cpu"`
}

// ListSnapshotsRequest filters GET /v1/snapshots.
type ListSnapshotsRequest struct {
	Hostname        string
	SystemUUID      string
	CPUName         string
	CollectedAfter  *time.Time
	CollectedBefore *time.Time
	Page            int
	PageSize        int
}

// CommandType identifies what an agent is asked to do.
type CommandType string

const (
	CommandRefresh CommandType = "REFRESH"
)

// Command is queued for an agent by the collector.
type Command struct {
	CommandID string      `json:"command_id"`
	Type      CommandType `json:"type"`
}

// PollCommandsResponse carries the commands queued for an agent.
type PollCommandsResponse struct {
	Commands []*Command `json:"commands"`
}

// RefreshResponse reports the queued refresh command.
type RefreshResponse struct {
	Sent      bool   `json:"sent"`
	CommandID string `json:"command_id"`
}

// ConnectedAgent describes an agent that polled recently.
type ConnectedAgent struct {
	ClientID    string    `json:"client_id"`
	Version     string    `json:"version"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// ListAgentsResponse lists the connected agents.
type ListAgentsResponse struct {
	Agents []*ConnectedAgent `json:"agents"`
}

// Empty is the body of responses without content.
type Empty struct{}
