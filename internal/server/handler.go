package server

import (
	"context"
	"database/sql"
	stderrors "errors"
	"log/slog"
	"os"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/google/uuid"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/convert"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/cpu"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/store"
)

// Detector identifies the CPU of the collector host.
type Detector interface {
	Detect(opts cpu.Options) (*cpu.Result, error)
}

// Handler implements the collector service.
type Handler struct {
	store    *store.Store
	agents   *AgentRegistry
	detector Detector
	pollWait time.Duration
	logger   *slog.Logger
}

// NewHandler creates a handler backed by the given store.
func NewHandler(s *store.Store, agents *AgentRegistry, d Detector, pollWait time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, agents: agents, detector: d, pollWait: pollWait, logger: logger}
}

func (h *Handler) SubmitSnapshot(ctx context.Context, req *api.SubmitSnapshotRequest) (*api.SubmitSnapshotResponse, error) {
	if req.Snapshot == nil {
		return nil, errors.BadRequest("INVALID_ARGUMENT", "snapshot is required")
	}
	if req.Snapshot.Hostname == "" {
		return nil, errors.BadRequest("INVALID_ARGUMENT", "hostname is required")
	}
	if req.Snapshot.ID == "" {
		req.Snapshot.ID = uuid.NewString()
	} else if _, err := uuid.Parse(req.Snapshot.ID); err != nil {
		return nil, errors.BadRequest("INVALID_ARGUMENT", "snapshot id must be a UUID")
	}

	rec, err := convert.SnapshotToRecord(req.Snapshot)
	if err != nil {
		return nil, errors.InternalServer("INTERNAL", "convert snapshot: "+err.Error())
	}

	id, storedAt, err := h.store.Insert(ctx, rec)
	if err != nil {
		return nil, errors.InternalServer("INTERNAL", "store snapshot: "+err.Error())
	}

	h.logger.Info("snapshot stored", "id", id, "snapshot_id", rec.SnapshotID, "hostname", rec.Hostname)

	return &api.SubmitSnapshotResponse{
		ID:         id,
		SnapshotID: rec.SnapshotID,
		StoredAt:   storedAt,
	}, nil
}

func (h *Handler) GetSnapshot(ctx context.Context, id int64) (*api.GetSnapshotResponse, error) {
	rec, err := h.store.Get(ctx, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("NOT_FOUND", "snapshot not found").WithMetadata(map[string]string{"id": formatID(id)})
		}
		return nil, errors.InternalServer("INTERNAL", "get snapshot: "+err.Error())
	}
	return toGetResponse(rec)
}

func (h *Handler) ListSnapshots(ctx context.Context, req *api.ListSnapshotsRequest) (*api.ListSnapshotsResponse, error) {
	filter := store.ListFilter{
		Hostname:        req.Hostname,
		SystemUUID:      req.SystemUUID,
		CPUName:         req.CPUName,
		CollectedAfter:  req.CollectedAfter,
		CollectedBefore: req.CollectedBefore,
		PageSize:        req.PageSize,
		Page:            req.Page,
	}

	records, total, err := h.store.List(ctx, filter)
	if err != nil {
		return nil, errors.InternalServer("INTERNAL", "list snapshots: "+err.Error())
	}

	summaries := make([]*api.SnapshotSummary, len(records))
	for i := range records {
		summaries[i] = convert.RecordToSummary(&records[i])
	}

	return &api.ListSnapshotsResponse{
		Snapshots: summaries,
		Total:     total,
		Page:      max(req.Page, 1),
		PageSize:  pageSizeOrDefault(req.PageSize),
	}, nil
}

func (h *Handler) DeleteSnapshot(ctx context.Context, id int64) (*api.Empty, error) {
	err := h.store.Delete(ctx, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("NOT_FOUND", "snapshot not found").WithMetadata(map[string]string{"id": formatID(id)})
		}
		return nil, errors.InternalServer("INTERNAL", "delete snapshot: "+err.Error())
	}
	return &api.Empty{}, nil
}

func (h *Handler) GetLatestByHostname(ctx context.Context, hostname string) (*api.GetSnapshotResponse, error) {
	if hostname == "" {
		return nil, errors.BadRequest("INVALID_ARGUMENT", "hostname is required")
	}

	rec, err := h.store.GetLatestByHostname(ctx, hostname)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("NOT_FOUND", "no snapshot found for hostname "+hostname)
		}
		return nil, errors.InternalServer("INTERNAL", "get latest snapshot: "+err.Error())
	}
	return toGetResponse(rec)
}

// DetectLocal identifies the CPU of the host the collector runs on.
func (h *Handler) DetectLocal(_ context.Context, temperature bool) (*api.DetectResponse, error) {
	if h.detector == nil {
		return nil, errors.ServiceUnavailable("UNAVAILABLE", "local detection is disabled")
	}
	res, err := h.detector.Detect(cpu.Options{Temperature: temperature})
	if err != nil {
		return nil, errors.InternalServer("DETECTION_FAILED", err.Error())
	}
	hostname, _ := os.Hostname()
	return &api.DetectResponse{Hostname: hostname, CPU: res}, nil
}

// PollCommands waits until a command is queued for the agent, the poll
// window ends or the request is cancelled. Commands that are already queued
// are returned together.
func (h *Handler) PollCommands(ctx context.Context, clientID, version string) (*api.PollCommandsResponse, error) {
	if clientID == "" {
		return nil, errors.BadRequest("INVALID_ARGUMENT", "client_id is required")
	}

	ch := h.agents.Acquire(clientID, version)
	defer h.agents.Release(clientID)

	resp := &api.PollCommandsResponse{Commands: []*api.Command{}}

	timer := time.NewTimer(h.pollWait)
	defer timer.Stop()

	select {
	case cmd := <-ch:
		resp.Commands = append(resp.Commands, cmd)
	case <-timer.C:
		return resp, nil
	case <-ctx.Done():
		return resp, nil
	}

	for {
		select {
		case cmd := <-ch:
			resp.Commands = append(resp.Commands, cmd)
		default:
			return resp, nil
		}
	}
}

func (h *Handler) RefreshHost(_ context.Context, hostname string) (*api.RefreshResponse, error) {
	if hostname == "" {
		return nil, errors.BadRequest("INVALID_ARGUMENT", "hostname is required")
	}

	if !h.agents.IsConnected(hostname) {
		return nil, errors.NotFound("AGENT_NOT_CONNECTED", "agent "+hostname+" is not connected")
	}

	cmd := &api.Command{CommandID: uuid.NewString(), Type: api.CommandRefresh}
	if err := h.agents.Send(hostname, cmd); err != nil {
		return nil, errors.InternalServer("INTERNAL", "send refresh command: "+err.Error())
	}

	h.logger.Info("refresh command queued", "command_id", cmd.CommandID, "agent", hostname)

	return &api.RefreshResponse{Sent: true, CommandID: cmd.CommandID}, nil
}

func (h *Handler) ListAgents(_ context.Context) (*api.ListAgentsResponse, error) {
	return &api.ListAgentsResponse{Agents: h.agents.ListConnected()}, nil
}

func toGetResponse(rec *store.SnapshotRecord) (*api.GetSnapshotResponse, error) {
	snap, err := convert.RecordToSnapshot(rec)
	if err != nil {
		return nil, errors.InternalServer("INTERNAL", "decode snapshot: "+err.Error())
	}
	return &api.GetSnapshotResponse{ID: rec.ID, StoredAt: rec.StoredAt, Snapshot: snap}, nil
}

func pageSizeOrDefault(n int) int {
	if n <= 0 {
		return 50
	}
	return n
}
