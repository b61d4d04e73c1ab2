package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kratos/kratos/v2/errors"
	kratoshttp "github.com/go-kratos/kratos/v2/transport/http"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
)

const (
	OperationSubmitSnapshot      = "/cpuinfo.collector.v1.CollectorService/SubmitSnapshot"
	OperationGetSnapshot         = "/cpuinfo.collector.v1.CollectorService/GetSnapshot"
	OperationListSnapshots       = "/cpuinfo.collector.v1.CollectorService/ListSnapshots"
	OperationDeleteSnapshot      = "/cpuinfo.collector.v1.CollectorService/DeleteSnapshot"
	OperationGetLatestByHostname = "/cpuinfo.collector.v1.CollectorService/GetLatestByHostname"
	OperationDetectLocal         = "/cpuinfo.collector.v1.CollectorService/DetectLocal"
	OperationPollCommands        = "/cpuinfo.collector.v1.CollectorService/PollCommands"
	OperationRefreshHost         = "/cpuinfo.collector.v1.CollectorService/RefreshHost"
	OperationListAgents          = "/cpuinfo.collector.v1.CollectorService/ListAgents"
)

// RegisterCollectorHTTPServer binds the handler to the collector REST routes.
// Every route runs through the server middleware chain under its operation
// name.
func RegisterCollectorHTTPServer(s *kratoshttp.Server, h *Handler) {
	r := s.Route("/")
	r.POST("/v1/snapshots", submitSnapshotHandler(h))
	r.GET("/v1/snapshots", listSnapshotsHandler(h))
	r.GET("/v1/snapshots/{id}", getSnapshotHandler(h))
	r.DELETE("/v1/snapshots/{id}", deleteSnapshotHandler(h))
	r.GET("/v1/hosts/{hostname}/latest", getLatestByHostnameHandler(h))
	r.POST("/v1/hosts/{hostname}/refresh", refreshHostHandler(h))
	r.GET("/v1/cpu", detectLocalHandler(h))
	r.GET("/v1/agents", listAgentsHandler(h))
	r.GET("/v1/agents/{client_id}/commands", pollCommandsHandler(h))
}

// serve runs call through the middleware chain as operation op and writes
// the reply.
func serve(ctx kratoshttp.Context, op string, req any, call func(context.Context, any) (any, error)) error {
	kratoshttp.SetOperation(ctx, op)
	h := ctx.Middleware(call)
	out, err := h(ctx, req)
	if err != nil {
		return err
	}
	return ctx.Result(http.StatusOK, out)
}

func submitSnapshotHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(kctx kratoshttp.Context) error {
		// The body is decoded behind the auth middleware.
		return serve(kctx, OperationSubmitSnapshot, nil, func(ctx context.Context, _ any) (any, error) {
			var in api.SubmitSnapshotRequest
			if err := kctx.Bind(&in); err != nil {
				return nil, errors.BadRequest("INVALID_ARGUMENT", "decode request body: "+err.Error())
			}
			return h.SubmitSnapshot(ctx, &in)
		})
	}
}

func getSnapshotHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(ctx kratoshttp.Context) error {
		id, err := parseID(ctx.Vars().Get("id"))
		if err != nil {
			return err
		}
		return serve(ctx, OperationGetSnapshot, id, func(ctx context.Context, req any) (any, error) {
			return h.GetSnapshot(ctx, req.(int64))
		})
	}
}

func deleteSnapshotHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(ctx kratoshttp.Context) error {
		id, err := parseID(ctx.Vars().Get("id"))
		if err != nil {
			return err
		}
		return serve(ctx, OperationDeleteSnapshot, id, func(ctx context.Context, req any) (any, error) {
			return h.DeleteSnapshot(ctx, req.(int64))
		})
	}
}

func listSnapshotsHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(ctx kratoshttp.Context) error {
		q := ctx.Query()
		in := api.ListSnapshotsRequest{
			Hostname:   q.Get("hostname"),
			SystemUUID: q.Get("system_uuid"),
			CPUName:    q.Get("cpu_name"),
		}
		var err error
		if in.Page, err = parseInt(q.Get("page"), "page"); err != nil {
			return err
		}
		if in.PageSize, err = parseInt(q.Get("page_size"), "page_size"); err != nil {
			return err
		}
		if in.CollectedAfter, err = parseTime(q.Get("collected_after"), "collected_after"); err != nil {
			return err
		}
		if in.CollectedBefore, err = parseTime(q.Get("collected_before"), "collected_before"); err != nil {
			return err
		}
		return serve(ctx, OperationListSnapshots, &in, func(ctx context.Context, req any) (any, error) {
			return h.ListSnapshots(ctx, req.(*api.ListSnapshotsRequest))
		})
	}
}

func getLatestByHostnameHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(ctx kratoshttp.Context) error {
		hostname := ctx.Vars().Get("hostname")
		return serve(ctx, OperationGetLatestByHostname, hostname, func(ctx context.Context, req any) (any, error) {
			return h.GetLatestByHostname(ctx, req.(string))
		})
	}
}

func refreshHostHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(ctx kratoshttp.Context) error {
		hostname := ctx.Vars().Get("hostname")
		return serve(ctx, OperationRefreshHost, hostname, func(ctx context.Context, req any) (any, error) {
			return h.RefreshHost(ctx, req.(string))
		})
	}
}

func detectLocalHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(ctx kratoshttp.Context) error {
		temperature, _ := strconv.ParseBool(ctx.Query().Get("temperature"))
		return serve(ctx, OperationDetectLocal, temperature, func(ctx context.Context, req any) (any, error) {
			return h.DetectLocal(ctx, req.(bool))
		})
	}
}

func listAgentsHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(ctx kratoshttp.Context) error {
		return serve(ctx, OperationListAgents, nil, func(ctx context.Context, _ any) (any, error) {
			return h.ListAgents(ctx)
		})
	}
}

type pollRequest struct {
	clientID string
	version  string
}

func pollCommandsHandler(h *Handler) kratoshttp.HandlerFunc {
	return func(ctx kratoshttp.Context) error {
		in := pollRequest{clientID: ctx.Vars().Get("client_id"), version: ctx.Query().Get("version")}
		return serve(ctx, OperationPollCommands, in, func(ctx context.Context, req any) (any, error) {
			r := req.(pollRequest)
			return h.PollCommands(ctx, r.clientID, r.version)
		})
	}
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest("INVALID_ARGUMENT", "id must be a positive integer")
	}
	return id, nil
}

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func parseInt(s, name string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.BadRequest("INVALID_ARGUMENT", name+" must be a non-negative integer")
	}
	return n, nil
}

func parseTime(s, name string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.BadRequest("INVALID_ARGUMENT", name+" must be an RFC 3339 timestamp")
	}
	return &t, nil
}
