package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-tangra/go-tangra-cpuinfo/internal/api"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/collector"
	"github.com/go-tangra/go-tangra-cpuinfo/internal/sender"
)

// Config holds daemon-mode configuration.
type Config struct {
	CollectorURL string
	ClientSecret string
	ClientID     string
	Version      string
	// Interval between unsolicited submissions; zero disables them.
	Interval time.Duration
	// PollWait is the collector's long-poll window.
	PollWait    time.Duration
	Temperature bool
}

const (
	baseBackoff = 1 * time.Second
	maxBackoff  = 2 * time.Minute
)

// Daemon submits snapshots and serves collector commands.
type Daemon struct {
	cfg     Config
	collect func(collector.Options) (*collector.Snapshot, error)
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) bool
}

// New returns a daemon that collects from the local host.
func New(cfg Config) *Daemon {
	return &Daemon{cfg: cfg, collect: collector.Collect, logger: slog.Default(), sleep: sleepCtx}
}

// Run performs an initial collect-and-send, then serves commands from the
// collector until the context is cancelled.
func Run(ctx context.Context, cfg Config) error {
	return New(cfg).Run(ctx)
}

// Run performs an initial collect-and-send, then enters a reconnect loop
// that long-polls the collector for commands. When an interval is set, a
// snapshot is also submitted on every tick.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.collectAndSend(ctx); err != nil {
		return fmt.Errorf("initial snapshot submit: %w", err)
	}
	d.logger.Info("Initial snapshot submitted; entering daemon mode")

	if d.cfg.Interval > 0 {
		go d.tickLoop(ctx)
	}
	d.reconnectLoop(ctx)
	return nil
}

func (d *Daemon) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.collectAndSend(ctx); err != nil {
				d.logger.Warn("Periodic submit failed", "error", err)
			}
		}
	}
}

func (d *Daemon) reconnectLoop(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Daemon shutting down")
			return
		default:
		}

		polled, err := d.pollLoop(ctx)
		if ctx.Err() != nil {
			return
		}

		if polled > 0 {
			attempt = 0
		}
		attempt++
		backoff := calcBackoff(attempt)
		d.logger.Warn("Command poll failed; retrying", "attempt", attempt, "error", err, "backoff", backoff)

		if !d.sleep(ctx, backoff) {
			return
		}
	}
}

// pollLoop polls until a poll fails and reports how many polls succeeded.
func (d *Daemon) pollLoop(ctx context.Context) (int, error) {
	c, err := sender.New(ctx, d.cfg.CollectorURL, d.cfg.ClientSecret, sender.PollTimeout(d.cfg.PollWait))
	if err != nil {
		return 0, err
	}
	defer c.Close()

	d.logger.Info("Connected to collector; waiting for commands", "collector", d.cfg.CollectorURL)

	for polled := 0; ; polled++ {
		cmds, err := c.PollCommands(ctx, d.cfg.ClientID, d.cfg.Version)
		if err != nil {
			return polled, err
		}
		for _, cmd := range cmds {
			d.handle(ctx, cmd)
		}
	}
}

func (d *Daemon) handle(ctx context.Context, cmd *api.Command) {
	switch cmd.Type {
	case api.CommandRefresh:
		d.logger.Info("Received refresh command", "command_id", cmd.CommandID)
		if err := d.collectAndSend(ctx); err != nil {
			d.logger.Error("Refresh failed", "error", err)
		} else {
			d.logger.Info("Refresh complete; snapshot re-submitted")
		}
	default:
		d.logger.Warn("Unknown command type, ignoring", "type", cmd.Type, "command_id", cmd.CommandID)
	}
}

func (d *Daemon) collectAndSend(ctx context.Context) error {
	snap, err := d.collect(collector.Options{Temperature: d.cfg.Temperature})
	if err != nil {
		d.logger.Warn("Collect returned partial snapshot", "error", err)
	}

	id, err := sender.Send(ctx, d.cfg.CollectorURL, d.cfg.ClientSecret, snap)
	if err != nil {
		return err
	}
	d.logger.Debug("Snapshot stored", "id", id, "snapshot_id", snap.ID)
	return nil
}

func calcBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	f := float64(baseBackoff) * math.Pow(2, float64(attempt-1))
	if f > float64(maxBackoff) {
		return maxBackoff
	}
	return time.Duration(f)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
