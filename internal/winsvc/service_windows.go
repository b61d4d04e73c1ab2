//go:build windows

package winsvc

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/eventlog"
	"golang.org/x/sys/windows/svc/mgr"
)

// eventLogWriter forwards each formatted record to the Windows Event Log
// with the event type matching the record level.
type eventLogWriter struct {
	mu    sync.Mutex
	elog  *eventlog.Log
	level slog.Level
}

func (w *eventLogWriter) Write(p []byte) (int, error) {
	msg := string(bytes.TrimRight(p, "\n"))
	var err error
	switch {
	case w.level >= slog.LevelError:
		err = w.elog.Error(3, msg)
	case w.level >= slog.LevelWarn:
		err = w.elog.Warning(2, msg)
	default:
		err = w.elog.Info(1, msg)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// eventLogHandler is a slog text handler whose output goes to the event log.
type eventLogHandler struct {
	w     *eventLogWriter
	inner slog.Handler
}

func (h *eventLogHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

func (h *eventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.w.mu.Lock()
	defer h.w.mu.Unlock()
	h.w.level = r.Level
	return h.inner.Handle(ctx, r)
}

func (h *eventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &eventLogHandler{w: h.w, inner: h.inner.WithAttrs(attrs)}
}

func (h *eventLogHandler) WithGroup(name string) slog.Handler {
	return &eventLogHandler{w: h.w, inner: h.inner.WithGroup(name)}
}

// SetupEventLog opens the named event log source and makes it the default
// slog destination. Event log entries carry their own timestamps, so the
// time attribute is dropped.
func SetupEventLog(name string, level slog.Leveler) {
	elog, err := eventlog.Open(name)
	if err != nil {
		return // fall back to default stderr logging
	}
	w := &eventLogWriter{elog: elog}
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.SetDefault(slog.New(&eventLogHandler{w: w, inner: inner}))
}

// IsWindowsService reports whether the process is running as a
// Windows service.
func IsWindowsService() bool {
	ok, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return ok
}

// serviceHandler implements svc.Handler for a long-running function.
type serviceHandler struct {
	name string
	run  func(ctx context.Context) error
}

func (h *serviceHandler) Execute(args []string, req <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	const accepted = svc.AcceptStop | svc.AcceptShutdown
	status <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- h.run(ctx)
	}()

	status <- svc.Status{State: svc.Running, Accepts: accepted}

	for {
		select {
		case err := <-errCh:
			// run function returned on its own.
			status <- svc.Status{State: svc.StopPending}
			if err != nil {
				slog.Error("Service stopped with error", "service", h.name, "error", err)
				return false, 1
			}
			return false, 0

		case cr := <-req:
			switch cr.Cmd {
			case svc.Interrogate:
				status <- cr.CurrentStatus
			case svc.Stop, svc.Shutdown:
				status <- svc.Status{State: svc.StopPending}
				cancel()
				// Wait for run to finish (with a generous timeout).
				select {
				case <-errCh:
				case <-time.After(StopTimeout):
					slog.Warn("Timed out waiting for graceful shutdown", "service", h.name)
				}
				return false, 0
			}
		}
	}
}

// RunService runs the named Windows service, blocking until the
// service stops.  The run function receives a context that is
// cancelled when the SCM requests a stop.
func RunService(name string, run func(ctx context.Context) error) error {
	return svc.Run(name, &serviceHandler{name: name, run: run})
}

// Install registers service with the Service Control Manager as an
// automatically started exePath and creates its event log source.
func Install(service Service, exePath string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to SCM: %w", err)
	}
	defer m.Disconnect()

	if existing, err := m.OpenService(service.Name); err == nil {
		existing.Close()
		return fmt.Errorf("service %s already exists", service.Name)
	}

	s, err := m.CreateService(service.Name, exePath, mgr.Config{
		DisplayName: service.DisplayName,
		Description: service.Description,
		StartType:   mgr.StartAutomatic,
	}, service.Args()...)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	defer s.Close()

	if err := s.SetRecoveryActions(recoveryActions(), recoveryResetPeriod); err != nil {
		slog.Warn("Could not set recovery actions", "service", service.Name, "error", err)
	}

	if err := eventlog.InstallAsEventCreate(service.Name, eventlog.Error|eventlog.Warning|eventlog.Info); err != nil {
		slog.Warn("Could not install event log source", "service", service.Name, "error", err)
	}
	return nil
}

func recoveryActions() []mgr.RecoveryAction {
	actions := make([]mgr.RecoveryAction, 0, len(restartDelays)+1)
	for _, d := range restartDelays {
		actions = append(actions, mgr.RecoveryAction{Type: mgr.ServiceRestart, Delay: d})
	}
	return append(actions, mgr.RecoveryAction{Type: mgr.NoAction})
}

// Uninstall stops the named service if it runs, waiting up to StopTimeout,
// then deletes it and its event log source.
func Uninstall(name string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to SCM: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(name)
	if err != nil {
		return fmt.Errorf("open service %s: %w", name, err)
	}
	defer s.Close()

	if err := waitStopped(s); err != nil {
		slog.Warn("Service did not stop before removal", "service", name, "error", err)
	}

	if err := s.Delete(); err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	_ = eventlog.Remove(name)
	return nil
}

func waitStopped(s *mgr.Service) error {
	status, err := s.Query()
	if err != nil || status.State == svc.Stopped {
		return err
	}
	if _, err := s.Control(svc.Stop); err != nil {
		return err
	}
	deadline := time.Now().Add(StopTimeout)
	for time.Now().Before(deadline) {
		time.Sleep(500 * time.Millisecond)
		if status, err = s.Query(); err != nil || status.State == svc.Stopped {
			return err
		}
	}
	return fmt.Errorf("still %d after %s", status.State, StopTimeout)
}

// ExePath returns the path to the currently running executable.
func ExePath() (string, error) {
	p, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("executable path: %w", err)
	}
	return p, nil
}
