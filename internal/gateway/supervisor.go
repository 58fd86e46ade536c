package gateway

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/sentineld/internal/channel"
	"github.com/haasonsaas/sentineld/internal/config"
	"github.com/haasonsaas/sentineld/internal/cron"
	"github.com/haasonsaas/sentineld/internal/heartbeat"
)

// dataSubdirs are created (idempotently) by MigrateDataDir (spec §4.10
// step 1). New subdirectories introduced by later versions are added here,
// never removed, so upgrades never lose existing state.
var dataSubdirs = []string{"sessions", "inbox", "journal"}

// MigrateDataDir ensures the on-disk layout exists. It is safe to call on
// every boot: os.MkdirAll is a no-op when the directory already exists.
func MigrateDataDir(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return err
	}
	for _, sub := range dataSubdirs {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o700); err != nil {
			return err
		}
	}
	return nil
}

// Supervisor owns the gateway boot sequence and graceful shutdown
// described in spec §4.10: PID lock, HTTP panel, channel pollers, the
// heartbeat and cron timers, and signal handling.
//
// Grounded on internal/gateway/lifecycle.go's Start/Stop staged sequencing
// of the teacher repo, narrowed to the four in-scope subsystems.
type Supervisor struct {
	DataDir      string
	Config       *config.Store
	PanelHandler http.Handler
	Pollers      []channel.Poller
	Heartbeat    *heartbeat.Pipeline
	Cron         *cron.Scheduler
	Log          *LogRing
	Clock        func() time.Time

	lock       *Lock
	listener   net.Listener
	httpServer *http.Server

	heartbeatMu     sync.Mutex
	heartbeatCancel context.CancelFunc

	cronCancel context.CancelFunc

	heartbeatInFlight atomic.Bool
}

func (s *Supervisor) logf(level, msg string) {
	now := time.Now
	if s.Clock != nil {
		now = s.Clock
	}
	if s.Log != nil {
		s.Log.Append(LogEntry{At: now(), Level: level, Message: msg})
	}
}

// Start executes the spec §4.10 boot order. It returns once the HTTP panel,
// pollers, and timers are running; it does not block for the process
// lifetime (the caller installs signal handling around ctx).
func (s *Supervisor) Start(ctx context.Context) error {
	// 1. Migrate data directory.
	if err := MigrateDataDir(s.DataDir); err != nil {
		return err
	}

	// 2. Stale PID file check + takeover.
	lock, err := AcquirePIDLock(s.DataDir)
	if err != nil {
		return err
	}
	s.lock = lock

	// 3. HTTP panel bound to loopback.
	cfg := s.Config.Get()
	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.PanelHandler}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logf("error", "panel server stopped: "+err.Error())
		}
	}()
	s.logf("info", "panel listening on "+addr)

	// 4. Channel pollers, non-fatal on failure.
	for _, p := range s.Pollers {
		if err := p.Start(ctx); err != nil {
			s.logf("warn", "channel poller "+p.Type()+" failed to start: "+err.Error())
		}
	}

	// 5. Heartbeat timer, first run after ~5s.
	s.startHeartbeat(ctx, time.Duration(cfg.Heartbeat.IntervalSeconds)*time.Second, 5*time.Second)

	// 6. Cron timer at 60s cadence, first tick after ~10s.
	if s.Cron != nil {
		s.Cron.Start(ctx)
		go func() {
			select {
			case <-time.After(10 * time.Second):
				s.Cron.RunOnce(ctx)
			case <-ctx.Done():
			}
		}()
	}

	// Hot reload: react to heartbeat interval changes without a restart.
	go s.watchConfig(ctx)

	return nil
}

// watchConfig implements spec §4.10's hot-reload clause: a new heartbeat
// interval cancels the running timer and starts a fresh one, no restart.
func (s *Supervisor) watchConfig(ctx context.Context) {
	updates := s.Config.Subscribe()
	lastInterval := s.Config.Get().Heartbeat.IntervalSeconds
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			if cfg.Heartbeat.IntervalSeconds != lastInterval {
				lastInterval = cfg.Heartbeat.IntervalSeconds
				s.startHeartbeat(ctx, time.Duration(cfg.Heartbeat.IntervalSeconds)*time.Second, 0)
			}
		}
	}
}

func (s *Supervisor) startHeartbeat(ctx context.Context, interval, initialDelay time.Duration) {
	s.heartbeatMu.Lock()
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
	}
	hbCtx, cancel := context.WithCancel(ctx)
	s.heartbeatCancel = cancel
	s.heartbeatMu.Unlock()

	if s.Heartbeat == nil || interval <= 0 {
		return
	}

	go func() {
		if initialDelay > 0 {
			select {
			case <-time.After(initialDelay):
			case <-hbCtx.Done():
				return
			}
			s.tickHeartbeat(hbCtx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				s.tickHeartbeat(hbCtx)
			}
		}
	}()
}

// tickHeartbeat drops a reentrant tick instead of queuing it (spec §5:
// "a second tick attempted while one is in flight is dropped").
func (s *Supervisor) tickHeartbeat(ctx context.Context) {
	if !s.heartbeatInFlight.CompareAndSwap(false, true) {
		s.logf("warn", "heartbeat tick dropped: previous tick still in flight")
		return
	}
	defer s.heartbeatInFlight.Store(false)

	if err := s.Heartbeat.Tick(ctx); err != nil {
		s.logf("error", "heartbeat tick failed: "+err.Error())
	}
}

// Stop implements spec §4.10's graceful shutdown: stop timers, cancel
// pollers, close the HTTP listener after in-flight requests finish, and
// remove the PID file.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.heartbeatMu.Lock()
	if s.heartbeatCancel != nil {
		s.heartbeatCancel()
	}
	s.heartbeatMu.Unlock()

	if s.Cron != nil {
		s.Cron.Stop()
	}

	for _, p := range s.Pollers {
		if err := p.Stop(ctx); err != nil {
			s.logf("warn", "channel poller "+p.Type()+" failed to stop cleanly: "+err.Error())
		}
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logf("error", "panel shutdown error: "+err.Error())
		}
	}

	return s.lock.Release()
}
