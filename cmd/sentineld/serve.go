package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sentineld/internal/apperr"
	"github.com/haasonsaas/sentineld/internal/channel"
	"github.com/haasonsaas/sentineld/internal/channel/slack"
	"github.com/haasonsaas/sentineld/internal/channel/telegram"
	"github.com/haasonsaas/sentineld/internal/config"
	"github.com/haasonsaas/sentineld/internal/costledger"
	"github.com/haasonsaas/sentineld/internal/cron"
	"github.com/haasonsaas/sentineld/internal/gateway"
	"github.com/haasonsaas/sentineld/internal/heartbeat"
	"github.com/haasonsaas/sentineld/internal/identity"
	"github.com/haasonsaas/sentineld/internal/journal"
	"github.com/haasonsaas/sentineld/internal/observability"
	"github.com/haasonsaas/sentineld/internal/panel"
	"github.com/haasonsaas/sentineld/internal/provider"
	"github.com/haasonsaas/sentineld/internal/provider/anthropic"
	"github.com/haasonsaas/sentineld/internal/provider/openai"
	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/internal/tool"
	"github.com/haasonsaas/sentineld/internal/tool/builtin"
	"github.com/haasonsaas/sentineld/pkg/model"
)

func buildServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sentineld daemon",
		Long: `Start the sentineld daemon with all configured providers, the
heartbeat scheduler, the cron scheduler, channel pollers, and the HTTP
control panel.

Boot order (spec §4.10):
1. Migrate the data directory
2. Acquire the PID lock (taking over a stale instance if found)
3. Bind the HTTP control panel to loopback
4. Start channel pollers (non-fatal on failure)
5. Start the heartbeat timer
6. Start the cron timer
7. Watch for config hot-reload

Graceful shutdown runs on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "sentineld.yaml", "Path to YAML configuration file")
	return cmd
}

// resolveCredential looks up a named credential for constructing a
// provider. Concrete credential storage is an external collaborator (spec
// §1: "credential vault adapter (OS keychain)"); this falls back to the
// environment variable convention the teacher documents
// (ANTHROPIC_API_KEY, OPENAI_API_KEY) so the daemon can actually run
// without that external vault wired in.
func resolveCredential(name string) string {
	switch name {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	default:
		return os.Getenv(name)
	}
}

func buildProvider(pc config.ProviderConfig) (provider.Provider, error) {
	apiKey := resolveCredential(pc.CredentialKey)
	switch pc.Kind {
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: apiKey, Model: pc.Model, BaseURL: pc.BaseURL}), nil
	case "openai":
		return openai.New(openai.Config{APIKey: apiKey, Model: pc.Model, BaseURL: pc.BaseURL}), nil
	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Kind)
	}
}

func buildProviderRegistry(cfg config.Config) (*provider.Registry, error) {
	providers := make(map[model.Role]provider.Provider, len(cfg.LLM.Roles))
	for role, pc := range cfg.LLM.Roles {
		p, err := buildProvider(pc)
		if err != nil {
			return nil, fmt.Errorf("provider for role %q: %w", role, err)
		}
		providers[model.Role(role)] = p
	}
	return provider.NewRegistry(providers), nil
}

// classifyProviderError labels the ProviderErrors metric by error kind,
// distinguishing a provider wire failure (spec §7's apperr.ProviderWireError)
// from everything else (context cancellation, programmer error).
func classifyProviderError(err error) string {
	var wireErr *apperr.ProviderWireError
	if errors.As(err, &wireErr) {
		return "wire"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "context"
	}
	return "other"
}

func cronJobFromConfig(jc config.CronJobConfig) *model.CronJob {
	return &model.CronJob{
		ID:       jc.ID,
		Name:     jc.Name,
		Schedule: jc.Schedule,
		Prompt:   jc.Prompt,
		Enabled:  jc.Enabled,
		Timezone: jc.Timezone,
		WakeMode: model.WakeMode(jc.WakeMode),
		Role:     model.Role(jc.Role),
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.New(observability.LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	slog.SetDefault(logger.Logger)
	slog.Info("starting sentineld", "version", version, "commit", commit, "config", configPath)

	dataDir := cfg.Workspace.Path
	if err := gateway.MigrateDataDir(dataDir); err != nil {
		return fmt.Errorf("migrate data dir: %w", err)
	}

	reg, err := buildProviderRegistry(cfg)
	if err != nil {
		return fmt.Errorf("build provider registry: %w", err)
	}

	ledger, err := costledger.New(filepath.Join(dataDir, "cost-log.json"), time.Now)
	if err != nil {
		return fmt.Errorf("open cost ledger: %w", err)
	}

	metrics := observability.NewMetrics()
	ledger.OnRecord = func(role string, todayTotalUsd float64) {
		metrics.CostLedgerUsd.WithLabelValues(role).Set(todayTotalUsd)
	}

	toolRegistry := tool.NewRegistry()
	toolRegistry.OnExecute = func(name string, isError bool) {
		outcome := "ok"
		if isError {
			outcome = "error"
		}
		metrics.ToolExecutions.WithLabelValues(name, outcome).Inc()
	}
	sessStore := session.NewStore(dataDir)

	jrnl := journal.New(filepath.Join(dataDir, "journal"), time.Now)
	if err := builtin.Register(toolRegistry, jrnl, sessStore); err != nil {
		return fmt.Errorf("register built-in tools: %w", err)
	}
	composer := &identity.Composer{
		Journal: jrnl,
		Now:     time.Now,
		Rules:   "Respond concisely. Prefer taking action over asking clarifying questions when the intent is unambiguous.",
	}
	engine := session.NewEngine(reg, toolRegistry, ledger, sessStore, composer)
	engine.OnRound = func(role model.Role) { metrics.SessionRounds.WithLabelValues(string(role)).Inc() }
	engine.OnProviderCall = func(providerName string, dialect model.Dialect, d time.Duration, err error) {
		metrics.ProviderLatency.WithLabelValues(providerName, string(dialect)).Observe(d.Seconds())
		if err != nil {
			metrics.ProviderErrors.WithLabelValues(providerName, classifyProviderError(err)).Inc()
		}
	}
	refreshComposerToolsIndex(composer, toolRegistry)

	cronStore := cron.NewStore(dataDir)
	sched, err := cron.New(cronStore, engine)
	if err != nil {
		return fmt.Errorf("init cron scheduler: %w", err)
	}
	sched.OnFire = func(jobID string) { metrics.CronFires.WithLabelValues(jobID).Inc() }
	for _, jc := range cfg.Cron.Jobs {
		if err := sched.RegisterJob(cronJobFromConfig(jc)); err != nil {
			slog.Warn("skipping invalid cron job", "id", jc.ID, "error", err)
		}
	}

	inboxDir := filepath.Join(dataDir, cfg.Heartbeat.InboxDir)
	if err := os.MkdirAll(inboxDir, 0o700); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	inboxWatcher, err := heartbeat.NewInboxWatcher(inboxDir)
	if err != nil {
		slog.Warn("inbox watcher not started, falling back to per-tick scan", "error", err)
	}

	pipeline := &heartbeat.Pipeline{
		Journal:       jrnl,
		InboxDir:      inboxDir,
		InboxWatcher:  inboxWatcher,
		GitHubCLIPath: cfg.Heartbeat.GitHubCLIPath,
		IdleHourStart: cfg.Heartbeat.IdleHourStart,
		IdleHourEnd:   cfg.Heartbeat.IdleHourEnd,
		IdleAfter:     time.Duration(cfg.Heartbeat.IdleAfterMinutes) * time.Minute,
		Providers:     reg,
		Sessions:      engine,
		State:         heartbeat.NewStateStore(dataDir),
		Audit:         heartbeat.NewAuditStore(dataDir),
		OnTick:        metrics.HeartbeatTicks.Inc,
	}

	pollers, err := buildPollers(cfg, dataDir, engine)
	if err != nil {
		return fmt.Errorf("build channel pollers: %w", err)
	}

	cfgStore := config.NewStore(cfg)
	logRing := gateway.NewLogRing()

	panelHandler := panel.NewMux(&panel.Handler{
		Config:         cfgStore,
		Sessions:       engine,
		SessionStore:   sessStore,
		Tools:          toolRegistry,
		Ledger:         ledger,
		Heartbeat:      pipeline,
		HeartbeatState: pipeline.State,
		HeartbeatAudit: pipeline.Audit,
		Cron:           sched,
		Log:            logRing,
		ChatRole:       model.RoleDefault,
		StartedAt:      time.Now(),
		Metrics:        metrics,
		Auth:           panel.NewAuth(cfg.Server.PanelPassphrase),
	})

	supervisor := &gateway.Supervisor{
		DataDir:      dataDir,
		Config:       cfgStore,
		PanelHandler: panelHandler,
		Pollers:      pollers,
		Heartbeat:    pipeline,
		Cron:         sched,
		Log:          logRing,
	}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := supervisor.Start(runCtx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}
	slog.Info("sentineld started", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))

	<-runCtx.Done()
	slog.Info("shutdown signal received, stopping gateway")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := supervisor.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop gateway: %w", err)
	}
	if inboxWatcher != nil {
		_ = inboxWatcher.Close()
	}
	slog.Info("sentineld stopped gracefully")
	return nil
}

// refreshComposerToolsIndex populates the composer's custom-tools index
// from whatever is registered at startup (spec §4.4's "custom-tools
// index"). Tools registered later via hot-reload are not reflected here;
// no SPEC_FULL component re-derives it on change.
func refreshComposerToolsIndex(composer *identity.Composer, tools *tool.Registry) {
	var names []string
	for _, d := range tools.All() {
		if !d.Builtin {
			names = append(names, d.Name)
		}
	}
	composer.CustomTools = names
}

func buildPollers(cfg config.Config, dataDir string, engine *session.Engine) ([]channel.Poller, error) {
	var pollers []channel.Poller
	for _, cc := range cfg.Channels {
		convStore, err := channel.NewConversationStore(dataDir, cc.Kind)
		if err != nil {
			return nil, fmt.Errorf("conversation store for %q: %w", cc.Kind, err)
		}
		handler := &channel.Handler{
			Sessions:      engine,
			Conversations: convStore,
			Allowlist:     channel.NewAllowlist(cc.Allowlist),
			Role:          model.RoleDefault,
			EditInterval:  1200 * time.Millisecond,
		}

		switch cc.Kind {
		case "telegram":
			adapter, err := telegram.New(telegram.Config{Token: cc.Token}, handler)
			if err != nil {
				slog.Warn("telegram poller not started", "error", err)
				continue
			}
			pollers = append(pollers, adapter)
		case "slack":
			adapter, err := slack.New(slack.Config{BotToken: cc.Token, AppToken: cc.AppToken}, handler)
			if err != nil {
				slog.Warn("slack poller not started", "error", err)
				continue
			}
			pollers = append(pollers, adapter)
		default:
			slog.Warn("unknown channel kind, skipping", "kind", cc.Kind)
		}
	}
	return pollers, nil
}
