// cmd/sal/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/FairForge/sal/internal/alerting"
	"github.com/FairForge/sal/internal/api"
	"github.com/FairForge/sal/internal/audit"
	"github.com/FairForge/sal/internal/config"
	"github.com/FairForge/sal/internal/crypto"
	"github.com/FairForge/sal/internal/engine"
	"github.com/FairForge/sal/internal/logging"
	"github.com/FairForge/sal/internal/metrics"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Getenv(config.EnvConfig))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("sal exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	prom := metrics.NewPrometheus("sal")
	recorder := alerting.NewRecorder(cfg.Alerting.RecorderSize)

	alerters := alerting.Multi{alerting.NewLogAlerter(logger), recorder}
	if cfg.Alerting.WebhookURL != "" {
		minSeverity, err := alerting.ParseSeverity(cfg.Alerting.MinSeverity)
		if err != nil {
			return err
		}
		alerters = append(alerters, alerting.NewWebhookAlerter(cfg.Alerting.WebhookURL,
			alerting.WithMinSeverity(minSeverity)))
	}

	archiver, archiveCloser, err := buildArchiver(cfg.Audit)
	if err != nil {
		return fmt.Errorf("audit archive: %w", err)
	}
	if archiveCloser != nil {
		defer func() { _ = archiveCloser.Close() }()
	}
	auditOpts := []audit.Option{
		audit.WithMaxEvents(cfg.Audit.MaxEvents),
		audit.WithComponent(cfg.Audit.Component),
		audit.WithLogger(logger.Named("audit")),
	}
	if archiver != nil {
		auditOpts = append(auditOpts, audit.WithArchiver(archiver))
	}
	auditLog := audit.NewLogger(auditOpts...)

	policies, err := cfg.RoutingPolicies()
	if err != nil {
		return err
	}

	opts := []engine.Option{
		engine.WithRouter(engine.NewRouter(logger.Named("router"), policies)),
		engine.WithAuditLogger(auditLog),
		engine.WithMetrics(prom),
		engine.WithAlerter(alerters),
		engine.WithLogger(logger.Named("engine")),
		engine.WithErrorThreshold(cfg.Engine.ErrorThreshold),
		engine.WithHealthTimeout(cfg.Server.HealthTimeout),
	}

	if key := cfg.EncryptionKey(); key != "" {
		raw, err := crypto.ParseKey(key)
		if err != nil {
			return fmt.Errorf("encryption key: %w", err)
		}
		cipher, err := crypto.NewCipher(cfg.Encryption.Algorithm, raw)
		if err != nil {
			return err
		}
		opts = append(opts, engine.WithCipher(cipher))
	} else {
		logger.Warn("no encryption key configured, encryption events record intent only")
	}

	compressor, err := crypto.NewCompressor(cfg.Compression.Algorithm, cfg.Compression.Level)
	if err != nil {
		return err
	}
	if compressor != nil {
		opts = append(opts, engine.WithCompressor(compressor))
	}

	manager := engine.NewManager(opts...)

	var closers []closeFunc
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, c := range closers {
			if err := c(shutdownCtx); err != nil {
				logger.Warn("backend close failed", zap.Error(err))
			}
		}
	}()

	for _, pc := range cfg.Providers {
		backend, closer, err := buildBackend(ctx, pc, logger.Named("driver"))
		if err != nil {
			return fmt.Errorf("provider %s: %w", pc.Name, err)
		}
		if closer != nil {
			closers = append(closers, closer)
		}

		providerOpts := []engine.ProviderOption{
			engine.WithPriority(pc.Priority),
			engine.WithProviderLogger(logger.Named("provider")),
		}
		if !pc.IsEnabled() {
			providerOpts = append(providerOpts, engine.WithDisabled())
		}
		ptype, err := engine.ParseProviderType(pc.Type)
		if err != nil {
			return err
		}
		p := engine.NewProvider(pc.Name, ptype, backend, providerOpts...)
		if err := manager.Register(p); err != nil {
			return err
		}
		logger.Info("provider registered",
			zap.String("name", p.Name()),
			zap.String("type", string(p.Type())),
			zap.Bool("enabled", p.Enabled()))
	}

	if cfg.PolicyFile != "" {
		watcher := config.NewPolicyWatcher(cfg.PolicyFile, manager, logger.Named("policy"))
		if err := watcher.Reload(ctx); err != nil {
			logger.Error("initial policy load failed", zap.String("path", cfg.PolicyFile), zap.Error(err))
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("policy watcher stopped", zap.Error(err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.MetricsAddr, manager,
		api.WithMetricsHandler(prom.Handler()),
		api.WithAlertRecorder(recorder),
		api.WithLogger(logger.Named("api")))

	go healthLoop(ctx, server, prom, auditLog, cfg.Server.HealthInterval)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ops server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	if cfg.Audit.ExportPath != "" {
		if err := auditLog.Export(cfg.Audit.ExportPath); err != nil {
			return fmt.Errorf("export audit trail: %w", err)
		}
		logger.Info("audit trail exported",
			zap.String("path", cfg.Audit.ExportPath),
			zap.Int("events", auditLog.Len()))
	}
	return nil
}

// healthLoop sweeps every provider on interval and mirrors the audit
// counts into Prometheus
func healthLoop(ctx context.Context, server *api.Server, prom *metrics.Prometheus, auditLog *audit.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		server.Sweep(ctx)
		summary := auditLog.Summary()
		for _, t := range audit.EventTypes() {
			prom.SetAuditEvents(string(t), summary.ByType[t])
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
