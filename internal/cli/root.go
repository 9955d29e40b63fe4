package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/vidpulse/vidpulse/internal/config"
	"github.com/vidpulse/vidpulse/pkg/alerts"
	"github.com/vidpulse/vidpulse/pkg/cache"
	"github.com/vidpulse/vidpulse/pkg/enrich"
	"github.com/vidpulse/vidpulse/pkg/model"
	"github.com/vidpulse/vidpulse/pkg/pipeline"
	"github.com/vidpulse/vidpulse/pkg/quota"
	"github.com/vidpulse/vidpulse/pkg/storage"
	"github.com/vidpulse/vidpulse/pkg/youtube"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "vidpulse",
	Short: "VidPulse - Quota-aware YouTube trend detection and scoring",
	Long: `VidPulse fetches trending and niche YouTube videos, scores them against
their channel's baseline performance, and detects viral outliers and spikes.
Every upstream call is billed against a daily quota ledger so a day's budget
is never silently burned.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.vidpulse/config.yaml)")
}

// loadConfig loads the configuration.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgFile)
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initStore creates the persistence backend from config.
func initStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite", "":
		return storage.NewSQLite(cfg.Storage.Path)
	case "redis":
		return storage.NewRedis(cfg.Storage.RedisURL, "vidpulse")
	case "memory":
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// initNotifiers creates alert notifiers from config.
func initNotifiers(cfg *config.Config) []alerts.Notifier {
	var notifiers []alerts.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alerts.NewSlackNotifier(
			cfg.Alerts.Slack.WebhookURL,
			cfg.Alerts.Slack.Channel,
		))
	}

	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alerts.NewWebhookNotifier(
			cfg.Alerts.Webhook.URL,
			cfg.Alerts.Webhook.Secret,
		))
	}

	return notifiers
}

// initLedger creates the quota ledger over the given store.
func initLedger(cfg *config.Config, store storage.Store, logger *slog.Logger) *quota.Ledger {
	return quota.NewLedger(store, cfg.Quota.Credential, cfg.Quota.DailyBudget, initNotifiers(cfg), logger)
}

// app bundles the fully wired components a command runs against. Close
// releases the underlying store.
type app struct {
	engine *pipeline.Engine
	ledger *quota.Ledger
	cache  *cache.ResultCache
	store  storage.Store
	logger *slog.Logger
}

func (a *app) Close() error { return a.store.Close() }

// initApp wires client, ledger, cache, and enrichment into one engine.
func initApp(cfg *config.Config) (*app, error) {
	if cfg.API.Key == "" {
		return nil, fmt.Errorf("api key not configured (set VIDPULSE_API_KEY or api.key)")
	}

	logger := newLogger(cfg)

	store, err := initStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	ledger := initLedger(cfg, store, logger)

	client := youtube.NewClient(youtube.Config{
		APIKey:           cfg.API.Key,
		BaseURL:          cfg.API.BaseURL,
		QueriesPerSecond: cfg.API.QueriesPerSecond,
	}, ledger, logger)

	ttl, err := time.ParseDuration(cfg.Cache.TTL)
	if err != nil || ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	resultCache := cache.New(store, ttl, cfg.Cache.MaxEntries, logger)

	enricher := enrich.New(client, logger)
	engine := pipeline.NewEngine(client, enricher, resultCache, ledger, logger)

	return &app{
		engine: engine,
		ledger: ledger,
		cache:  resultCache,
		store:  store,
		logger: logger,
	}, nil
}

// loadSavedChannels reads the saved-channels file named in config. Errors
// are logged and swallowed; a broken channels file never blocks a run.
func loadSavedChannels(cfg *config.Config, logger *slog.Logger) []model.SavedChannel {
	saved, err := config.LoadChannels(cfg.Channels.File)
	if err != nil {
		logger.Warn("load saved channels", "file", cfg.Channels.File, "error", err)
		return nil
	}
	return saved
}
