package commands

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/agents"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/audit"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/db"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/logging"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/providers"
)

// OpenRouter attribution headers.
const (
	appReferer = "https://github.com/d64483912-cmd/BabyAGI-Medical"
	appTitle   = "BabyAGI Medical"
)

// isInteractive reports whether stdout is a terminal. Override in tests.
var isInteractive = func() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// loadConfig loads and validates configuration, honoring --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configPath returns the file config writes go to.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	return config.DefaultGlobalPath()
}

// initLogging initializes the logging subsystem.
func initLogging(cmd *cobra.Command, cfg *config.Config) error {
	lc := logging.Config{
		Level:         cfg.Logging.Level,
		Path:          cfg.Logging.Path,
		Format:        cfg.Logging.Format,
		RetentionDays: cfg.Logging.RetentionDays,
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		lc.Console = os.Stderr
	}
	return logging.Init(lc)
}

// openDB opens the session archive.
func openDB(cfg *config.Config) (*db.DB, error) {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return database, nil
}

// openAudit opens the audit trail. It returns nil when auditing is disabled
// or the trail cannot be opened; a nil *audit.Logger discards events.
func openAudit(cfg *config.Config) *audit.Logger {
	if !cfg.Audit.Enabled || cfg.Audit.Path == "" {
		return nil
	}
	a, err := audit.Open(cfg.Audit.Path)
	if err != nil {
		logging.Component("audit").WarnCtx("audit trail unavailable", map[string]any{"error": err.Error()})
		return nil
	}
	return a
}

// recordAudit logs an audit write failure without failing the command.
func recordAudit(err error) {
	if err != nil {
		logging.Component("audit").WarnCtx("audit write failed", map[string]any{"error": err.Error()})
	}
}

// newAgent builds the executor for the configured mode. Override in tests.
var newAgent = buildAgent

func buildAgent(cfg *config.Config) (agents.Agent, error) {
	if cfg.Mode != config.ModeAI {
		return agents.ForMode(cfg.Mode, nil)
	}

	opts := []providers.Option{providers.WithAppIdentity(appReferer, appTitle)}
	if cfg.Settings.BaseURL != "" {
		opts = append(opts, providers.WithBaseURL(cfg.Settings.BaseURL))
	}
	p, err := providers.New(cfg.Settings.Provider, opts...)
	if err != nil {
		return nil, fmt.Errorf("provider %q: %w", cfg.Settings.Provider, err)
	}
	return agents.ForMode(config.ModeAI, p)
}

// maskKey hides all but the last four characters of an API key.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
