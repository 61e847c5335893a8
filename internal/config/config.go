// Package config handles loading and validating babyagi configuration.
// Supports YAML config files and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/medical"
	"github.com/d64483912-cmd/BabyAGI-Medical/internal/providers"
)

// Run modes.
const (
	ModeSimulated = "simulated"
	ModeAI        = "ai"
)

// Themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Defaults.
const (
	DefaultMode           = ModeSimulated
	DefaultTheme          = ThemeDark
	DefaultProvider       = providers.NameOpenRouter
	DefaultModel          = "meta-llama/llama-3.1-8b-instruct:free"
	DefaultTemperature    = 0.7
	DefaultMaxTokens      = 1000
	DefaultIterationDelay = 1000 // ms
	DefaultMaxIterations  = 20
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultRetentionDays  = 7
	DefaultMetricsAddr    = ""
)

// ConfigName is the config file base name searched for in the project dir.
const ConfigName = "babyagi.yaml"

// EnvPrefix prefixes environment overrides (BABYAGI_SETTINGS_MODEL, ...).
const EnvPrefix = "BABYAGI"

// Validation errors.
var (
	ErrInvalidMode           = errors.New("mode must be simulated or ai")
	ErrInvalidTheme          = errors.New("theme must be dark or light")
	ErrInvalidProvider       = errors.New("unknown provider")
	ErrInvalidTemperature    = errors.New("temperature must be between 0 and 2")
	ErrInvalidMaxTokens      = errors.New("max_tokens must not be negative")
	ErrInvalidIterationDelay = errors.New("iteration_delay must not be negative")
	ErrInvalidMaxIterations  = errors.New("max_iterations must not be negative")
	ErrInvalidSpecialty      = errors.New("unknown medical specialty")
	ErrInvalidStudyType      = errors.New("unknown study type")
	ErrInvalidCitationStyle  = errors.New("unknown citation style")
	ErrInvalidLogLevel       = errors.New("log level must be debug, info, warn, or error")
	ErrInvalidLogFormat      = errors.New("log format must be json or text")
	ErrInvalidCron           = errors.New("invalid cron expression")
	ErrInvalidInterval       = errors.New("invalid schedule interval")
	ErrCronAndInterval       = errors.New("schedule.cron and schedule.interval are mutually exclusive")
)

// Config holds all babyagi configuration.
type Config struct {
	Mode        string         `mapstructure:"mode"`
	Theme       string         `mapstructure:"theme"`
	Settings    Settings       `mapstructure:"settings"`
	Medical     MedicalConfig  `mapstructure:"medical"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Schedule    ScheduleConfig `mapstructure:"schedule"`
	Audit       AuditConfig    `mapstructure:"audit"`
	DBPath      string         `mapstructure:"db_path"`
	MetricsAddr string         `mapstructure:"metrics_addr"`
}

// Settings are the user-editable agent settings. A run takes a copy when it
// starts; changes apply to the next run.
type Settings struct {
	APIKey         string  `mapstructure:"api_key"`
	Provider       string  `mapstructure:"provider"`
	BaseURL        string  `mapstructure:"base_url"`
	Model          string  `mapstructure:"model"`
	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	IterationDelay int     `mapstructure:"iteration_delay"` // ms between ticks
	MaxIterations  int     `mapstructure:"max_iterations"`
	AutoScroll     bool    `mapstructure:"auto_scroll"`
	EnableSounds   bool    `mapstructure:"enable_sounds"`
}

// Delay returns IterationDelay as a duration.
func (s Settings) Delay() time.Duration {
	return time.Duration(s.IterationDelay) * time.Millisecond
}

// MedicalConfig selects medical research mode.
type MedicalConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Specialty     string `mapstructure:"specialty"`
	StudyType     string `mapstructure:"study_type"`
	CitationStyle string `mapstructure:"citation_style"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ScheduleConfig configures recurring runs. Cron and Interval are
// mutually exclusive.
type ScheduleConfig struct {
	Cron      string        `mapstructure:"cron"`
	Interval  string        `mapstructure:"interval"` // e.g. "6h"
	Objective string        `mapstructure:"objective"`
	Window    *WindowConfig `mapstructure:"window"`
}

// AuditConfig configures the JSONL audit trail.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// WindowConfig restricts scheduled runs to a time of day range.
type WindowConfig struct {
	Start    string `mapstructure:"start"` // "22:00"
	End      string `mapstructure:"end"`   // "06:00"
	Timezone string `mapstructure:"timezone"`
}

// DefaultConfigDir returns ~/.config/babyagi.
func DefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "babyagi")
}

// DefaultGlobalPath returns the global config file path.
func DefaultGlobalPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDataDir returns ~/.local/share/babyagi.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "babyagi")
}

// DefaultDBPath returns the session archive path.
func DefaultDBPath() string {
	return filepath.Join(DefaultDataDir(), "babyagi.db")
}

// DefaultAuditPath returns the default audit trail directory.
func DefaultAuditPath() string {
	return filepath.Join(DefaultDataDir(), "audit")
}

// DefaultLogPath returns the log directory.
func DefaultLogPath() string {
	return filepath.Join(DefaultDataDir(), "logs")
}

// Load reads configuration from the current directory and the global config.
func Load() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return LoadFromPaths(wd, DefaultGlobalPath())
}

// LoadFile reads configuration from an explicit file.
func LoadFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(expandPath(path))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return decode(v)
}

// LoadFromPaths merges the global config with the project config
// (projectDir/babyagi.yaml), the latter taking precedence. Missing files
// are skipped.
func LoadFromPaths(projectDir, globalPath string) (*Config, error) {
	v := newViper()

	if globalPath != "" {
		if err := mergeFile(v, expandPath(globalPath)); err != nil {
			return nil, err
		}
	}
	if projectDir != "" {
		if err := mergeFile(v, filepath.Join(expandPath(projectDir), ConfigName)); err != nil {
			return nil, err
		}
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", DefaultMode)
	v.SetDefault("theme", DefaultTheme)

	v.SetDefault("settings.api_key", "")
	v.SetDefault("settings.provider", DefaultProvider)
	v.SetDefault("settings.base_url", "")
	v.SetDefault("settings.model", DefaultModel)
	v.SetDefault("settings.temperature", DefaultTemperature)
	v.SetDefault("settings.max_tokens", DefaultMaxTokens)
	v.SetDefault("settings.iteration_delay", DefaultIterationDelay)
	v.SetDefault("settings.max_iterations", DefaultMaxIterations)
	v.SetDefault("settings.auto_scroll", true)
	v.SetDefault("settings.enable_sounds", false)

	v.SetDefault("medical.enabled", false)
	v.SetDefault("medical.specialty", "")
	v.SetDefault("medical.study_type", "")
	v.SetDefault("medical.citation_style", medical.DefaultCitationStyle)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.path", DefaultLogPath())
	v.SetDefault("logging.retention_days", DefaultRetentionDays)

	v.SetDefault("schedule.cron", "")
	v.SetDefault("schedule.interval", "")
	v.SetDefault("schedule.objective", "")

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.path", DefaultAuditPath())

	v.SetDefault("db_path", DefaultDBPath())
	v.SetDefault("metrics_addr", DefaultMetricsAddr)
}

func mergeFile(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("checking config %s: %w", path, err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}
	return nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.DBPath = expandPath(cfg.DBPath)
	cfg.Logging.Path = expandPath(cfg.Logging.Path)
	cfg.Audit.Path = expandPath(cfg.Audit.Path)
	if cfg.Settings.APIKey == "" {
		cfg.Settings.APIKey = APIKeyFromEnv(cfg.Settings.Provider)
	}
	return &cfg, nil
}

// providerKeyEnv maps providers to their conventional key variables.
var providerKeyEnv = map[string]string{
	providers.NameOpenRouter: "OPENROUTER_API_KEY",
	providers.NameOpenAI:     "OPENAI_API_KEY",
	providers.NameAnthropic:  "ANTHROPIC_API_KEY",
}

// APIKeyFromEnv returns the provider's conventional API key variable, if set.
func APIKeyFromEnv(provider string) string {
	if name, ok := providerKeyEnv[provider]; ok {
		return os.Getenv(name)
	}
	return ""
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Mode != "" && cfg.Mode != ModeSimulated && cfg.Mode != ModeAI {
		return ErrInvalidMode
	}
	if cfg.Theme != "" && cfg.Theme != ThemeDark && cfg.Theme != ThemeLight {
		return ErrInvalidTheme
	}
	if err := ValidateSettings(cfg.Settings); err != nil {
		return err
	}

	m := cfg.Medical
	if m.Specialty != "" && !medical.IsSpecialty(m.Specialty) {
		return ErrInvalidSpecialty
	}
	if m.StudyType != "" && !medical.IsStudyType(m.StudyType) {
		return ErrInvalidStudyType
	}
	if m.CitationStyle != "" && !slices.Contains(medical.CitationStyles(), strings.ToLower(m.CitationStyle)) {
		return ErrInvalidCitationStyle
	}

	if cfg.Logging.Level != "" {
		switch strings.ToLower(cfg.Logging.Level) {
		case "debug", "info", "warn", "error":
		default:
			return ErrInvalidLogLevel
		}
	}
	if cfg.Logging.Format != "" && cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return ErrInvalidLogFormat
	}

	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("%w: schedule.cron %q: %v", ErrInvalidCron, cfg.Schedule.Cron, err)
		}
	}
	if cfg.Schedule.Interval != "" {
		if cfg.Schedule.Cron != "" {
			return ErrCronAndInterval
		}
		if d, err := time.ParseDuration(cfg.Schedule.Interval); err != nil || d <= 0 {
			return fmt.Errorf("%w: schedule.interval %q", ErrInvalidInterval, cfg.Schedule.Interval)
		}
	}
	return nil
}

// ValidateSettings checks agent settings. Zero values are treated as unset,
// except MaxIterations, where zero ends a run before its first task.
func ValidateSettings(s Settings) error {
	if s.Provider != "" && !providers.IsKnown(s.Provider) {
		return ErrInvalidProvider
	}
	if s.Temperature < 0 || s.Temperature > 2 {
		return ErrInvalidTemperature
	}
	if s.MaxTokens < 0 {
		return ErrInvalidMaxTokens
	}
	if s.IterationDelay < 0 {
		return ErrInvalidIterationDelay
	}
	if s.MaxIterations < 0 {
		return ErrInvalidMaxIterations
	}
	return nil
}

// DefaultSettings returns the settings a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		Provider:       DefaultProvider,
		Model:          DefaultModel,
		Temperature:    DefaultTemperature,
		MaxTokens:      DefaultMaxTokens,
		IterationDelay: DefaultIterationDelay,
		MaxIterations:  DefaultMaxIterations,
		AutoScroll:     true,
	}
}

// Save writes the theme and settings to path, keeping any other keys
// already present in the file.
func Save(path string, cfg *Config) error {
	values := map[string]any{
		"theme":                    cfg.Theme,
		"settings.api_key":         cfg.Settings.APIKey,
		"settings.provider":        cfg.Settings.Provider,
		"settings.base_url":        cfg.Settings.BaseURL,
		"settings.model":           cfg.Settings.Model,
		"settings.temperature":     cfg.Settings.Temperature,
		"settings.max_tokens":      cfg.Settings.MaxTokens,
		"settings.iteration_delay": cfg.Settings.IterationDelay,
		"settings.max_iterations":  cfg.Settings.MaxIterations,
		"settings.auto_scroll":     cfg.Settings.AutoScroll,
		"settings.enable_sounds":   cfg.Settings.EnableSounds,
	}
	return writeKeys(path, values)
}

// SetValue writes a single key to the config file at path. Keys use dotted
// form (settings.model). Only known keys are accepted.
func SetValue(path, key, value string) error {
	if !IsKnownKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	return writeKeys(path, map[string]any{key: value})
}

// IsKnownKey reports whether key is a recognized config key.
func IsKnownKey(key string) bool {
	return slices.Contains(Keys(), key)
}

// Keys returns all recognized config keys.
func Keys() []string {
	v := viper.New()
	setDefaults(v)
	keys := v.AllKeys()
	slices.Sort(keys)
	return keys
}

func writeKeys(path string, values map[string]any) error {
	path = expandPath(path)
	v := viper.New()
	v.SetConfigType("yaml")
	if err := mergeFile(v, path); err != nil {
		return err
	}
	for k, val := range values {
		v.Set(k, val)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// expandPath expands ~ to the home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
