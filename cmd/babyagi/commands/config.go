package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/d64483912-cmd/BabyAGI-Medical/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or edit configuration",
	Long: `Show or edit babyagi configuration.

Without --config, edits go to ~/.config/babyagi/config.yaml. Environment
variables (BABYAGI_SETTINGS_MODEL, OPENROUTER_API_KEY, ...) override files.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		renderConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Long: `Set a single config value using its dotted key, for example:

  babyagi config set settings.model gpt-4o-mini
  babyagi config set medical.specialty cardiology

Run 'babyagi config keys' for the full list.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := strings.ToLower(args[0]), args[1]
		path := configPath(cmd)
		if err := config.SetValue(path, key, value); err != nil {
			return err
		}
		// reject values that would leave the file unloadable
		cfg, err := loadConfigFile(path)
		if err != nil {
			return fmt.Errorf("%s was written but no longer validates: %w", path, err)
		}
		trail := openAudit(cfg)
		defer func() { _ = trail.Close() }()
		recordAudit(trail.ConfigChanged(path, key, value))
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", key, path)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List config keys",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.Keys() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, _ := cmd.Flags().GetBool("project")
		force, _ := cmd.Flags().GetBool("force")

		path := configPath(cmd)
		if project {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			path = filepath.Join(cwd, config.ConfigName)
		}

		if _, err := os.Stat(path); err == nil && !force {
			if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Config already exists: %s\nOverwrite? [y/N]: ", path)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		cfg := &config.Config{Theme: config.DefaultTheme, Settings: config.DefaultSettings()}
		if err := config.Save(path, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "Set an API key with 'babyagi config set settings.api_key <key>' or OPENROUTER_API_KEY to use --mode ai.")
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("project", false, "Create ./babyagi.yaml instead of the global config")
	configInitCmd.Flags().BoolP("force", "f", false, "Overwrite an existing file without prompting")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configKeysCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func loadConfigFile(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	response, _ := bufio.NewReader(in).ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func renderConfig(w io.Writer, cfg *config.Config) {
	s := newRunStyles()
	row := func(key string, value any) {
		fmt.Fprintf(w, "  %s %v\n", s.Label.Render(fmt.Sprintf("%-26s", key)), value)
	}

	fmt.Fprintln(w, s.Title.Render("General"))
	row("mode", cfg.Mode)
	row("theme", cfg.Theme)
	row("db_path", cfg.DBPath)
	row("metrics_addr", orNone(cfg.MetricsAddr))

	fmt.Fprintln(w, s.Title.Render("Settings"))
	row("settings.provider", cfg.Settings.Provider)
	row("settings.model", cfg.Settings.Model)
	row("settings.base_url", orNone(cfg.Settings.BaseURL))
	row("settings.api_key", orNone(maskKey(cfg.Settings.APIKey)))
	row("settings.temperature", cfg.Settings.Temperature)
	row("settings.max_tokens", cfg.Settings.MaxTokens)
	row("settings.iteration_delay", fmt.Sprintf("%dms", cfg.Settings.IterationDelay))
	row("settings.max_iterations", cfg.Settings.MaxIterations)

	fmt.Fprintln(w, s.Title.Render("Medical"))
	row("medical.enabled", cfg.Medical.Enabled)
	row("medical.specialty", orNone(cfg.Medical.Specialty))
	row("medical.study_type", orNone(cfg.Medical.StudyType))
	row("medical.citation_style", cfg.Medical.CitationStyle)

	fmt.Fprintln(w, s.Title.Render("Logging"))
	row("logging.level", cfg.Logging.Level)
	row("logging.format", cfg.Logging.Format)
	row("logging.path", cfg.Logging.Path)
	row("logging.retention_days", cfg.Logging.RetentionDays)

	fmt.Fprintln(w, s.Title.Render("Schedule"))
	row("schedule.cron", orNone(cfg.Schedule.Cron))
	row("schedule.interval", orNone(cfg.Schedule.Interval))
	row("schedule.objective", orNone(cfg.Schedule.Objective))
	if cfg.Schedule.Window != nil {
		row("schedule.window", fmt.Sprintf("%s-%s %s", cfg.Schedule.Window.Start, cfg.Schedule.Window.End, cfg.Schedule.Window.Timezone))
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
