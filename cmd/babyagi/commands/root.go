// Package commands implements the babyagi CLI commands using cobra.
package commands

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time
	Version = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "babyagi",
	Short: "Autonomous task-queue agent with a medical research mode",
	Long: `BabyAGI breaks an objective into tasks, executes them one at a time,
and generates follow-up tasks from each result until the queue drains or the
iteration cap is reached.

Tasks run against a simulated executor or an LLM provider (OpenRouter,
OpenAI, Anthropic, Ollama). Medical mode seeds the queue with specialty and
study-design templates and exports reports with citations.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		noColor, _ := cmd.Flags().GetBool("no-color")
		if noColor || os.Getenv("NO_COLOR") != "" || !isInteractive() {
			lipgloss.SetColorProfile(termenv.Ascii)
		}
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default ./babyagi.yaml, then ~/.config/babyagi/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Mirror logs to stderr")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}
