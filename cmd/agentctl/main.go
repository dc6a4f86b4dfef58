// Command agentctl is the single binary bootstrapping the adapter
// supervisor, persistence, and the HTTP control surface, plus a CLI for
// talking to a running daemon.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Build information, overridden at link time the way the teacher's binary does.
var (
	Version   = "0.1.0"
	BuildTime = "development"
	GitCommit = "unknown"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	headerColor  = color.New(color.FgMagenta, color.Bold)
)

var (
	configFile   string
	daemonURL    string
	outputFormat string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:     "agentctl",
	Short:   "agentctl - unified coding-agent monitor and control plane",
	Long:    `agentctl supervises coding-agent adapters, aggregates usage/cost, and exposes an HTTP control surface.`,
	Version: fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bootstrap the supervisor and run the HTTP API",
	RunE:  runServeCommand,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show adapter and health status from a running daemon",
	RunE:  runStatusCommand,
}

var skillCmd = &cobra.Command{
	Use:   "skill [name]",
	Short: "Invoke an external skill-marketplace subprocess",
	Args:  cobra.ExactArgs(1),
	RunE:  runSkillCommand,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (JSON or YAML)")
	rootCmd.PersistentFlags().StringVar(&daemonURL, "daemon-url", "", "daemon base URL (defaults to the configured listen address)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "table", "output format: table or json")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")

	serveCmd.Flags().String("listen", "", "HTTP listen address, overrides config")

	skillCmd.Flags().Duration("timeout", 0, "subprocess timeout, 0 uses the client default")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(skillCmd)

	cobra.OnInitialize(func() {
		if noColor || os.Getenv("NO_COLOR") != "" {
			color.NoColor = true
		}
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		errorColor.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
