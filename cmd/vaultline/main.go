// Package main is the CLI entry point for Vaultline, a conversational agent
// that manages a custodial wallet behind a security-screened tool loop.
//
// # Basic Usage
//
// Start the server:
//
//	vaultline serve --config vaultline.yaml
//
// # Environment Variables
//
//   - VAULTLINE_CONFIG: Path to configuration file (default: vaultline.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key
//   - OPENAI_API_KEY: OpenAI API key
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// A missing .env is fine; explicit env always wins.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "vaultline",
		Short: "Conversational custodial wallet agent",
		Long: "Vaultline exposes a custodial wallet through a conversational agent.\n" +
			"Every action the agent proposes is screened by a security pipeline\n" +
			"before it executes.",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vaultline %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}

func configPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv("VAULTLINE_CONFIG"); env != "" {
		return env
	}
	return "vaultline.yaml"
}
