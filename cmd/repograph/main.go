// Package main provides the repograph binary entry point.
// repograph acquires repository metadata and README text from GitHub,
// extracts candidate knowledge-graph triples with rule-based and generative
// extractors, and writes consolidated entity and triple tables.
package main

import (
	"fmt"
	"os"
	"runtime"

	// Register LLM providers via init()
	_ "github.com/c360studio/repograph/llm/providers"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "repograph"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	outDir     string
	workers    int
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Repository knowledge-graph builder",
		Long: `repograph builds a candidate knowledge graph about software repositories.

It acquires repository metadata and README text from the GitHub REST API,
extracts typed relations with a rule engine and an optional language model,
and consolidates both into entity tables and one scored triple table.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&flags.outDir, "out", "o", "", "Output directory (overrides output.dir)")
	cmd.PersistentFlags().IntVarP(&flags.workers, "workers", "w", 0, "Repositories processed concurrently (overrides pipeline.workers)")

	cmd.AddCommand(
		fetchCmd(flags),
		extractCmd(flags),
		runCmd(flags),
		exportCmd(flags),
		configCmd(flags),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}
