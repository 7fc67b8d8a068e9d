package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/c360studio/repograph/export"
	"github.com/c360studio/repograph/pipeline"
	"github.com/c360studio/repograph/storage"
	"github.com/c360studio/repograph/watch"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// selectionFlags choose the repositories of a batch.
type selectionFlags struct {
	query string
	limit int
}

func (s *selectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&s.query, "query", "q", "", "Search query (overrides github.query)")
	cmd.Flags().IntVarP(&s.limit, "limit", "n", 0, "Maximum repositories from search (overrides github.limit)")
}

func (s *selectionFlags) selection(a *app, args []string) pipeline.Selection {
	sel := pipeline.Selection{
		Repositories: a.cfg.GitHub.Repositories,
		Query:        a.cfg.GitHub.Query,
		Limit:        a.cfg.GitHub.Limit,
		Filter:       a.cfg.Filter(),
	}
	if len(args) > 0 {
		sel.Repositories = args
	}
	if s.query != "" {
		sel.Query = s.query
	}
	if s.limit > 0 {
		sel.Limit = s.limit
	}
	return sel
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func fetchCmd(flags *globalFlags) *cobra.Command {
	sel := &selectionFlags{}
	cmd := &cobra.Command{
		Use:   "fetch [owner/name...]",
		Short: "Acquire repository metadata and READMEs into the raw store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.pipeline(ctx, true, false)
			if err != nil {
				return err
			}
			m, err := p.Acquire(ctx, sel.selection(a, args))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d repositories into %s (%d skipped)\n",
				len(m.Repos), a.cfg.RawDir(), len(m.Skipped))
			return nil
		},
	}
	sel.register(cmd)
	return cmd
}

func extractCmd(flags *globalFlags) *cobra.Command {
	var (
		watchRaw     bool
		noGenerative bool
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract triples from the raw store and write the consolidated tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.pipeline(ctx, false, !noGenerative)
			if err != nil {
				return err
			}

			m, err := p.ExtractFromRaw(ctx)
			if err != nil && !(watchRaw && errors.Is(err, storage.ErrNotFound)) {
				return err
			}
			if m != nil && err == nil {
				printSummary(cmd, m)
			}

			if !watchRaw {
				return nil
			}
			return watchAndExtract(ctx, a, p, cmd)
		},
	}
	cmd.Flags().BoolVar(&watchRaw, "watch", false, "Re-extract whenever the raw store changes")
	cmd.Flags().BoolVar(&noGenerative, "no-generative", false, "Run the rule extractor only")
	return cmd
}

// watchAndExtract re-runs extraction after each debounced raw-store change
// until the context ends.
func watchAndExtract(ctx context.Context, a *app, p *pipeline.Pipeline, cmd *cobra.Command) error {
	w, err := watch.New(a.cfg.RawDir(),
		watch.WithDebounce(a.cfg.Watch.Debounce),
		watch.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	for change := range w.Changes() {
		changed := []string{change.RepoID}
		// Coalesce whatever else arrived in the same window.
	drain:
		for {
			select {
			case c, ok := <-w.Changes():
				if !ok {
					break drain
				}
				changed = append(changed, c.RepoID)
			default:
				break drain
			}
		}

		a.logger.Info("Raw store changed, re-extracting", "repositories", changed)
		m, err := p.ExtractFromRaw(ctx)
		if err != nil {
			a.logger.Error("Re-extraction failed", "error", err)
			continue
		}
		printSummary(cmd, m)
	}
	return nil
}

func runCmd(flags *globalFlags) *cobra.Command {
	sel := &selectionFlags{}
	var noGenerative bool
	cmd := &cobra.Command{
		Use:   "run [owner/name...]",
		Short: "Acquire, extract and consolidate in one batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			a, err := newApp(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			p, err := a.pipeline(ctx, true, !noGenerative)
			if err != nil {
				return err
			}
			m, err := p.Run(ctx, sel.selection(a, args))
			if err != nil {
				return err
			}
			printSummary(cmd, m)
			return nil
		},
	}
	sel.register(cmd)
	cmd.Flags().BoolVar(&noGenerative, "no-generative", false, "Run the rule extractor only")
	return cmd
}

func exportCmd(flags *globalFlags) *cobra.Command {
	var (
		format        string
		profile       string
		minConfidence float64
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the candidate triple table as RDF",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if format == "" {
				format = cfg.Output.RDFFormat
			}
			if format == "" {
				format = string(export.FormatTurtle)
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if profile == "" {
				profile = cfg.Output.Profile
			}
			if !cmd.Flags().Changed("min-confidence") {
				minConfidence = cfg.Output.MinConfidence
			}

			triples, err := storage.ReadTriples(storage.TriplesPath(cfg.Output.Dir))
			if err != nil {
				return err
			}
			exporter := export.NewRDFExporter(export.Profile(profile), export.WithMinConfidence(minConfidence))
			path, err := exporter.WriteFile(filepath.Join(cfg.Output.Dir, storage.TriplesDir), triples, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d triples to %s\n", len(triples), path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "RDF format: "+strings.Join(export.FormatNames(), ", "))
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Export profile (minimal, standard)")
	cmd.Flags().Float64Var(&minConfidence, "min-confidence", 0, "Drop triples scored below this value")
	return cmd
}

func configCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or initialize configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(cfg)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create ~/.config/repograph/config.yaml with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, loader, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return loader.EnsureUserConfig()
		},
	})
	return cmd
}

func printSummary(cmd *cobra.Command, m *storage.Manifest) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d repositories, %d triples", m.RunID, len(m.Repos), m.Triples)
	if len(m.Skipped) > 0 {
		fmt.Fprintf(out, ", %d skipped", len(m.Skipped))
	}
	fmt.Fprintln(out)
	for _, s := range m.Skipped {
		fmt.Fprintf(cmd.ErrOrStderr(), "  skipped %s at %s: %s\n", s.Repository, s.Stage, s.Reason)
	}
}
