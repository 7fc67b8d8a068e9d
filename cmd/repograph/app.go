package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/c360studio/repograph/config"
	"github.com/c360studio/repograph/export"
	"github.com/c360studio/repograph/extractor/generative"
	"github.com/c360studio/repograph/extractor/rules"
	"github.com/c360studio/repograph/fetch"
	"github.com/c360studio/repograph/github"
	"github.com/c360studio/repograph/graph"
	"github.com/c360studio/repograph/llm"
	"github.com/c360studio/repograph/metrics"
	"github.com/c360studio/repograph/model"
	"github.com/c360studio/repograph/pipeline"
	"github.com/c360studio/repograph/storage"
	"github.com/c360studio/semstreams/natsclient"
	"gopkg.in/natefinch/lumberjack.v2"
)

// app holds the process-wide wiring shared by the batch commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	nats    *natsclient.Client
	logFile io.Closer
}

// loadConfig loads the layered configuration and applies the global flags.
func loadConfig(flags *globalFlags) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader(slog.Default())
	cfg, err := loader.Load(flags.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Merge(&config.Config{
		Output:   config.OutputConfig{Dir: flags.outDir},
		Pipeline: config.PipelineConfig{Workers: flags.workers},
		Logging:  config.LoggingConfig{Level: flags.logLevel},
	})
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, loader, nil
}

func newApp(ctx context.Context, flags *globalFlags) (*app, error) {
	cfg, _, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg.Logging, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		logFile: logFile,
	}

	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, a.metrics, logger)
		if _, err := srv.Start(ctx); err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	if cfg.NATS.Enabled {
		nc, err := connectToNATS(ctx, cfg.NATS.URL, logger)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		a.nats = nc
	}
	return a, nil
}

// newLogger builds the slog logger. With logging.file set, output is also
// written to a size-rotated file.
func newLogger(cfg config.LoggingConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		w      = stderr
		closer io.Closer
	)
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(stderr, rotated)
		closer = rotated
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer, nil
}

func connectToNATS(ctx context.Context, url string, logger *slog.Logger) (*natsclient.Client, error) {
	logger.Info("Connecting to NATS", "url", url)

	client, err := natsclient.NewClient(url,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(5),
		natsclient.WithReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, url)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, url)
	}

	logger.Info("Connected to NATS", "url", url)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker run -p 4222:4222 nats -js

Or disable graph publishing with nats.enabled: false.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// pipeline wires a Pipeline from the configuration. withSource requires the
// GitHub token; withGenerative is downgraded to rules-only with a warning
// when LLM credentials are missing.
func (a *app) pipeline(ctx context.Context, withSource, withGenerative bool) (*pipeline.Pipeline, error) {
	cfg := a.cfg
	opts := []pipeline.Option{
		pipeline.WithWorkers(cfg.Pipeline.Workers),
		pipeline.WithRecorder(a.metrics),
		pipeline.WithLogger(a.logger),
	}

	var source pipeline.Source
	if withSource {
		token, err := cfg.GitHubToken()
		if err != nil {
			return nil, err
		}
		fetcher := fetch.NewFetcher(
			fetch.WithMaxRetries(cfg.Fetch.MaxRetries),
			fetch.WithTimeout(cfg.Fetch.Timeout),
			fetch.WithBackoffBase(cfg.Fetch.BackoffBase),
			fetch.WithLogger(a.logger),
			fetch.WithObserver(a.metrics),
		)
		source = github.NewClient(fetcher, token,
			github.WithBaseURL(cfg.GitHub.BaseURL),
			github.WithLogger(a.logger))
	}

	if withGenerative && cfg.Generative.Enabled {
		x, err := a.generativeExtractor()
		if err != nil {
			a.logger.Warn("Generative extraction disabled", "error", err)
		} else {
			opts = append(opts, pipeline.WithGenerative(x))
		}
	}

	if cfg.Output.RDFFormat != "" {
		format, err := export.ParseFormat(cfg.Output.RDFFormat)
		if err != nil {
			return nil, err
		}
		exporter := export.NewRDFExporter(export.Profile(cfg.Output.Profile),
			export.WithMinConfidence(cfg.Output.MinConfidence))
		opts = append(opts, pipeline.WithRDF(exporter, format))
	}

	if a.nats != nil {
		opts = append(opts, pipeline.WithPublisher(graph.NewPublisher(a.nats,
			graph.WithSubject(cfg.NATS.Subject),
			graph.WithLogger(a.logger))))

		if cfg.NATS.RecordRuns {
			runs, err := a.runStore(ctx)
			if err != nil {
				a.logger.Warn("Run recording disabled", "error", err)
			} else {
				opts = append(opts, pipeline.WithRunRecorder(runs))
			}
		}
	}

	rulesExtractor := rules.New(
		rules.WithMaxTextChars(cfg.Rules.MaxTextChars),
		rules.WithLogger(a.logger))
	return pipeline.New(source, cfg.Output.Dir, rulesExtractor, opts...), nil
}

func (a *app) generativeExtractor() (*generative.Extractor, error) {
	cfg := a.cfg
	registry, err := cfg.ModelRegistry()
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(registry,
		llm.WithLogger(a.logger),
		llm.WithObserver(a.metrics))
	return generative.New(client,
		generative.WithCapability(model.Capability(cfg.Generative.Capability)),
		generative.WithMaxChars(cfg.Generative.MaxChars),
		generative.WithMaxTokens(cfg.Generative.MaxTokens),
		generative.WithTemperature(cfg.Generative.Temperature),
		generative.WithLogger(a.logger)), nil
}

func (a *app) runStore(ctx context.Context) (*storage.RunStore, error) {
	js, err := a.nats.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return storage.NewRunStore(ctx, js)
}

// Close releases the NATS connection and the log file.
func (a *app) Close(ctx context.Context) {
	if a.nats != nil {
		if err := a.nats.Close(ctx); err != nil {
			a.logger.Warn("Failed to close NATS connection", "error", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
}
