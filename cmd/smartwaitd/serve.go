package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/openclaw/smartwaitd/internal/capture"
	"github.com/openclaw/smartwaitd/internal/config"
	"github.com/openclaw/smartwaitd/internal/logger"
	"github.com/openclaw/smartwaitd/internal/notify"
	"github.com/openclaw/smartwaitd/internal/server"
	"github.com/openclaw/smartwaitd/internal/store"
	"github.com/openclaw/smartwaitd/internal/task"
	"github.com/openclaw/smartwaitd/internal/vision"
	"github.com/openclaw/smartwaitd/internal/wait"
)

var (
	serveConfigPath string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the smart-wait daemon (main command)",
	Long: `Start the smart-wait daemon with the specified configuration.
This initializes all components (logger, store, vision backend, wait engine,
HTTP API) and handles graceful shutdown.`,
	Run: serveHandler,
}

func serveHandler(cmd *cobra.Command, args []string) {
	if err := config.LoadEnvOptional("./.env"); err != nil {
		fmt.Printf("Failed to load .env file: %v\n", err)
		os.Exit(1)
	}

	configPath := serveConfigPath
	if configPath == "" {
		configPath = defaultConfigPath
	}

	var cfg *config.Config
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if serveLogLevel != "" {
		cfg.Logging.Level = serveLogLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Printf("Configuration validation failed:\n")
		for _, e := range errs {
			fmt.Printf("  - %v\n", e)
		}
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	log.Info("starting smartwaitd",
		logger.Field{Key: "version", Value: Version},
		logger.Field{Key: "git_commit", Value: GitCommit},
		logger.Field{Key: "config", Value: configPath},
		logger.Field{Key: "vision_backend", Value: cfg.Vision.Backend},
		logger.Field{Key: "listen", Value: cfg.Server.Listen})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Store, with crash recovery: orphaned jobs from a previous run are
	// marked error before anything else happens.
	st, err := store.Open(cfg.Store.Path, log)
	if err != nil {
		log.Error("Failed to open store", err)
		os.Exit(1)
	}
	defer st.Close()

	if _, err := st.RecoverOrphans(time.Now()); err != nil {
		log.Error("Failed to recover orphaned jobs", err)
		os.Exit(1)
	}

	janitor, err := store.NewJanitor(st, cfg.Store.PruneSchedule, cfg.Store.RetentionDays, log)
	if err != nil {
		log.Error("Failed to initialize store janitor", err)
		os.Exit(1)
	}
	janitor.Start()
	defer janitor.Stop()

	// Task sink, sharing the store database unless configured elsewhere.
	var sink task.Sink
	if cfg.Task.Enabled {
		sink, err = newTaskSink(cfg, st, log)
		if err != nil {
			log.Error("Failed to initialize task sink", err)
			os.Exit(1)
		}
		log.Info("task sink enabled", logger.Field{Key: "path", Value: cfg.Task.Path})
	} else {
		log.Warn("task sink is disabled")
	}

	// Vision backend.
	var evaluator vision.Evaluator
	switch cfg.Vision.Backend {
	case "ollama":
		evaluator = vision.NewOllamaEvaluator(vision.OllamaConfig{
			URL:            cfg.Vision.URL,
			Model:          cfg.Vision.Model,
			TimeoutSeconds: cfg.Vision.TimeoutSeconds,
			MaxRetries:     cfg.Vision.MaxRetries,
		}, log)
	case "openrouter":
		evaluator = vision.NewOpenRouterEvaluator(vision.OpenRouterConfig{
			APIKey:         cfg.Vision.APIKey,
			URL:            cfg.Vision.URL,
			Model:          cfg.Vision.Model,
			TimeoutSeconds: cfg.Vision.TimeoutSeconds,
			MaxRetries:     cfg.Vision.MaxRetries,
		}, log)
	default:
		log.Error("Unsupported vision backend", nil,
			logger.Field{Key: "backend", Value: cfg.Vision.Backend})
		os.Exit(1)
	}
	log.Info("vision backend initialized",
		logger.Field{Key: "backend", Value: cfg.Vision.Backend},
		logger.Field{Key: "model", Value: cfg.Vision.Model})

	notifier := notify.NewCLINotifier(notify.CLIConfig{
		CLI:            cfg.Notify.CLI,
		TimeoutSeconds: cfg.Notify.TimeoutSeconds,
	}, log)

	registry := prometheus.NewRegistry()

	engine := wait.New(wait.Config{
		DefaultPollInterval: time.Duration(cfg.Wait.DefaultPollIntervalSec * float64(time.Second)),
		MinPollInterval:     time.Duration(cfg.Wait.MinPollSeconds * float64(time.Second)),
		MaxPollInterval:     time.Duration(cfg.Wait.MaxPollSeconds * float64(time.Second)),
		StatePrefix:         cfg.Notify.StatePrefix,
		Gate: capture.GateConfig{
			DownsampleWidth: cfg.Capture.DiffDownsampleWidth,
			PixelThreshold:  cfg.Capture.DiffPixelThreshold,
			ChangeRatio:     cfg.Capture.DiffChangeRatio,
		},
	}, wait.Deps{
		Logger:    log,
		Capturer:  capture.NewX11Capturer(log),
		Evaluator: evaluator,
		Notifier:  notifier,
		Recorder:  st,
		Sink:      sink,
		Registry:  registry,
	})

	if err := engine.Start(ctx); err != nil {
		log.Error("Failed to start wait engine", err)
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Listen: cfg.Server.Listen,
		Defaults: server.Defaults{
			Display:             cfg.Capture.DefaultDisplay,
			TimeoutSeconds:      cfg.Wait.DefaultTimeoutSeconds,
			PollIntervalSeconds: cfg.Wait.DefaultPollIntervalSec,
		},
	}, engine, st, registry, log)
	srv.Start()

	log.Info("smartwaitd is running")

	sig := <-sigChan
	log.Info("received shutdown signal",
		logger.Field{Key: "signal", Value: sig.String()})

	log.Info("shutting down smartwaitd")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to stop http server", err)
	}

	engine.Stop()
	log.Info("smartwaitd stopped gracefully")
}

// newTaskSink opens the task database, reusing the store handle when both
// point at the same file.
func newTaskSink(cfg *config.Config, st *store.Store, log *logger.Logger) (task.Sink, error) {
	if cfg.Task.Path == "" || cfg.Task.Path == cfg.Store.Path {
		return task.NewSQLiteSink(st.DB(), log)
	}

	taskStore, err := store.Open(cfg.Task.Path, log)
	if err != nil {
		return nil, err
	}
	return task.NewSQLiteSink(taskStore.DB(), log)
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to configuration file (default: "+defaultConfigPath+")")
	serveCmd.Flags().StringVarP(&serveLogLevel, "log-level", "l", "", "Override log level (debug, info, warn, error)")
}
