package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/pagesense-ai/pagesense"
	"github.com/pagesense-ai/pagesense/agent"
	"github.com/pagesense-ai/pagesense/conductor"
	"github.com/pagesense-ai/pagesense/config"
	"github.com/pagesense-ai/pagesense/llm"
	"github.com/pagesense-ai/pagesense/llm/anthropic"
	"github.com/pagesense-ai/pagesense/llm/openai"
	"github.com/pagesense-ai/pagesense/logging"
	"github.com/pagesense-ai/pagesense/memory"
	"github.com/pagesense-ai/pagesense/metrics"
	"github.com/pagesense-ai/pagesense/store"
	"github.com/pagesense-ai/pagesense/tool"
	"github.com/pagesense-ai/pagesense/usage"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./pagesense.yaml)")
	return cmd
}

func serve(cfg *config.Config) error {
	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Format: cfg.LogFormat,
		Output: os.Stderr,
	})

	st, closeStore, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := newLLMClient(cfg)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	recorder := usage.NewBufferedRecorder(
		func(ctx context.Context, rec usage.Record) error {
			logger.Info("usage.recorded",
				"user_id", rec.UserID,
				"input_tokens", rec.InputTokens,
				"output_tokens", rec.OutputTokens,
				"api_type", rec.APIType,
			)
			return nil
		},
		func(o *usage.RecorderOptions) {
			o.BufferSize = cfg.UsageBufferSize
			o.Logger = logger
			o.Metrics = m
		},
	)
	defer recorder.Close()

	p := pagesense.New(client, func(o *pagesense.Options) {
		o.Store = st
		o.Logger = logger
		o.Metrics = m
		o.Usage = recorder
		o.SupervisorOptions = []func(so *tool.SupervisorOptions){func(so *tool.SupervisorOptions) {
			so.DefaultTimeout = cfg.DefaultToolTimeout()
			so.WorkerPoolSize = cfg.ToolWorkerPoolSize
		}}
		o.MemoryOptions = []func(mo *memory.ManagerOptions){func(mo *memory.ManagerOptions) {
			mo.ProfileRecentMessages = cfg.MemoryRecentMessages
			mo.SummaryRecentMessages = cfg.MemorySummaryRecentMessages
			mo.RelevantLimit = cfg.RelevantMemoryLimit
		}}
		o.AgentOptions = []func(ao *agent.Options){func(ao *agent.Options) {
			ao.MaxIterations = cfg.MaxIterations
			ao.ObservationTruncateChars = cfg.ObservationTruncateChars
			ao.ThinkHistoryWindow = cfg.ThinkHistoryWindow
		}}
	})

	handler := p.Handler(conductor.StaticAuthenticator(cfg.Tokens))

	mux := http.NewServeMux()
	mux.Handle("/ws/agent/", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server.listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStore(cfg *config.Config, logger logging.Logger) (store.Store, func(), error) {
	if cfg.StorePath == "" {
		logger.Warn("store.in_memory", "hint", "set store_path for persistence")
		return store.NewInMemory(), func() {}, nil
	}
	db, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	logger.Info("store.sqlite", "path", cfg.StorePath)
	return db, func() { _ = db.Close() }, nil
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case "openai":
		return openai.New(func(o *openai.Options) {
			if cfg.LLMModel != "" {
				o.Model = cfg.LLMModel
			}
			o.Temperature = cfg.LLMTemperature
		}), nil
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			if cfg.LLMModel != "" {
				o.Model = anthropicsdk.Model(cfg.LLMModel)
			}
			o.Temperature = cfg.LLMTemperature
			o.APIKey = cfg.AnthropicKey
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}
