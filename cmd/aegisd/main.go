// Command aegisd runs the personal AI assistant gateway: the WebSocket
// JSON-RPC server, the channel bus, the delivery queue worker, and the
// supervisor agent loop over the three-tier memory system.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/DrayChou/personal-ai-assistant/internal/agent"
	"github.com/DrayChou/personal-ai-assistant/internal/auth"
	"github.com/DrayChou/personal-ai-assistant/internal/config"
	"github.com/DrayChou/personal-ai-assistant/internal/gateway"
	"github.com/DrayChou/personal-ai-assistant/internal/llm"
	"github.com/DrayChou/personal-ai-assistant/internal/memory"
	"github.com/DrayChou/personal-ai-assistant/internal/memory/embed"
	"github.com/DrayChou/personal-ai-assistant/internal/observability"
	"github.com/DrayChou/personal-ai-assistant/internal/outbound"
	"github.com/DrayChou/personal-ai-assistant/internal/sessions"
	"github.com/DrayChou/personal-ai-assistant/internal/tools"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exit codes per spec.md §6.
const (
	exitNormal          = 0
	exitFatalInit       = 1
	exitListenerFailure = 2
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(exitFatalInit)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:     "aegisd",
		Short:   "Personal AI assistant gateway",
		Version: fmt.Sprintf("%s (commit %s)", version, commit),
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config overlay")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway until it receives a shutdown signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.AddCommand(serveCmd)
	return root
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(exitFatalInit)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		slog.Error("data dir is not writable", "dir", cfg.DataDir, "error", err)
		os.Exit(exitFatalInit)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	app, err := bootstrap(cfg, metrics)
	if err != nil {
		slog.Error("fatal init error", "error", err)
		os.Exit(exitFatalInit)
	}
	defer app.memory.Close()

	app.scheduler.Start()
	defer app.scheduler.Stop()

	go app.worker.Run(ctx) //nolint:errcheck

	mux := http.NewServeMux()
	mux.Handle("/", app.gateway)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port)
	httpServer := &http.Server{Addr: addr, Handler: mux}

	runCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-runCtx.Done():
	case err := <-errCh:
		slog.Error("listener failed", "error", err)
		os.Exit(exitListenerFailure)
	}

	slog.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	slog.Info("shutdown complete")
	return nil
}

// application bundles the wired-up runtime components runServe drives.
type application struct {
	gateway   *gateway.Server
	worker    *outbound.Worker
	memory    *memory.Manager
	scheduler *memory.Scheduler
}

func bootstrap(cfg *config.Config, metrics *observability.Metrics) (*application, error) {
	logger := slog.Default()

	store, err := sessions.NewFileStore(filepath.Join(cfg.DataDir, "sessions"))
	if err != nil {
		return nil, fmt.Errorf("init session store: %w", err)
	}

	var embedder embed.Embedder
	if cfg.Embedding.Provider == "openai" || cfg.Embedding.Provider == "" {
		embedder = embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			BaseURL:   cfg.Embedding.BaseURL,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Memory.Dimension,
		})
	}

	llmAdapter, err := buildLLMAdapter(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("init llm adapter: %w", err)
	}

	memManager, err := memory.NewManager(memory.Options{
		Config:   cfg.Memory,
		DataDir:  cfg.DataDir,
		Embedder: embedder,
		Summary:  memory.NewLLMSummarizer(llmAdapter),
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("init memory manager: %w", err)
	}

	scheduler, err := memory.NewScheduler(memManager, cfg.Memory.ConsolidateEvery, logger)
	if err != nil {
		return nil, fmt.Errorf("init memory scheduler: %w", err)
	}

	agentOpts := agent.DefaultOptions()
	agentOpts.MaxSteps = cfg.Agent.MaxSteps
	agentOpts.LLMTimeout = cfg.Agent.LLMTimeout
	agentOpts.ToolTimeout = cfg.Agent.ToolTimeout
	agentOpts.ConfirmationTTL = cfg.Agent.ConfirmationTTL
	agentOpts.MaxWorkingTokens = cfg.Memory.MaxWorkingTokens

	loop := agent.NewLoop(llmAdapter, tools.NewRegistry(), store, memManager, agentOpts, logger, metrics)

	deliveryQueue, err := outbound.NewQueue(filepath.Join(cfg.DataDir, "delivery-queue"))
	if err != nil {
		return nil, fmt.Errorf("init delivery queue: %w", err)
	}
	if err := deliveryQueue.Recover(); err != nil {
		return nil, fmt.Errorf("recover delivery queue: %w", err)
	}
	worker := outbound.NewWorker(deliveryQueue, noopSender{}, cfg.Delivery.ScanInterval, logger, metrics)

	authSvc := auth.NewService(cfg.Gateway.AuthToken)
	gw := gateway.NewServer(store, loop, authSvc, logger, metrics, cfg.Gateway.MaxConnections)

	return &application{gateway: gw, worker: worker, memory: memManager, scheduler: scheduler}, nil
}

func buildLLMAdapter(cfg config.LLMConfig) (llm.Adapter, error) {
	switch cfg.Provider {
	case "openai", "":
		return llm.NewOpenAIAdapter(llm.OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// noopSender is the default Sender until a real channel adapter is
// registered on the bus; it always fails, so queued deliveries are
// retried on the backoff ladder and then dead-lettered rather than
// silently dropped.
type noopSender struct{}

func (noopSender) Send(ctx context.Context, msg models.OutboundMessage) error {
	return fmt.Errorf("no channel adapter registered")
}
