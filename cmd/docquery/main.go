package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Ashok161/docquery/internal/answer"
	"github.com/Ashok161/docquery/internal/chunk"
	"github.com/Ashok161/docquery/internal/config"
	"github.com/Ashok161/docquery/internal/index"
	"github.com/Ashok161/docquery/internal/index/chroma"
	"github.com/Ashok161/docquery/internal/index/qdrant"
	"github.com/Ashok161/docquery/internal/ingest"
	"github.com/Ashok161/docquery/internal/llm"
	"github.com/Ashok161/docquery/internal/llm/gemini"
	"github.com/Ashok161/docquery/internal/observability"
	"github.com/Ashok161/docquery/internal/ratelimit"
	"github.com/Ashok161/docquery/internal/retrieval"
	"github.com/Ashok161/docquery/internal/secrets"
	"github.com/Ashok161/docquery/internal/server"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	var (
		configPath string
		docsDir    string
		jsonOutput bool
		topK       int
	)

	rootCmd := &cobra.Command{
		Use:   "docquery",
		Short: "Question answering over a local PDF corpus",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (optional)")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract, chunk, embed and index PDF documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, docsDir, jsonOutput)
		},
	}
	ingestCmd.Flags().StringVar(&docsDir, "dir", "", "Documents directory (defaults to ingest.documents_dir)")
	ingestCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(configPath, strings.Join(args, " "), topK, jsonOutput)
		},
	}
	askCmd.Flags().IntVar(&topK, "top-k", 0, "Number of matches to retrieve (defaults to query.top_k)")
	askCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the answer as JSON")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the query API with health and metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show index backend status and entry count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(configPath)
		},
	}

	rootCmd.AddCommand(ingestCmd, askCmd, serveCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runIngest(configPath, docsDir string, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	tp, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()
	defer func() { _ = observability.Audit().Close() }()

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	uploader := ingest.NewUploader(
		newEmbedder(client, cfg),
		store,
		ratelimit.NewInterval(cfg.Ingest.EmbedInterval),
		ingest.WithBatchSize(cfg.Ingest.EmbedBatchSize),
		ingest.WithWriteRetry(cfg.LLM.MaxRetries, cfg.LLM.RetryDelay),
	)

	pipeline, err := ingest.NewPipeline(store, uploader,
		ingest.WithMaxDocuments(cfg.Ingest.MaxDocuments),
		ingest.WithDocumentBatch(cfg.Ingest.DocBatchSize),
		ingest.WithBatchPause(ratelimit.NewInterval(cfg.Ingest.BatchPause)),
		ingest.WithMinTextLength(cfg.Ingest.MinTextLength),
		ingest.WithSplitter(chunk.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)),
		ingest.WithCollection(cfg.Index.Collection),
	)
	if err != nil {
		return err
	}
	defer pipeline.Release()

	dir := docsDir
	if dir == "" {
		dir = cfg.Ingest.DocumentsDir
	}

	fmt.Printf("Ingesting PDFs from %s into %s/%s\n", dir, cfg.Index.Backend, cfg.Index.Collection)
	stats, err := pipeline.Run(ctx, dir)
	if err != nil {
		return err
	}

	if jsonOutput {
		report, err := stats.JSON()
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		fmt.Println(string(report))
	} else {
		stats.PrintSummary(os.Stdout)
	}

	if cfg.Ingest.ReportPath != "" {
		if err := writeReport(stats, cfg.Ingest.ReportPath); err != nil {
			return err
		}
		fmt.Printf("Report written to %s\n", cfg.Ingest.ReportPath)
	}
	return nil
}

func runAsk(configPath, question string, topK int, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	tp, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()
	defer func() { _ = observability.Audit().Close() }()

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	retriever, err := retrieval.NewRetriever(newEmbedder(client, cfg), store,
		retrieval.WithTopK(cfg.Query.TopK),
		retrieval.WithMaxDistance(cfg.Query.MaxDistance),
	)
	if err != nil {
		return err
	}
	composer := answer.NewComposer(newGenerators(client, cfg))

	matches, err := retriever.Retrieve(ctx, question, topK)
	if err != nil {
		return err
	}
	ans, err := composer.Compose(ctx, question, matches)
	if err != nil {
		return err
	}

	if jsonOutput {
		out, err := json.MarshalIndent(ans, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding answer: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(ans.Text)
	fmt.Println()
	fmt.Printf("Model: %s  Matches: %d\n", ans.Model, len(matches))
	return nil
}

func runServe(configPath string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)
	logger := slog.Default().With("component", "main")

	tp, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}

	client, err := newLLMClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("llm client: %w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	retriever, err := retrieval.NewRetriever(newEmbedder(client, cfg), store,
		retrieval.WithTopK(cfg.Query.TopK),
		retrieval.WithMaxDistance(cfg.Query.MaxDistance),
	)
	if err != nil {
		return err
	}
	composer := answer.NewComposer(newGenerators(client, cfg))

	api, err := server.NewAPIServer(retriever, composer, store)
	if err != nil {
		return err
	}

	health := server.NewHealthServer(version)
	health.RegisterCheck("index", server.IndexHealthChecker(store))
	health.RegisterCheck("generation", server.GeneratorHealthChecker(cfg.LLM.GenerationModels))

	shutdown := server.NewShutdownHandler(server.DefaultShutdownConfig())
	shutdown.Register(server.HTTPServerShutdownHook("query-api", func(ctx context.Context) error {
		api.Shutdown()
		return nil
	}))
	shutdown.Register(server.HTTPServerShutdownHook("health", func(ctx context.Context) error {
		health.Shutdown()
		return nil
	}))
	shutdown.Register(server.TracingShutdownHook(tp.Shutdown))
	shutdown.Register(server.IndexShutdownHook(store.Close))
	shutdown.Register(server.AuditLoggerShutdownHook(observability.Audit().Close))
	shutdown.Start()

	errCh := make(chan error, 2)
	go func() {
		if err := health.ListenAndServe(cfg.Server.HealthAddr); err != nil {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		if err := api.ListenAndServe(cfg.Server.Addr); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	health.SetReady(true)
	logger.Info("docquery serving", "addr", cfg.Server.Addr, "health_addr", cfg.Server.HealthAddr)

	select {
	case err := <-errCh:
		shutdown.Shutdown()
		shutdown.Wait()
		return err
	case <-shutdown.Done():
	}
	shutdown.Wait()
	return nil
}

func runStatus(configPath string) error {
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cfg.Log)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("index unreachable: %w", err)
	}

	fmt.Printf("Backend:    %s (%s:%d)\n", cfg.Index.Backend, cfg.Index.Host, cfg.Index.Port)
	fmt.Printf("Collection: %s\n", cfg.Index.Collection)
	fmt.Printf("Entries:    %d\n", count)
	return nil
}

func setupLogging(cfg config.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initTelemetry(ctx context.Context, cfg *config.Config) (*observability.TracerProvider, error) {
	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "docquery",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := observability.InitGlobalAuditLogger(&observability.AuditConfig{
		Enabled:    cfg.Audit.Path != "",
		OutputPath: cfg.Audit.Path,
	}); err != nil {
		return nil, fmt.Errorf("init audit log: %w", err)
	}
	return tp, nil
}

// newLLMClient resolves the API key through the secrets manager and
// fails fast when it is missing or a placeholder.
func newLLMClient(ctx context.Context, cfg *config.Config) (*gemini.Client, error) {
	manager, err := secrets.NewManager(secrets.DefaultConfig())
	if err != nil {
		return nil, err
	}
	apiKey := manager.GetOrDefault(ctx, string(secrets.KeyLLMAPIKey), cfg.LLM.APIKey)
	return gemini.NewClient(apiKey, cfg.LLM.BaseURL)
}

func newEmbedder(client *gemini.Client, cfg *config.Config) llm.Embedder {
	return llm.NewRetryingEmbedder(
		gemini.NewEmbedder(client, cfg.LLM.EmbedModel, cfg.LLM.EmbedTimeout),
		&llm.RetryConfig{MaxAttempts: cfg.LLM.MaxRetries, RetryDelay: cfg.LLM.RetryDelay},
	)
}

// newGenerators builds the generation chain in config order. An empty
// model list is valid and leaves the composer on the extractive fallback.
func newGenerators(client *gemini.Client, cfg *config.Config) []llm.Generator {
	generators := make([]llm.Generator, 0, len(cfg.LLM.GenerationModels))
	for _, model := range cfg.LLM.GenerationModels {
		generators = append(generators, gemini.NewGenerator(client, model, cfg.LLM.GenerateTimeout, gemini.GenerationConfig{
			Temperature:     cfg.LLM.Temperature,
			TopK:            cfg.LLM.TopK,
			TopP:            cfg.LLM.TopP,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		}))
	}
	return generators
}

func openStore(ctx context.Context, cfg *config.Config) (index.Store, error) {
	switch cfg.Index.Backend {
	case "qdrant":
		return qdrant.New(ctx, cfg.Index.Host, cfg.Index.Port, cfg.Index.Collection, cfg.Index.Dimension)
	case "chroma", "":
		return chroma.New(cfg.Index.Host, cfg.Index.Port, cfg.Index.Collection), nil
	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.Index.Backend)
	}
}

func writeReport(stats *ingest.RunStats, path string) error {
	report, err := stats.JSON()
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.WriteFile(path, report, 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
