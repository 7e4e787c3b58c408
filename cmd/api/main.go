// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/config"
	"github.com/hidata/rag-platform/internal/events"
	"github.com/hidata/rag-platform/internal/handler"
	"github.com/hidata/rag-platform/internal/ingest"
	"github.com/hidata/rag-platform/internal/llm"
	"github.com/hidata/rag-platform/internal/middleware"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/service"
	"github.com/hidata/rag-platform/internal/store"
	"github.com/hidata/rag-platform/internal/vectorindex"
	"github.com/hidata/rag-platform/pkg/logger"
	"github.com/hidata/rag-platform/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "rag-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// LLM: Anthropic answers when configured, OpenAI otherwise. Embeddings
	// always come from OpenAI.
	openaiClient, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Error("failed to create OpenAI client", zap.Error(err))
		os.Exit(1)
	}
	var chatClient llm.Client = openaiClient
	if cfg.AnthropicAPIKey != "" {
		chatClient, err = llm.NewClient(llm.ProviderAnthropic, cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client, falling back to OpenAI", zap.Error(err))
			chatClient = openaiClient
		}
	}

	// Stores
	kv := store.NewKeyValueStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	defer kv.Close()

	durable, err := store.NewDurableStore(ctx, store.DurableConfig{
		Region:            cfg.AWSRegion,
		ConversationTable: cfg.ConversationTable,
		WorkspaceTable:    cfg.WorkspaceTable,
		Endpoint:          cfg.DynamoDBEndpoint,
	}, log)
	if err != nil {
		log.Error("failed to create durable store", zap.Error(err))
		os.Exit(1)
	}

	blobs, err := store.NewBlobStore(ctx, store.BlobConfig{
		Region:    cfg.AWSRegion,
		Bucket:    cfg.S3Bucket,
		Namespace: cfg.S3Namespace,
		Endpoint:  cfg.S3Endpoint,
	}, log)
	if err != nil {
		log.Error("failed to create blob store", zap.Error(err))
		os.Exit(1)
	}

	index, err := vectorindex.Open(cfg.IndexDir, openaiClient)
	if err != nil {
		log.Error("failed to open vector index", zap.Error(err))
		os.Exit(1)
	}
	defer index.Close()

	// Events are optional; without NATS the pipeline runs with a noop
	// publisher.
	var publisher events.Publisher = events.NoopPublisher{}
	var natsClient *events.Client
	if cfg.NATSURL != "" {
		natsClient, err = events.Connect(ctx, events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		streamManager := events.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		publisher = streamManager
	}

	// Services
	retrieval := service.NewRetrieval(index, blobs, cfg.RetrievalTopK, log)
	pipeline := ingest.NewPipeline(chatClient, index, blobs, cfg.ChatModel, log)
	maintenance := service.NewMaintenance(index, blobs, log)
	workspace := service.NewWorkspace(durable, kv, log)

	var source service.ContextSource
	switch service.Mode(cfg.GenerationMode) {
	case service.ModeRAG:
		if cfg.ContextDir != "" {
			source = service.DirectorySource{Dir: cfg.ContextDir}
		} else {
			source = retrieval
		}
	}

	generator, err := service.NewGenerator(service.Mode(cfg.GenerationMode),
		chatClient, kv, durable, publisher, source, cfg.ChatModel, log)
	if err != nil {
		log.Error("failed to create generator", zap.Error(err))
		os.Exit(1)
	}

	var classifier service.Classifier = service.NewDetector(chatClient, cfg.ChatModel, cfg.IntentTimeout, log)
	if cfg.IntentMethod == "sampled" {
		classifier = service.NewSampledDetector(chatClient, cfg.ChatModel, cfg.IntentSamples, log)
	}
	router := service.NewRouter(classifier, kv, service.IntentHandlerFunc(
		func(_ context.Context, _ service.RouteRequest, cls service.Classification) (service.RouteResult, error) {
			return service.RouteResult{Classification: cls, Action: "none"}, nil
		}))
	router.Register(service.IntentConversation, service.IntentHandlerFunc(
		func(ctx context.Context, req service.RouteRequest, cls service.Classification) (service.RouteResult, error) {
			turnKey, err := kv.StoreQuery(ctx, req.BlockID, req.Text, middleware.GetUserID(ctx), 0)
			if err != nil {
				return service.RouteResult{}, err
			}
			answer, err := generator.GenerateAnswer(ctx, req.WorkspaceID, turnKey, req.Connections)
			if err != nil {
				return service.RouteResult{}, err
			}
			return service.RouteResult{Classification: cls, Answer: answer, Action: "answered"}, nil
		}))
	router.Register(service.IntentProjectPlanning, service.IntentHandlerFunc(
		func(ctx context.Context, req service.RouteRequest, cls service.Classification) (service.RouteResult, error) {
			projectID, err := workspace.Save(ctx, model.SaveWorkspaceRequest{
				WorkspaceID:   req.WorkspaceID,
				FlowchartData: map[string]any{"prompt": req.Text},
			})
			if err != nil {
				return service.RouteResult{}, err
			}
			return service.RouteResult{Classification: cls, Answer: projectID, Action: "project_created"}, nil
		}))

	// Handlers
	healthHandler := handler.NewHealthHandler(kv, natsClient)
	documentHandler := handler.NewDocumentHandler(pipeline, retrieval, maintenance, log)
	chatHandler := handler.NewChatHandler(kv, generator, workspace, log)
	workspaceHandler := handler.NewWorkspaceHandler(workspace, log)
	intentHandler := handler.NewIntentHandler(router, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documentHandler.Upload)
			r.Get("/", documentHandler.List)
			r.Post("/reconcile", documentHandler.Reconcile)
			r.Post("/cleanup", documentHandler.Cleanup)
			r.Get("/snapshot", documentHandler.Snapshot)
			r.Get("/snapshot/{name}", documentHandler.SnapshotFile)
			r.Route("/{docID}", func(r chi.Router) {
				r.Delete("/", documentHandler.Delete)
				r.Get("/content", documentHandler.Download)
			})
		})

		r.Route("/chat", func(r chi.Router) {
			r.Post("/query", chatHandler.Query)
			r.Route("/{blockID}", func(r chi.Router) {
				r.Get("/history", chatHandler.History)
				r.Delete("/", chatHandler.DeleteBlock)
			})
		})

		r.Route("/workspace", func(r chi.Router) {
			r.Post("/", workspaceHandler.Save)
			r.Route("/{workspaceID}", func(r chi.Router) {
				r.Get("/", workspaceHandler.Load)
				r.Get("/chat", workspaceHandler.ChatHistory)
			})
		})

		r.Post("/intent", intentHandler.Route)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort),
			zap.String("mode", cfg.GenerationMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
