package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/invoice-pipeline/internal/app"
	"github.com/joseph-ayodele/invoice-pipeline/internal/async"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/export"
	"github.com/joseph-ayodele/invoice-pipeline/internal/ingest"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
	repo "github.com/joseph-ayodele/invoice-pipeline/internal/repository"
	"github.com/joseph-ayodele/invoice-pipeline/internal/server"
)

func main() {
	_ = godotenv.Load()

	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", common.PublicMessageOr(err, err.Error()))
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg, false, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	store, err := app.NewStore(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to init object store", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}
	extractor, closeLLM, err := app.NewExtractor(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to init extraction client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	defer closeLLM()

	processor, invoices := app.NewProcessor(cfg, db, store, extractor, logger)
	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)
	manager := pipeline.NewManager(queue, repo.NewUploadJobRepository(db, logger), logger)
	ingestor := ingest.NewFSIngestor(manager, cfg.Pipeline.MaxFileBytes(), logger)
	exporter := export.NewService(invoices, logger)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(server.UnaryLogging(logger)),
		grpc.MaxRecvMsgSize(maxRecvSize(cfg.Pipeline.MaxFileBytes())),
	)
	server.RegisterUploadServiceServer(grpcServer, server.NewUploadService(manager, ingestor, exporter, cfg.Pipeline.MaxFileBytes(), logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	var background sync.WaitGroup
	if cfg.Ingest.WatchDir != "" {
		if cfg.Ingest.UserID == "" {
			logger.Error("WATCH_USER_ID is required when WATCH_DIR is set")
			os.Exit(2)
		}
		background.Add(1)
		go func() {
			defer background.Done()
			err := ingest.Watch(ctx, ingestor, cfg.Ingest.UserID, ingest.WatchConfig{
				Roots:       []string{cfg.Ingest.WatchDir},
				InitialScan: true,
				Debounce:    cfg.Ingest.Debounce,
				SkipHidden:  true,
			}, logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watcher stopped", "error", err)
			}
		}()
	}
	if cfg.Ingest.IMAPHost != "" {
		fetcher, err := ingest.NewIMAPFetcher(ingest.MailboxConfigFrom(cfg.Ingest))
		if err != nil {
			logger.Error("invalid mailbox configuration", "error", common.PublicMessageOr(err, err.Error()))
			os.Exit(2)
		}
		if cfg.Ingest.UserID == "" {
			logger.Error("WATCH_USER_ID is required when IMAP_HOST is set")
			os.Exit(2)
		}
		mailbox := ingest.NewMailboxIngestor(fetcher, manager, cfg.Ingest.UserID, cfg.Pipeline.MaxFileBytes(), logger)
		background.Add(1)
		go func() {
			defer background.Done()
			if err := mailbox.Run(ctx, cfg.Ingest.IMAPPollInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mailbox poller stopped", "error", err)
			}
		}()
	}

	logger.Info("invoiced listening", "addr", addr, "storage", cfg.Storage.Backend, "llm", extractor.ProviderName())
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	background.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	queue.Shutdown(shutdownCtx)
}

// maxRecvSize leaves room for base64 inflation of the largest accepted upload.
func maxRecvSize(maxFile int64) int {
	if maxFile <= 0 {
		return 64 << 20
	}
	return int(maxFile)*2 + 1<<20
}
