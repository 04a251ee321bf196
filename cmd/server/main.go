package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/happier-dev/happier-sub002/internal/config"
	"github.com/happier-dev/happier-sub002/internal/database"
	"github.com/happier-dev/happier-sub002/internal/handlers"
	"github.com/happier-dev/happier-sub002/internal/ledger"
	"github.com/happier-dev/happier-sub002/internal/lifecycle"
	"github.com/happier-dev/happier-sub002/internal/presence"
	"github.com/happier-dev/happier-sub002/internal/realtime"
	"github.com/happier-dev/happier-sub002/internal/services"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	if err := database.EnsureSchema(ctx, postgresPool); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// Core components
	changeLedger := ledger.New(postgresPool)
	router := realtime.NewRouter()
	io := realtime.NewWebsocketIO()
	router.SetIO(io)

	batcher := presence.NewBatcher()
	store := presence.NewPostgresStore(postgresPool)
	checker := presence.NewPostgresAccessChecker(postgresPool)
	activity := presence.NewActivityCache(checker, cfg.ActivityTTL, cfg.ActivityWriteThreshold)

	coordinator := lifecycle.NewCoordinator()

	var ingestor presence.Ingestor
	if cfg.PresenceUseStream {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to create redis client: %v", err)
		}
		defer redisClient.Close()

		stream := presence.NewRedisStream(redisClient, cfg.PresenceStream, cfg.PresenceGroup)
		ingestor = presence.NewStreamIngestor(stream)

		worker := presence.NewWorker(stream, store, batcher, presence.WorkerConfig{
			Consumer:      cfg.PresenceConsumer,
			FlushInterval: cfg.PresenceFlushInterval,
			ReclaimIdle:   cfg.PresenceReclaimIdle,
			ReadBlock:     cfg.PresenceReadBlock,
		})
		workerDone := make(chan error, 1)
		go func() { workerDone <- worker.Run(ctx) }()
		coordinator.Register("presence-worker", func(context.Context) error {
			return <-workerDone
		})
	} else {
		ingestor = presence.NewLocalIngestor(batcher)
		flusher := presence.NewFlusher(batcher, store, cfg.PresenceFlushInterval)
		flusherDone := make(chan error, 1)
		go func() { flusherDone <- flusher.Run(ctx) }()
		coordinator.Register("presence-flusher", func(context.Context) error {
			return <-flusherDone
		})
	}

	srv := handlers.NewServer(handlers.Deps{
		Ledger:    changeLedger,
		Sessions:  services.NewSessionService(postgresPool, changeLedger, router),
		Artifacts: services.NewArtifactService(postgresPool, changeLedger, router),
		Shares:    services.NewShareService(postgresPool, changeLedger, router),
		Accounts:  services.NewAccountService(postgresPool, changeLedger, router),
		Machines:  services.NewMachineService(postgresPool, changeLedger, router),
		Ingestor:  ingestor,
		Activity:  activity,
		Router:    router,
		IO:        io,
		JWTSecret: cfg.JWTSecret,
		PageLimit: cfg.ChangesPageLimit,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: srv.Routes(),
	}
	coordinator.Register("http-server", func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})

	// graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown finished with errors: %v", err)
		}
		close(shutdownDone)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	// ListenAndServe returns as soon as the http-server hook calls Shutdown;
	// the presence worker's final flush may still be running. Wait for every
	// hook before letting the process exit.
	<-shutdownDone
	log.Println("Server stopped gracefully")
}
