package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/transitkl/kl-bus/internal/api"
	"github.com/transitkl/kl-bus/internal/config"
	"github.com/transitkl/kl-bus/internal/fleet"
	"github.com/transitkl/kl-bus/internal/ingest"
	"github.com/transitkl/kl-bus/internal/kiosk"
	"github.com/transitkl/kl-bus/internal/metrics"
	"github.com/transitkl/kl-bus/internal/schedule"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to redis; the service is useless without its cache.
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Redis unreachable at %s: %v", cfg.RedisURL, err)
	}
	pingCancel()

	cache := fleet.NewCache(rdb)

	// Load the static schedule. A missing dataset degrades the route
	// and ETA endpoints but live positions still flow.
	catalog := schedule.NewCatalog(cfg.GTFSDataPath, cfg.ScheduleRefresh)
	if err := catalog.Load(); err != nil {
		log.Printf("Failed to load schedule from %s: %v", cfg.GTFSDataPath, err)
	}

	status := ingest.NewStatus()
	collector := metrics.NewCollector()
	ingestor := ingest.New(cfg.FeedURL, cache, status, collector)

	var kioskClient *kiosk.Client
	if cfg.KioskURL != "" {
		kioskClient = kiosk.NewClient(cfg.KioskURL)
	}

	apiServer := api.NewServer(api.Config{
		Cache:      cache,
		Catalog:    catalog,
		Status:     status,
		Metrics:    collector,
		Kiosk:      kioskClient,
		GTFSRTURL:  cfg.GTFSRTURL,
		ActiveTTL:  cfg.ActiveTTL,
		StaleAfter: cfg.StaleAfter,
	})
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiServer.Router(),
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	// Start the stream ingestor
	wg.Add(1)
	go func() {
		defer wg.Done()
		ingestor.Run(ctx)
	}()

	// Start server
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Server listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for termination signal
	<-quit
	log.Println("Shutting down server...")

	// Stop the ingestor
	cancel()

	// Gracefully shut down server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// Wait for all goroutines to complete
	wg.Wait()
	log.Println("Server exited properly")
}
