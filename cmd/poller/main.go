package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MarkHewis/tfl-drift/internal/config"
	"github.com/MarkHewis/tfl-drift/internal/feed"
	"github.com/MarkHewis/tfl-drift/internal/feed/gtfsrt"
	"github.com/MarkHewis/tfl-drift/internal/feed/tfl"
	"github.com/MarkHewis/tfl-drift/internal/poller"
	"github.com/MarkHewis/tfl-drift/internal/server"
	"github.com/MarkHewis/tfl-drift/internal/state"
)

func main() {
	log.Println("Starting drift tracker...")

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Config loaded: line=%s direction=%s feed=%s poll_interval=%v", cfg.LineID, cfg.Direction, cfg.Feed, cfg.PollInterval)

	st := state.Load(cfg.StatePath, cfg.Direction)

	// The TfL client doubles as the stop metadata resolver for both
	// feeds; GTFS-RT stop ids that are not NaPTAN codes simply stay
	// unresolved stubs and never reach the snapshot.
	client := tfl.NewClient(cfg.TfLBaseURL, cfg.TfLAppKey, cfg.TfLMaxRPS)

	var source feed.Source
	switch cfg.Feed {
	case config.FeedGTFSRT:
		source = gtfsrt.NewSource(cfg.TripUpdatesURL, cfg.LineID, cfg.DirectionID, cfg.MaxPredictionAge)
	default:
		source = tfl.NewSource(client, cfg.LineID, cfg.Direction)
	}

	srv := server.New(3 * cfg.PollInterval)
	go func() {
		log.Printf("Serving snapshot on :%s", cfg.Port)
		if err := http.ListenAndServe(":"+cfg.Port, srv.Handler()); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	p := poller.New(cfg, source, client, st, srv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initial cycle immediately, then fixed-interval polling
	if err := p.RunCycle(ctx); err != nil {
		log.Printf("Poller: %v", err)
	}

	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := p.RunCycle(ctx); err != nil {
					log.Printf("Poller: %v", err)
				}
			case <-ctx.Done():
				log.Println("Polling loop stopped")
				return
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("Shutting down...")
	cancel()
}
