package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inventory/internal/app"
	"inventory/internal/config"
	"inventory/internal/handlers"

	"github.com/robfig/cron"
)

func main() {
	cfg := config.Load()
	inventory, err := app.Load(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to start inventory: %v", err)
	}
	defer inventory.Close()

	sweeper := cron.New()
	if err := sweeper.AddJob(cfg.SweepSchedule, sweepJob{app: inventory}); err != nil {
		log.Fatalf("invalid sweep schedule %q: %v", cfg.SweepSchedule, err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	handler := handlers.New(cfg, inventory.HandlerDeps())
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("inventory API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// sweepJob expires overdue trades on the cron schedule.
type sweepJob struct {
	app *app.App
}

func (j sweepJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	j.app.Sweep(ctx, time.Now())
}
