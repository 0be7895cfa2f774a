package main

import (
	"context"
	"flag"
	"log"

	"inventory/internal/config"
	"inventory/internal/db"
)

func main() {
	dir := flag.String("dir", "migrations", "directory holding the *.sql migrations")
	flag.Parse()

	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	applied, err := db.Migrate(context.Background(), database, *dir)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Printf("%d migrations applied", len(applied))
}
