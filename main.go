package main

import (
	"os"

	"gmaps-scraper/config"
	"gmaps-scraper/geo"
	"gmaps-scraper/server"
	"gmaps-scraper/storage"
	"gmaps-scraper/utils"
)

func main() {
	cfg := config.Load()
	logger := utils.NewLogger(cfg.Verbose)

	logger.Info("=== Google Maps Lead Scraper starting ===")
	logger.Info("Config — concurrency: %d | listing cap: %d | delay: %v–%v | session timeout: %v",
		cfg.MaxConcurrency, cfg.ListingCap, cfg.DelayMin, cfg.DelayMax, cfg.SessionTimeout)

	var archive storage.ArchiveWriter
	if cfg.PostgresEnabled {
		pgWriter, err := storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			os.Exit(1)
		}
		defer pgWriter.Close()
		archive = pgWriter
		logger.Info("Listing archive enabled (PostgreSQL, table: listings)")
	}

	geoClient := geo.NewClient(cfg.PostcodesAPIURL, logger)

	srv := server.New(cfg, logger, geoClient, archive)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Server stopped: %v", err)
		os.Exit(1)
	}
}
