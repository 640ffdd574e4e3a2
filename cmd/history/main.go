// Package main is the history daemon: the backfill pipeline with its
// supervisor, walking closed epochs from the live tip back to genesis.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/prediction-scanner/internal/chain"
	"github.com/prediction-scanner/internal/config"
	"github.com/prediction-scanner/internal/detector"
	"github.com/prediction-scanner/internal/logging"
	"github.com/prediction-scanner/internal/pipeline"
	"github.com/prediction-scanner/internal/storage"
	"github.com/prediction-scanner/internal/supervisor"
	"github.com/prediction-scanner/internal/timeutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	fmt.Println("Prediction Scanner - History Daemon")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	if err := cfg.RequireDatabase(); err != nil {
		log.Printf("Configuration error: %v", err)
		return 1
	}
	if err := timeutil.SetZone(cfg.Timezone); err != nil {
		log.Printf("Configuration error: %v", err)
		return 1
	}
	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)

	log.Println("Connecting to Postgres...")
	db, err := storage.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Printf("Failed to connect to Postgres: %v", err)
		return 2
	}
	store := storage.NewPostgresStore(db)

	facade, err := chain.NewFacade(&chain.FacadeConfig{
		RPCURL:          cfg.Chain.RPCURL,
		ContractAddress: cfg.Chain.ContractAddress,
		RateLimitRPS:    cfg.Chain.RateLimitRPS,
	})
	if err != nil {
		log.Printf("Failed to initialize chain facade: %v", err)
		db.Close()
		return 2
	}
	defer facade.Close()

	offline := detector.NewOffline(store, cfg.Detector.MultiClaimThreshold)
	historical := pipeline.NewHistorical(facade, store, offline)

	sup := supervisor.NewHistory(historical, db)
	if err := sup.Run(context.Background()); err != nil {
		log.Printf("History daemon failed: %v", err)
		return 2
	}
	return 0
}
