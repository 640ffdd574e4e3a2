// Package main is the realtime daemon: the live subscription pipeline and
// the WebSocket fan-out server.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/prediction-scanner/internal/chain"
	"github.com/prediction-scanner/internal/config"
	"github.com/prediction-scanner/internal/detector"
	"github.com/prediction-scanner/internal/fanout"
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
	fmt.Println("Prediction Scanner - Realtime Daemon")

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

	// The note cache is optional; without Redis the detector reads
	// wallet_note straight from Postgres.
	var cache *storage.NoteCache
	if cfg.Redis.Enabled() {
		cache, err = storage.NewNoteCache(&cfg.Redis)
		if err != nil {
			log.Printf("Redis unavailable, running without note cache: %v", err)
		} else {
			defer cache.Close()
		}
	}

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

	subscriber, err := chain.NewSubscriber(&chain.SubscriberConfig{
		WSURL:           cfg.Chain.WSURL,
		ContractAddress: cfg.Chain.ContractAddress,
	})
	if err != nil {
		log.Printf("Failed to initialize chain subscription: %v", err)
		db.Close()
		return 2
	}

	online, err := detector.NewOnline(cfg.Detector, store, cache)
	if err != nil {
		log.Printf("Configuration error: %v", err)
		db.Close()
		return 1
	}
	online.Start()
	defer online.Stop()

	hub := fanout.NewHub()
	server := fanout.NewServer(cfg.Fanout.Port, hub)
	realtime := pipeline.NewRealtime(facade, subscriber.Events(), store, online, hub)

	sup := supervisor.NewRealtime(realtime, subscriber, server, db)
	if err := sup.Run(context.Background()); err != nil {
		log.Printf("Realtime daemon failed: %v", err)
		return 2
	}
	return 0
}
