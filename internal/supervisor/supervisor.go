// Package supervisor owns process lifecycle: it starts the pipelines,
// schedules the periodic graceful restart of the backfill, and routes
// shutdown signals into an ordered teardown.
package supervisor

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prediction-scanner/internal/chain"
	"github.com/prediction-scanner/internal/fanout"
	"github.com/prediction-scanner/internal/pipeline"
	"github.com/prediction-scanner/internal/storage"
)

// restartInterval is how often the backfill workers are gracefully recycled
// so the main worker re-anchors at the live tip.
const restartInterval = 30 * time.Minute

// History runs the backfill daemon: the historical pipeline plus the
// restart schedule.
type History struct {
	pipeline *pipeline.Historical
	db       *storage.PostgresDB

	interval time.Duration
}

// NewHistory wires the history-mode supervisor
func NewHistory(p *pipeline.Historical, db *storage.PostgresDB) *History {
	return &History{pipeline: p, db: db, interval: restartInterval}
}

// Run starts the workers and blocks until a shutdown signal arrives.
// Returns nil on a clean signal-driven exit.
func (s *History) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.pipeline.Start(ctx)
	log.Printf("[Supervisor] history mode up, restart every %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pipeline.GracefulRestart(ctx)
		case <-ctx.Done():
			log.Printf("[Supervisor] shutdown signal received, draining backfill")
			s.pipeline.Stop()
			s.db.Close()
			log.Printf("[Supervisor] history mode stopped")
			return nil
		}
	}
}

// Realtime runs the live daemon: fan-out server, chain subscription and the
// realtime pipeline.
type Realtime struct {
	pipeline   *pipeline.Realtime
	subscriber *chain.Subscriber
	server     *fanout.Server
	db         *storage.PostgresDB
}

// NewRealtime wires the realtime-mode supervisor
func NewRealtime(p *pipeline.Realtime, sub *chain.Subscriber, srv *fanout.Server, db *storage.PostgresDB) *Realtime {
	return &Realtime{pipeline: p, subscriber: sub, server: srv, db: db}
}

// Run starts the fan-out listener, the subscription and the pipeline, and
// blocks until a signal or an unrecoverable failure. A fan-out bind failure
// is fatal.
func (s *Realtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	go func() { serverErr <- s.server.Start() }()

	subDone := make(chan struct{})
	go func() {
		defer close(subDone)
		s.subscriber.Run(ctx)
	}()

	pipeErr := make(chan error, 1)
	go func() { pipeErr <- s.pipeline.Run(ctx) }()

	log.Printf("[Supervisor] realtime mode up")

	var runErr error
	pipeDrained := false
	select {
	case err := <-serverErr:
		runErr = err
	case err := <-pipeErr:
		pipeDrained = true
		if err != nil && ctx.Err() == nil {
			runErr = err
		}
	case <-ctx.Done():
	}

	// Ordered teardown: close the subscription, let the pipeline drain the
	// stream, then drop the fan-out clients and the pool.
	cancel()
	<-subDone
	if !pipeDrained {
		<-pipeErr
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("[Supervisor] fanout shutdown: %v", err)
	}
	s.db.Close()
	log.Printf("[Supervisor] realtime mode stopped")
	return runErr
}
