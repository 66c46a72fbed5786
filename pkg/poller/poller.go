// Package poller drives periodic fleet reconciliation and the emergency
// drain path.
package poller

import (
	"context"
	"sync"
	"time"

	"meetfleet/pkg/log"
	"meetfleet/pkg/models"
	"meetfleet/pkg/reconciler"
	"meetfleet/pkg/store"

	"github.com/rs/zerolog"
)

const (
	// DefaultInterval is the default reconciliation cadence.
	DefaultInterval = 30 * time.Second
	// DefaultWorkers bounds how many servers are reconciled concurrently.
	DefaultWorkers = 4
)

// FleetPoller walks the whole fleet on a fixed interval, reconciling each
// server through the service. A server whose previous cycle is still
// running is skipped for the tick instead of being polled twice.
type FleetPoller struct {
	store    *store.Store
	service  *reconciler.Service
	interval time.Duration
	workers  int

	mu       sync.Mutex
	inFlight map[int64]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New creates a fleet poller. Zero interval and workers fall back to the
// defaults.
func New(st *store.Store, service *reconciler.Service, interval time.Duration, workers int) *FleetPoller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &FleetPoller{
		store:    st,
		service:  service,
		interval: interval,
		workers:  workers,
		inFlight: make(map[int64]bool),
		stopCh:   make(chan struct{}),
		logger:   log.With("poller"),
	}
}

// Start runs one synchronous pass and then begins the background loop.
func (p *FleetPoller) Start() {
	p.PollAll(context.Background())

	p.wg.Add(1)
	go p.loop()

	p.logger.Info().Dur("interval", p.interval).Int("workers", p.workers).
		Msg("Fleet poller started")
}

// Stop halts the background loop and waits for in-flight cycles.
func (p *FleetPoller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info().Msg("Fleet poller stopped")
}

func (p *FleetPoller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.PollAll(context.Background())
		}
	}
}

// PollAll reconciles every server once, at most `workers` at a time.
// Per-server failures are logged and never abort the pass.
func (p *FleetPoller) PollAll(ctx context.Context) []reconciler.Outcome {
	servers, err := p.store.ListServers(ctx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to list servers")
		return nil
	}

	outcomes := make([]reconciler.Outcome, 0, len(servers))
	results := make(chan reconciler.Outcome, len(servers))
	sem := make(chan struct{}, p.workers)

	var waitGroup sync.WaitGroup
	for i := range servers {
		id := servers[i].ID
		if !p.tryAcquire(id) {
			p.logger.Warn().Int64("server_id", id).
				Msg("Previous cycle still running, skipping this tick")
			continue
		}

		waitGroup.Add(1)
		go func(serverID int64) {
			defer waitGroup.Done()
			defer p.release(serverID)

			sem <- struct{}{}
			defer func() { <-sem }()

			results <- p.reconcile(ctx, serverID)
		}(id)
	}

	waitGroup.Wait()
	close(results)

	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// PollOne reconciles a single server immediately, outside the tick.
func (p *FleetPoller) PollOne(ctx context.Context, serverID int64) reconciler.Outcome {
	if !p.tryAcquire(serverID) {
		p.logger.Warn().Int64("server_id", serverID).
			Msg("Cycle already running for server")
		return reconciler.Outcome{ServerID: serverID, Kind: reconciler.OutcomeSkipped}
	}
	defer p.release(serverID)

	return p.reconcile(ctx, serverID)
}

func (p *FleetPoller) reconcile(ctx context.Context, serverID int64) reconciler.Outcome {
	outcome := p.service.ReconcileOne(ctx, serverID)
	if outcome.Kind == reconciler.OutcomeError {
		p.logger.Error().Int64("server_id", serverID).Err(outcome.Err).
			Msg("Reconciliation cycle aborted")
	} else {
		p.logger.Info().Int64("server_id", serverID).
			Str("outcome", outcome.Kind.String()).
			Str("health", string(outcome.Health)).
			Int("meetings_ended", outcome.MeetingsEnded).
			Msg("Reconciliation cycle finished")
	}
	return outcome
}

// Panic runs an emergency drain of one server, holding the per-server
// guard so a concurrent tick cannot interleave with the drain.
func (p *FleetPoller) Panic(ctx context.Context, serverID int64) (*models.PanicResult, error) {
	if !p.tryAcquire(serverID) {
		return nil, ErrCycleInProgress
	}
	defer p.release(serverID)

	return p.service.Panic(ctx, serverID)
}

func (p *FleetPoller) tryAcquire(serverID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[serverID] {
		return false
	}
	p.inFlight[serverID] = true
	return true
}

func (p *FleetPoller) release(serverID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, serverID)
}
