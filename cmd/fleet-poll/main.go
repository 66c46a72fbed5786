// fleet-poll runs a single reconciliation pass (or an emergency drain)
// against the fleet database, for cron jobs and operators.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"meetfleet/pkg/balancer"
	"meetfleet/pkg/log"
	"meetfleet/pkg/poller"
	"meetfleet/pkg/reconciler"
	"meetfleet/pkg/remote"
	"meetfleet/pkg/store"
)

func main() {
	// os.Exit skips deferred calls, so all work with defers lives in run.
	os.Exit(run())
}

func run() int {
	// Initialize logger
	_ = log.Logger

	dbPath := flag.String("db", "fleet.db", "SQLite database path")
	serverID := flag.Int64("server", 0, "Reconcile only this server id (default: whole fleet)")
	panicID := flag.Int64("panic", 0, "Emergency-drain this server id instead of polling")
	workers := flag.Int("poll-workers", poller.DefaultWorkers, "Servers reconciled concurrently")
	requestTimeout := flag.Duration("request-timeout", reconciler.DefaultRequestTimeout, "Control protocol request timeout")
	serverStats := flag.Bool("server-stats", false, "Record per-server usage snapshots")
	meetingStats := flag.Bool("meeting-stats", false, "Record per-meeting usage snapshots")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	if *debug {
		log.SetDebugMode()
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		log.Error().Err(err).Str("db", *dbPath).Msg("Failed to open store")
		return 1
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close store")
		}
	}()

	client := remote.NewClient(*requestTimeout, 3, 1*time.Second, 30*time.Second)
	cfg := reconciler.DefaultConfig()
	cfg.ServerStatsEnabled = *serverStats
	cfg.MeetingStatsEnabled = *meetingStats
	service := reconciler.New(st, client, balancer.New(st), cfg)
	fleetPoller := poller.New(st, service, 0, *workers)

	ctx := context.Background()

	if *panicID != 0 {
		result, err := fleetPoller.Panic(ctx, *panicID)
		if err != nil {
			log.Error().Err(err).Int64("server_id", *panicID).Msg("Panic failed")
			return 1
		}
		log.Info().Int64("server_id", *panicID).
			Int("total", result.Total).Int("success", result.Success).
			Msg("Panic complete")
		if result.Success < result.Total {
			return 1
		}
		return 0
	}

	if *serverID != 0 {
		outcome := fleetPoller.PollOne(ctx, *serverID)
		if outcome.Kind == reconciler.OutcomeError {
			log.Error().Err(outcome.Err).Int64("server_id", *serverID).Msg("Reconciliation failed")
			return 1
		}
		log.Info().Int64("server_id", *serverID).Str("outcome", outcome.Kind.String()).
			Msg("Reconciliation complete")
		return 0
	}

	outcomes := fleetPoller.PollAll(ctx)
	failures := 0
	for _, outcome := range outcomes {
		if outcome.Kind == reconciler.OutcomeError {
			failures++
		}
	}
	log.Info().Int("servers", len(outcomes)).Int("failures", failures).
		Msg("Fleet pass complete")
	if failures > 0 {
		return 1
	}
	return 0
}
