package main

import (
	"flag"
	"os"
	"time"

	"meetfleet/pkg/balancer"
	"meetfleet/pkg/log"
	"meetfleet/pkg/poller"
	"meetfleet/pkg/reconciler"
	"meetfleet/pkg/remote"
	"meetfleet/pkg/server"
	"meetfleet/pkg/store"
)

const (
	defaultRetryMax         = 3
	defaultRetryWaitMin     = 1 * time.Second
	defaultRetryWaitMax     = 30 * time.Second
	gracefulShutdownTimeout = 10 * time.Second
)

func main() {
	// os.Exit skips deferred calls, so all work with defers lives in run.
	os.Exit(run())
}

func run() int {
	// Initialize logger
	_ = log.Logger

	addr := flag.String("addr", ":8080", "Admin API listen address")
	dbPath := flag.String("db", "fleet.db", "SQLite database path")
	interval := flag.Duration("poll-interval", poller.DefaultInterval, "Interval between fleet reconciliation passes")
	workers := flag.Int("poll-workers", poller.DefaultWorkers, "Servers reconciled concurrently per pass")
	requestTimeout := flag.Duration("request-timeout", reconciler.DefaultRequestTimeout, "Control protocol request timeout")
	retryMax := flag.Int("retry-max", defaultRetryMax, "Maximum number of connection retries")
	retryWaitMin := flag.Duration("retry-wait-min", defaultRetryWaitMin, "Minimum wait time between retries")
	retryWaitMax := flag.Duration("retry-wait-max", defaultRetryWaitMax, "Maximum wait time between retries")
	healthyThreshold := flag.Int("healthy-threshold", reconciler.DefaultHealthyThreshold, "Consecutive successes needed to recover a server")
	unhealthyThreshold := flag.Int("unhealthy-threshold", reconciler.DefaultUnhealthyThreshold, "Consecutive failures before a server goes offline")
	serverStats := flag.Bool("server-stats", false, "Record per-server usage snapshots every pass")
	meetingStats := flag.Bool("meeting-stats", false, "Record per-meeting usage snapshots every pass")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	if *debug {
		log.SetDebugMode()
		log.Debug().Msg("Debug mode enabled")
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

	client := remote.NewClient(*requestTimeout, *retryMax, *retryWaitMin, *retryWaitMax)
	cfg := reconciler.Config{
		HealthyThreshold:    *healthyThreshold,
		UnhealthyThreshold:  *unhealthyThreshold,
		ServerStatsEnabled:  *serverStats,
		MeetingStatsEnabled: *meetingStats,
	}
	service := reconciler.New(st, client, balancer.New(st), cfg)

	fleetPoller := poller.New(st, service, *interval, *workers)
	fleetPoller.Start()
	defer fleetPoller.Stop()

	adminServer := server.NewServer(st, service, fleetPoller, gracefulShutdownTimeout)
	if err := adminServer.Start(*addr); err != nil {
		log.Error().Err(err).Msg("Server failed")
		return 1
	}
	return 0
}
