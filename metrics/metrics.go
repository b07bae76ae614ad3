// Package metrics holds the process-wide Prometheus collectors. Counters and
// gauges are lock-free; the exposition endpoint in the server package formats
// them on demand.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotFullBytes counts bytes serialized into full snapshots.
	SnapshotFullBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "t2d_snapshot_full_bytes",
		Help: "Total bytes serialized into full state snapshots.",
	})
	// SnapshotDeltaBytes counts bytes serialized into delta snapshots.
	SnapshotDeltaBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "t2d_snapshot_delta_bytes",
		Help: "Total bytes serialized into delta snapshots.",
	})
	// SnapshotFullCount counts emitted full snapshots.
	SnapshotFullCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "t2d_snapshot_full_count",
		Help: "Number of full snapshots emitted.",
	})
	// SnapshotDeltaCount counts emitted delta snapshots.
	SnapshotDeltaCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "t2d_snapshot_delta_count",
		Help: "Number of delta snapshots emitted.",
	})
	// AuthFailures counts rejected AuthRequests.
	AuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "t2d_auth_failures",
		Help: "Number of rejected authentication attempts.",
	})

	// QueueDepth is the current matchmaking queue length.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "t2d_queue_depth",
		Help: "Sessions currently waiting in the matchmaking queue.",
	})
	// ActiveMatches is the number of running match loops.
	ActiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "t2d_active_matches",
		Help: "Matches currently running.",
	})
	// BotsInMatch is the number of bot participants across running matches.
	BotsInMatch = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "t2d_bots_in_match",
		Help: "Bot participants across running matches.",
	})
	// ProjectilesActive is the live projectile count across matches.
	ProjectilesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "t2d_projectiles_active",
		Help: "Live projectiles across running matches.",
	})
	// ConnectedPlayers is the number of authenticated non-bot sessions.
	ConnectedPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "t2d_connected_players",
		Help: "Authenticated human sessions currently connected.",
	})

	// TickDuration observes per-tick wall time. Geometric buckets starting at
	// 250 microseconds, doubling, matching the original histogram layout.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "t2d_tick_duration_seconds",
		Help:    "Match loop tick duration.",
		Buckets: prometheus.ExponentialBuckets(0.00025, 2, 12),
	})
)
