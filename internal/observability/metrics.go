package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Session end reasons. Label values stay bounded to this set.
const (
	EndReasonQuit       = "quit"
	EndReasonTimeout    = "timeout"
	EndReasonDisconnect = "disconnect"
	EndReasonError      = "error"
	EndReasonShutdown   = "shutdown"
)

// Metrics with bounded cardinality (no per-player labels).
var (
	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "arena_tick_duration_seconds",
		Help:    "Time spent in one simulation tick",
		Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05},
	})

	entityCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_entities",
		Help: "Live entities in the arena",
	})

	bulletCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_bullets",
		Help: "Live bullets in the arena",
	})

	hitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_hits_total",
		Help: "Bullet hits credited to a shooter",
	})

	inboxDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_inbox_dropped_total",
		Help: "Simulation requests rejected because the inbox was full",
	})

	connectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_connections_total",
		Help: "Client connections seen by the acceptor, by outcome",
	}, []string{"outcome"})

	acceptErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_accept_errors_total",
		Help: "Errors returned by the client listener's Accept",
	})

	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_sessions_active",
		Help: "Currently connected protocol sessions",
	})

	sessionsEnded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_sessions_ended_total",
		Help: "Protocol sessions ended, by reason",
	}, []string{"reason"})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_commands_total",
		Help: "Protocol command units processed, by code and outcome",
	}, []string{"code", "outcome"})
)

// ObserveTick records the wall-clock duration of one simulation tick and the
// population after it.
func ObserveTick(d time.Duration, entities, bullets int) {
	tickDuration.Observe(d.Seconds())
	entityCount.Set(float64(entities))
	bulletCount.Set(float64(bullets))
}

// AddHits counts bullet hits credited during a tick.
func AddHits(n int) {
	if n > 0 {
		hitsTotal.Add(float64(n))
	}
}

// InboxDropped counts a rejected simulation request.
func InboxDropped() {
	inboxDropped.Inc()
}

// ConnectionAccepted counts a connection handed to a session handler.
func ConnectionAccepted() {
	connectionsTotal.WithLabelValues("accepted").Inc()
}

// ConnectionRefused counts a connection turned away at the connection cap.
func ConnectionRefused() {
	connectionsTotal.WithLabelValues("refused").Inc()
}

// AcceptError counts a failed Accept call.
func AcceptError() {
	acceptErrors.Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge and records why it ended.
//
// Precondition: reason is one of the EndReason constants.
func SessionClosed(reason string) {
	sessionsActive.Dec()
	sessionsEnded.WithLabelValues(reason).Inc()
}

// CommandHandled records one processed command unit. code must come from the
// fixed protocol vocabulary or be "unknown".
func CommandHandled(code string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	commandsTotal.WithLabelValues(code, outcome).Inc()
}

// MetricsHandler returns the Prometheus scrape handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
