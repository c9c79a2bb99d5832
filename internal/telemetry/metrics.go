package telemetry

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics definitions, task-centric rather than agent-session-centric:
// one orchestrator process serves many issues, not one session per project.
var (
	GateInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "issuebot_gate_in_flight",
		Help: "Number of pipeline runs currently holding a concurrency permit.",
	})
	GateCapacity = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "issuebot_gate_capacity",
		Help: "Configured concurrency gate capacity.",
	})

	TasksStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuebot_tasks_started_total",
		Help: "Total pipeline runs admitted through the concurrency gate.",
	})
	TasksCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuebot_tasks_completed_total",
		Help: "Total pipeline runs that reached a terminal status.",
	}, []string{"status"})

	AgentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuebot_agent_attempts_total",
		Help: "Total agent subprocess invocations, including retries.",
	})
	AgentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuebot_agent_retries_total",
		Help: "Total agent subprocess retry attempts after a failed attempt.",
	})
	AgentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "issuebot_agent_duration_seconds",
		Help:    "Wall-clock duration of a single agent subprocess attempt.",
		Buckets: prometheus.DefBuckets,
	})

	ProposalsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuebot_proposals_created_total",
		Help: "Total pull/merge request proposals opened.",
	})
	ProposalsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuebot_proposals_skipped_total",
		Help: "Total runs that completed with no new commits to propose.",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "issuebot_webhook_events_total",
		Help: "Total inbound webhook deliveries by event type.",
	}, []string{"event_type"})
	WebhookTriggeredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuebot_webhook_triggered_total",
		Help: "Total inbound webhook deliveries that triggered a pipeline run.",
	})
)

var (
	metricsOnce    sync.Once
	metricsMu      sync.Mutex
	metricsRunning bool
)

// StartMetricsServer starts an HTTP server exposing Prometheus metrics.
// It attempts to bind to the given port and, if that is in use, the
// following ports, trying 10 consecutive ports in all before giving up.
func StartMetricsServer(basePort int) error {
	metricsMu.Lock()
	if metricsRunning {
		metricsMu.Unlock()
		return nil
	}
	metricsRunning = true
	metricsMu.Unlock()

	metricsOnce.Do(func() {
		http.Handle("/metrics", promhttp.Handler())
	})

	var listener net.Listener
	var err error

	for i := 0; i < 10; i++ {
		port := basePort + i
		addr := ":" + strconv.Itoa(port)
		listener, err = net.Listen("tcp", addr)
		if err == nil {
			fmt.Fprintf(os.Stderr, "Starting metrics server on %s\n", addr)
			return http.Serve(listener, nil)
		}
	}

	metricsMu.Lock()
	metricsRunning = false
	metricsMu.Unlock()
	return fmt.Errorf("failed to find available port starting from %d: %w", basePort, err)
}

// TrackTaskStarted records a pipeline run being admitted.
func TrackTaskStarted() {
	TasksStartedTotal.Inc()
}

// TrackTaskCompleted records a pipeline run reaching a terminal status.
func TrackTaskCompleted(status string) {
	TasksCompletedTotal.WithLabelValues(status).Inc()
}

// TrackAgentAttempt records one agent subprocess invocation and its duration.
func TrackAgentAttempt(seconds float64, isRetry bool) {
	AgentAttemptsTotal.Inc()
	AgentDuration.Observe(seconds)
	if isRetry {
		AgentRetriesTotal.Inc()
	}
}

// TrackProposal records whether a run's completion produced a proposal.
func TrackProposal(created bool) {
	if created {
		ProposalsCreatedTotal.Inc()
	} else {
		ProposalsSkippedTotal.Inc()
	}
}

// TrackWebhookEvent records an inbound delivery and whether it triggered a run.
func TrackWebhookEvent(eventType string, triggered bool) {
	WebhookEventsTotal.WithLabelValues(eventType).Inc()
	if triggered {
		WebhookTriggeredTotal.Inc()
	}
}

// SetGateStats mirrors the concurrency gate's current occupancy.
func SetGateStats(capacity, running int) {
	GateCapacity.Set(float64(capacity))
	GateInFlight.Set(float64(running))
}
