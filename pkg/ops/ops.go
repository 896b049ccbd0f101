// Package ops exposes the solver's /health and /metrics HTTP endpoints.
package ops

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/oif-solver/solver-core/pkg/eventbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthStatus tracks the health of the solver's external dependencies
// for the /health endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	Status      string `json:"status"` // "ok", "degraded", "error"
	Store       string `json:"store"`
	Delivery    string `json:"delivery"`
	Discovery   string `json:"discovery"`
	Subscribers int    `json:"event_subscribers"`

	startTime time.Time
}

// NewHealthStatus constructs a HealthStatus with every component
// reporting "unknown" until the caller sets an initial value.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		Status:    "starting",
		Store:     "unknown",
		Delivery:  "unknown",
		Discovery: "unknown",
		startTime: time.Now(),
	}
}

func (h *HealthStatus) SetStore(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Store = status
	h.updateOverallStatus()
}

func (h *HealthStatus) SetDelivery(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Delivery = status
	h.updateOverallStatus()
}

func (h *HealthStatus) SetDiscovery(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Discovery = status
	h.updateOverallStatus()
}

// updateOverallStatus derives Status from the individual component
// fields. Caller must hold h.mu.
func (h *HealthStatus) updateOverallStatus() {
	switch {
	case h.Store == "error" || h.Delivery == "error":
		h.Status = "error"
	case h.Store != "ok" || h.Delivery != "ok" || h.Discovery != "ok":
		h.Status = "degraded"
	default:
		h.Status = "ok"
	}
}

type healthSnapshot struct {
	Status        string `json:"status"`
	Store         string `json:"store"`
	Delivery      string `json:"delivery"`
	Discovery     string `json:"discovery"`
	Subscribers   int    `json:"event_subscribers"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *HealthStatus) snapshot(bus *eventbus.EventBus) healthSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return healthSnapshot{
		Status:        h.Status,
		Store:         h.Store,
		Delivery:      h.Delivery,
		Discovery:     h.Discovery,
		Subscribers:   bus.SubscriberCount(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
}

// Metrics holds the Prometheus collectors the engine updates as it
// processes intents and orders.
type Metrics struct {
	IntentsDiscovered prometheus.Counter
	IntentsRejected   prometheus.Counter
	OrdersByStatus    *prometheus.GaugeVec
	TxSubmitted       *prometheus.CounterVec
	TxConfirmed       *prometheus.CounterVec
	TxFailed          *prometheus.CounterVec
}

// NewMetrics registers the solver's collectors with registry and returns
// the handles the engine updates.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		IntentsDiscovered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solver_intents_discovered_total",
			Help: "Total intents discovered across all Discovery adapters.",
		}),
		IntentsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "solver_intents_rejected_total",
			Help: "Total intents rejected by an Order-Standard's validation.",
		}),
		OrdersByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solver_orders_by_status",
			Help: "Current count of orders in each status.",
		}, []string{"status"}),
		TxSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_transactions_submitted_total",
			Help: "Total transactions submitted, by kind.",
		}, []string{"kind"}),
		TxConfirmed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_transactions_confirmed_total",
			Help: "Total transactions confirmed, by kind.",
		}, []string{"kind"}),
		TxFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solver_transactions_failed_total",
			Help: "Total transactions failed, by kind.",
		}, []string{"kind"}),
	}
	registry.MustRegister(m.IntentsDiscovered, m.IntentsRejected, m.OrdersByStatus, m.TxSubmitted, m.TxConfirmed, m.TxFailed)
	return m
}

// Server serves /health on one address and /metrics (Prometheus
// exposition format) on another, so a metrics scraper and a load
// balancer's health probe never share a listener.
type Server struct {
	health   *HealthStatus
	bus      *eventbus.EventBus
	registry *prometheus.Registry
}

func NewServer(health *HealthStatus, bus *eventbus.EventBus, registry *prometheus.Registry) *Server {
	return &Server{health: health, bus: bus, registry: registry}
}

func (s *Server) HealthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snapshot := s.health.snapshot(s.bus)
		w.Header().Set("Content-Type", "application/json")
		switch snapshot.Status {
		case "ok", "degraded":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snapshot)
	})
	return mux
}

func (s *Server) MetricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}
