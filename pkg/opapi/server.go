package opapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/catalogsync/pkg/breaker"
	"github.com/cuemby/catalogsync/pkg/log"
	"github.com/cuemby/catalogsync/pkg/metrics"
	"github.com/cuemby/catalogsync/pkg/scheduler"
	"github.com/rs/zerolog"
)

// Server is the operator HTTP surface: health, metrics rollups, circuit
// breaker introspection/reset, and a manual sync trigger, served off an
// http.ServeMux with explicit timeouts and JSON responses.
type Server struct {
	scheduler *scheduler.Scheduler
	breakers  *breaker.Registry
	mux       *http.ServeMux
	logger    zerolog.Logger
}

// New constructs a Server wired to sched and breakers.
func New(sched *scheduler.Scheduler, breakers *breaker.Registry) *Server {
	s := &Server{
		scheduler: sched,
		breakers:  breakers,
		mux:       http.NewServeMux(),
		logger:    log.WithComponent("opapi"),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/metrics/store/", s.handleMetricsStore)
	s.mux.HandleFunc("/metrics/history", s.handleMetricsHistory)
	s.mux.HandleFunc("/circuit-breakers", s.handleCircuitBreakers)
	s.mux.HandleFunc("/circuit-breakers/reset/", s.localhostOnly(s.handleCircuitBreakerReset))
	s.mux.HandleFunc("/trigger-sync", s.localhostOnly(s.handleTriggerSync))

	return s
}

// Start blocks serving addr until the listener errors or is closed.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

type healthResponse struct {
	Status    scheduler.HealthState `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
}

// handleHealth reflects the last sweep outcome (UP/ERROR/DISABLED).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	status := s.scheduler.Health()
	code := http.StatusOK
	if status == scheduler.HealthError {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{Status: status, Timestamp: time.Now()})
}

type storeMetrics struct {
	StoreID             int `json:"storeId"`
	ConsecutiveFailures int `json:"consecutiveFailures"`
}

// handleMetricsStore implements GET /metrics/store/:id, a per-store
// rollup of consecutive failures.
func (s *Server) handleMetricsStore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	idStr := strings.TrimPrefix(r.URL.Path, "/metrics/store/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid store id", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, storeMetrics{
		StoreID:             id,
		ConsecutiveFailures: s.scheduler.ConsecutiveFailures(id),
	})
}

// handleMetricsHistory implements GET /metrics/history: the bounded
// in-memory ring of recent sweep outcomes.
func (s *Server) handleMetricsHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.History())
}

type breakerStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// handleCircuitBreakers implements GET /circuit-breakers.
func (s *Server) handleCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	all := s.breakers.All()
	out := make([]breakerStatus, len(all))
	for i, b := range all {
		out[i] = breakerStatus{Name: b.Name(), State: b.State()}
		metrics.CircuitBreakerState.WithLabelValues(b.Name()).Set(metrics.CircuitStateValue(b.State()))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCircuitBreakerReset implements POST /circuit-breakers/reset/:name
// (localhost-only).
func (s *Server) handleCircuitBreakerReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/circuit-breakers/reset/")
	if err := s.breakers.Reset(name); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Info().Str("breaker", name).Msg("circuit breaker reset via operator surface")
	writeJSON(w, http.StatusOK, breakerStatus{Name: name, State: "closed"})
}

type triggerSyncResponse struct {
	SweepID string                   `json:"sweepId"`
	Outcome string                   `json:"outcome"`
	Stores  []scheduler.StoreOutcome `json:"stores"`
}

// handleTriggerSync implements POST /trigger-sync (localhost-only):
// runs one sweep inline and returns its record.
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	record, err := s.scheduler.RunOnce(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, triggerSyncResponse{
		SweepID: record.ID,
		Outcome: string(record.Outcome),
		Stores:  record.Stores,
	})
}

// localhostOnly wraps h so that only requests whose RemoteAddr resolves
// to the loopback interface are served.
func (s *Server) localhostOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !remoteAddrIsLoopback(r.RemoteAddr) {
			http.Error(w, "forbidden: localhost only", http.StatusForbidden)
			return
		}
		h(w, r)
	}
}

func remoteAddrIsLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
