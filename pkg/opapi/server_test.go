package opapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/catalogsync/pkg/breaker"
	"github.com/cuemby/catalogsync/pkg/scheduler"
	"github.com/stretchr/testify/assert"
)

func newTestServer() *Server {
	sched := scheduler.New(nil, nil, nil, scheduler.DefaultConfig())
	return New(sched, breaker.NewRegistry())
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"DISABLED"`)
}

func TestHandleHealthMethodNotAllowed(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	s.handleHealth(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestHandleMetricsStore(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics/store/7", nil)
	w := httptest.NewRecorder()
	s.handleMetricsStore(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"storeId":7`)
}

func TestHandleMetricsStoreInvalidID(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/metrics/store/not-a-number", nil)
	w := httptest.NewRecorder()
	s.handleMetricsStore(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCircuitBreakers(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/circuit-breakers", nil)
	w := httptest.NewRecorder()
	s.handleCircuitBreakers(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "source-of-truth")
	assert.Contains(t, w.Body.String(), "marketplace")
}

func TestCircuitBreakerResetLocalhostOnly(t *testing.T) {
	s := newTestServer()
	handler := s.localhostOnly(s.handleCircuitBreakerReset)

	req := httptest.NewRequest(http.MethodPost, "/circuit-breakers/reset/marketplace", nil)
	req.RemoteAddr = "203.0.113.5:4444" // non-loopback
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCircuitBreakerResetFromLoopback(t *testing.T) {
	s := newTestServer()
	handler := s.localhostOnly(s.handleCircuitBreakerReset)

	req := httptest.NewRequest(http.MethodPost, "/circuit-breakers/reset/marketplace", nil)
	req.RemoteAddr = "127.0.0.1:4444"
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCircuitBreakerResetUnknownName(t *testing.T) {
	s := newTestServer()
	handler := s.localhostOnly(s.handleCircuitBreakerReset)

	req := httptest.NewRequest(http.MethodPost, "/circuit-breakers/reset/does-not-exist", nil)
	req.RemoteAddr = "127.0.0.1:4444"
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerSyncLocalhostOnly(t *testing.T) {
	s := newTestServer()
	handler := s.localhostOnly(s.handleTriggerSync)

	req := httptest.NewRequest(http.MethodPost, "/trigger-sync", nil)
	req.RemoteAddr = "203.0.113.5:4444"
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTriggerSyncFromLoopbackWithNoStores(t *testing.T) {
	s := newTestServer()
	handler := s.localhostOnly(s.handleTriggerSync)

	req := httptest.NewRequest(http.MethodPost, "/trigger-sync", nil)
	req.RemoteAddr = "127.0.0.1:4444"
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"outcome":"success"`)
}

func TestRemoteAddrIsLoopback(t *testing.T) {
	assert.True(t, remoteAddrIsLoopback("127.0.0.1:1234"))
	assert.True(t, remoteAddrIsLoopback("[::1]:1234"))
	assert.False(t, remoteAddrIsLoopback("203.0.113.5:1234"))
	assert.False(t, remoteAddrIsLoopback("not-an-address"))
}
