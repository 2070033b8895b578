package cgi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/portmanager"
)

func TestServeHTTPGatewayTimeoutWhenNoDispatcherRunning(t *testing.T) {
	cfg := domain.RequestHandler{ID: 1, ConcurrentThreads: 1}
	s := New(cfg, portmanager.New(9000, 9100), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/x.php", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusGatewayTimeout)
	}
}

func TestServeHTTPServiceUnavailableWhenQueueFull(t *testing.T) {
	cfg := domain.RequestHandler{ID: 2, ConcurrentThreads: 1}
	s := New(cfg, portmanager.New(9000, 9100), nil)
	s.queue = make(chan job)

	req := httptest.NewRequest(http.MethodGet, "/x.php", nil)
	rec := httptest.NewRecorder()

	s.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestNewSupervisorSizesWorkerPoolFromConcurrentThreads(t *testing.T) {
	cfg := domain.RequestHandler{ID: 3, ConcurrentThreads: 4}
	s := New(cfg, portmanager.New(9000, 9100), nil)

	if len(s.workers) != 4 {
		t.Fatalf("worker pool size = %d, want 4", len(s.workers))
	}
}
