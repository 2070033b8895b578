package proxyprocessor_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/lbregistry"
	"github.com/nabbar/edged/proxyprocessor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorProxiesToUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hello", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	cfg := domain.ProxyProcessor{ID: 1, UpstreamURLs: []string{upstream.URL}}
	p := proxyprocessor.New(cfg, lbregistry.NewRoundRobin(cfg.UpstreamURLs), nil)

	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	rec := httptest.NewRecorder()

	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestProcessorReturnsBadGatewayWithNoUpstream(t *testing.T) {
	cfg := domain.ProxyProcessor{ID: 2}
	p := proxyprocessor.New(cfg, lbregistry.NewRoundRobin(nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestProcessorSetsForwardedHeaders(t *testing.T) {
	var gotXFF, gotXFHost, gotXFProto string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotXFF = r.Header.Get("X-Forwarded-For")
		gotXFHost = r.Header.Get("X-Forwarded-Host")
		gotXFProto = r.Header.Get("X-Forwarded-Proto")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := domain.ProxyProcessor{ID: 3, UpstreamURLs: []string{upstream.URL}}
	p := proxyprocessor.New(cfg, lbregistry.NewRoundRobin(cfg.UpstreamURLs), nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "example.test"
	req.RemoteAddr = "10.0.0.5:54321"
	rec := httptest.NewRecorder()

	p.ServeHTTP(rec, req)

	assert.Equal(t, "10.0.0.5", gotXFF)
	assert.Equal(t, "example.test", gotXFHost)
	assert.Equal(t, "http", gotXFProto)
}
