package httpserver

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestServerConfigIsTLSReflectsResolver(t *testing.T) {
	cfg := ServerConfig{Name: "plain", Listen: "127.0.0.1:0", Expose: "http://127.0.0.1"}
	if cfg.IsTLS() {
		t.Fatalf("expected no TLS without a resolver")
	}

	cfg.Resolver = fakeResolver{}
	if !cfg.IsTLS() {
		t.Fatalf("expected TLS once a resolver is set")
	}
}

type fakeResolver struct{}

func (fakeResolver) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return nil, nil
}

func TestServerListenAndShutdown(t *testing.T) {
	ln := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := ln.Listener.Addr().String()
	ln.Close()

	cfg := &ServerConfig{Name: "t", Listen: addr, Expose: "http://" + addr}
	srv := NewServer(cfg)

	if err := srv.Listen(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})); err != nil {
		t.Fatalf("listen: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if !srv.IsRunning() {
		t.Fatalf("expected server to be running")
	}

	srv.Shutdown()

	if srv.IsRunning() {
		t.Fatalf("expected server to be stopped")
	}
}

func TestPoolAddGetHas(t *testing.T) {
	cfg := &ServerConfig{Name: "a", Listen: "127.0.0.1:19191", Expose: "http://127.0.0.1:19191"}
	srv := NewServer(cfg)

	p := NewPool(srv)
	if !p.Has("127.0.0.1:19191") {
		t.Fatalf("expected pool to contain bound address")
	}
	if p.Get("127.0.0.1:19191") == nil {
		t.Fatalf("expected Get to return the server")
	}
	if p.Len() != 1 {
		t.Fatalf("len = %d", p.Len())
	}
}
