package cgi

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nabbar/edged/config/domain"
)

func TestReadCGIResponseParsesStatusHeadersAndBody(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	go func() {
		defer server.Close()
		server.Write([]byte("200\nContent-Type: text/plain\n\nhello"))
	}()

	res, err := readCGIResponse(client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.status != 200 {
		t.Fatalf("status = %d, want 200", res.status)
	}
	if res.headers["Content-Type"] != "text/plain" {
		t.Fatalf("headers = %v", res.headers)
	}
	if string(res.body) != "hello" {
		t.Fatalf("body = %q", res.body)
	}
}

func TestReadCGIResponseDefaultsStatusOnParseFailure(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	go func() {
		defer server.Close()
		server.Write([]byte("not-a-status\n\n"))
	}()

	res, err := readCGIResponse(client)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.status != 200 {
		t.Fatalf("status = %d, want default 200", res.status)
	}
}

func TestBuildRequestEnvMapsCoreCGIVariables(t *testing.T) {
	r := httptest.NewRequest("POST", "/index.php?x=1", nil)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	env := buildRequestEnv(r, 12)

	if env["REQUEST_METHOD"] != "POST" {
		t.Fatalf("REQUEST_METHOD = %q", env["REQUEST_METHOD"])
	}
	if env["SCRIPT_NAME"] != "/index.php" {
		t.Fatalf("SCRIPT_NAME = %q", env["SCRIPT_NAME"])
	}
	if env["QUERY_STRING"] != "x=1" {
		t.Fatalf("QUERY_STRING = %q", env["QUERY_STRING"])
	}
	if env["CONTENT_LENGTH"] != "12" {
		t.Fatalf("CONTENT_LENGTH = %q", env["CONTENT_LENGTH"])
	}
	if env["HTTP_CONTENT_TYPE"] != "application/x-www-form-urlencoded" {
		t.Fatalf("HTTP_CONTENT_TYPE = %q", env["HTTP_CONTENT_TYPE"])
	}
}

func TestBuildChildEnvIncludesSpoofAndExtras(t *testing.T) {
	cfg := domain.RequestHandler{
		Environment:         map[string]string{"FOO": "bar"},
		ExtraConfig:         map[string]string{"BAZ": "qux"},
		ServerSoftwareSpoof: "edged/1.0",
	}

	env := buildChildEnv(cfg)

	assertContains(t, env, "FOO=bar")
	assertContains(t, env, "BAZ=qux")
	assertContains(t, env, "SERVER_SOFTWARE=edged/1.0")
}

func assertContains(t *testing.T, env []string, want string) {
	t.Helper()
	for _, e := range env {
		if e == want {
			return
		}
	}
	t.Fatalf("env %v does not contain %q", env, want)
}

func TestWorkerUnavailableWhenNotRunning(t *testing.T) {
	w := newWorker(0, "svc", domain.RequestHandler{RequestTimeout: 1}, nil, nil)
	result := make(chan jobResult, 1)

	done := make(chan struct{})
	go func() {
		w.handle(context.Background(), job{result: result})
		close(done)
	}()

	select {
	case res := <-result:
		if res.err == nil {
			t.Fatal("expected an error when worker is not running")
		}
	case <-time.After(time.Second):
		t.Fatal("handle did not return")
	}
	<-done
}
