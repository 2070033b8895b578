package pipeline

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/nabbar/edged/config/domain"
)

type fakeIndex struct {
	sites map[uint32]map[string]domain.Site
}

func (f fakeIndex) SitesForBinding(bindingID uint32) []domain.Site {
	var out []domain.Site
	for _, s := range f.sites[bindingID] {
		out = append(out, s)
	}
	return out
}

func (f fakeIndex) ResolveSite(bindingID uint32, hostname string) (domain.Site, bool) {
	s, ok := f.sites[bindingID][hostname]
	return s, ok
}

type fakeChallenges struct {
	token   string
	keyAuth string
}

func (f fakeChallenges) TryHandle(path string) (string, bool) {
	if path == wellKnownACMEPrefix+f.token {
		return f.keyAuth, true
	}
	return "", false
}

type fakeProcessors struct {
	handlers map[uint32]http.Handler
	cfgs     map[uint32]domain.RequestHandler
}

func (f fakeProcessors) Handler(id uint32) (http.Handler, domain.RequestHandler, bool) {
	h, ok := f.handlers[id]
	return h, f.cfgs[id], ok
}

func TestPipelineInterceptsACMEHTTP01Challenge(t *testing.T) {
	p := New(Binding{ID: 1, IsTLS: false}, fakeIndex{}, fakeChallenges{token: "tok", keyAuth: "tok.thumb"}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, wellKnownACMEPrefix+"tok", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "tok.thumb" {
		t.Fatalf("code = %d, body = %q", rec.Code, rec.Body.String())
	}
}

func TestPipelineReturnsNotFoundWhenNoSiteMatches(t *testing.T) {
	p := New(Binding{ID: 1, IsTLS: true}, fakeIndex{sites: map[uint32]map[string]domain.Site{}}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "unknown.example"
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
}

func TestPipelineDispatchesToMatchingProcessor(t *testing.T) {
	dir := t.TempDir()

	site := domain.Site{
		Hostnames:  []string{"example.com"},
		Enabled:    true,
		WebRoot:    dir,
		IndexFiles: []string{"index.html"},
		HandlerIDs: []uint32{7},
	}
	idx := fakeIndex{sites: map[uint32]map[string]domain.Site{1: {"example.com": site}}}

	called := false
	procs := fakeProcessors{
		handlers: map[uint32]http.Handler{7: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusTeapot)
		})},
		cfgs: map[uint32]domain.RequestHandler{7: {ID: 7, Enabled: true, FileMatchPatterns: []string{"*.php"}}},
	}

	p := New(Binding{ID: 1, IsTLS: true}, idx, nil, procs, nil)

	req := httptest.NewRequest(http.MethodGet, "/app.php", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusTeapot {
		t.Fatalf("called = %v code = %d", called, rec.Code)
	}
}

func TestPipelineFallsBackToStaticServing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	site := domain.Site{
		Hostnames:  []string{"example.com"},
		Enabled:    true,
		WebRoot:    dir,
		IndexFiles: []string{"index.html"},
	}
	idx := fakeIndex{sites: map[uint32]map[string]domain.Site{1: {"example.com": site}}}

	p := New(Binding{ID: 1, IsTLS: true}, idx, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "hello" {
		t.Fatalf("code = %d body = %q", rec.Code, rec.Body.String())
	}
}

func TestPipelineRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	site := domain.Site{
		Hostnames:  []string{"example.com"},
		Enabled:    true,
		WebRoot:    dir,
		IndexFiles: []string{"index.html"},
	}
	idx := fakeIndex{sites: map[uint32]map[string]domain.Site{1: {"example.com": site}}}

	p := New(Binding{ID: 1, IsTLS: true}, idx, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/../../etc/passwd", nil)
	req.Host = "example.com"
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("code = %d", rec.Code)
	}
}
