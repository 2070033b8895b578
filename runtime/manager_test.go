/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/trigger"
)

// fakeStore is an in-memory config/store.Store for tests, avoiding a
// sqlite round-trip.
type fakeStore struct {
	cfg domain.Configuration
}

func (f *fakeStore) Load(_ context.Context) (domain.Configuration, error) { return f.cfg, nil }
func (f *fakeStore) SchemaVersion(_ context.Context) (int, error)        { return 4, nil }
func (f *fakeStore) UpdateAdminPortalTLS(_ context.Context, _, _ string) error {
	return nil
}
func (f *fakeStore) UpdateSiteTLS(_ context.Context, _ uint32, _, _ string) error {
	return nil
}
func (f *fakeStore) UpdateAdminPasswordHash(_ context.Context, _ string) error {
	return nil
}

func newTestConfig(t *testing.T) domain.Configuration {
	t.Helper()

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("seed web root: %v", err)
	}

	return domain.Configuration{
		Settings: domain.ServerSettings{
			PortRangeLow:  19500,
			PortRangeHigh: 19600,
		},
		Bindings: []domain.Binding{
			{ID: 1, Address: "127.0.0.1", Port: 0, IsAdmin: false, IsTLS: false},
		},
		Sites: []domain.Site{
			{
				ID:         1,
				BindingIDs: []uint32{1},
				Hostnames:  []string{"*"},
				Enabled:    true,
				WebRoot:    root,
				IndexFiles: []string{"index.html"},
			},
		},
	}
}

func TestManagerStartBuildsRunningState(t *testing.T) {
	st := &fakeStore{cfg: newTestConfig(t)}
	m := NewManager(st, trigger.New(), t.TempDir(), nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Shutdown()

	state := m.Current()
	if state == nil {
		t.Fatal("expected a running state after Start")
	}
	if got := state.GetConfiguration().Bindings[0].ID; got != 1 {
		t.Fatalf("expected binding 1 in snapshot, got %d", got)
	}
	if state.Pool().Len() != 1 {
		t.Fatalf("expected one accept loop, got %d", state.Pool().Len())
	}
}

func TestManagerReloadSwapsState(t *testing.T) {
	st := &fakeStore{cfg: newTestConfig(t)}
	trg := trigger.New()
	m := NewManager(st, trg, t.TempDir(), nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Shutdown()

	first := m.Current()

	if err := m.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}

	second := m.Current()
	if second == first {
		t.Fatal("expected reload to swap in a new running state")
	}
}

func TestManagerReloadFiresStopServices(t *testing.T) {
	st := &fakeStore{cfg: newTestConfig(t)}
	trg := trigger.New()
	m := NewManager(st, trg, t.TempDir(), nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Shutdown()

	stopCtx := trg.Subscribe(trigger.StopServices)

	done := make(chan struct{})
	go func() {
		_ = m.Reload(context.Background())
		close(done)
	}()

	select {
	case <-stopCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("expected stop_services to fire during reload")
	}

	<-done
}
