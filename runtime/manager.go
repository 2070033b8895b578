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
	"fmt"
	"sync"
	"time"

	"github.com/nabbar/edged/acme"
	"github.com/nabbar/edged/cgi"
	"github.com/nabbar/edged/config/cache"
	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/config/store"
	errpool "github.com/nabbar/edged/errors/pool"
	"github.com/nabbar/edged/httpserver"
	"github.com/nabbar/edged/lbregistry"
	liblog "github.com/nabbar/edged/logger"
	"github.com/nabbar/edged/pipeline"
	"github.com/nabbar/edged/portmanager"
	"github.com/nabbar/edged/proxyprocessor"
	"github.com/nabbar/edged/siteindex"
	"github.com/nabbar/edged/trigger"
)

// drainDelay is the short pause set_new_running_state sleeps after firing
// stop_services, giving cancellation a chance to propagate before the new
// state is constructed.
const drainDelay = 100 * time.Millisecond

const defaultCertsDir = "certs"

// Manager is the top-level running-state manager (spec section 4.14): it
// holds the current RunningState behind a sync.RWMutex (readers share the
// lock; a waiting writer blocks new readers until it has swapped) and
// rebuilds it in full on every configuration reload.
type Manager interface {
	// Start performs the initial build from the store and begins serving.
	// A configuration load or build failure here is fatal, matching spec
	// section 7's "Configuration load errors at startup are fatal."
	Start(ctx context.Context) error

	// Reload implements set_new_running_state: fire stop_services, sleep
	// drainDelay, build a fresh state, swap it in. A build failure here is
	// non-fatal: the previous state keeps serving.
	Reload(ctx context.Context) error

	// Shutdown fires the shutdown trigger and tears down the current
	// state.
	Shutdown()

	// Current returns the live RunningState. Callers hold it only for the
	// duration of a single request; the reference itself never mutates.
	Current() *RunningState
}

type manager struct {
	mu        sync.RWMutex
	state     *RunningState
	st        store.Store
	triggers  trigger.Registry
	certsDir  string
	log       liblog.FuncLog
	watchOnce sync.Once
}

// NewManager builds a Manager reading its configuration from st and
// coordinating shutdown through triggers. certsDir is the directory
// generated self-signed certificates are written to ("" defaults to
// "certs"); manually configured certificate paths are used as configured.
func NewManager(st store.Store, triggers trigger.Registry, certsDir string, log liblog.FuncLog) Manager {
	if certsDir == "" {
		certsDir = defaultCertsDir
	}

	return &manager{
		st:       st,
		triggers: triggers,
		certsDir: certsDir,
		log:      log,
	}
}

func (m *manager) Current() *RunningState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *manager) Start(ctx context.Context) error {
	state, err := buildRunningState(ctx, m.st, m.triggers, m.certsDir, m.log)
	if err != nil {
		return ErrorLoadConfig.Error(err)
	}

	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	m.watchOnce.Do(func() { go m.watchReload() })

	return nil
}

// watchReload observes the reload_configuration trigger for the lifetime
// of the process, invoking Reload each time it fires. This is the only
// path through which the admin portal (out of scope) drives a reload: it
// writes the store, then calls triggers.Fire(trigger.ReloadConfiguration)
// on the same registry instance -- the manager holds no other reference
// back to it.
func (m *manager) watchReload() {
	shutdownCtx := m.triggers.Subscribe(trigger.Shutdown)

	for {
		reloadCtx := m.triggers.Subscribe(trigger.ReloadConfiguration)

		select {
		case <-shutdownCtx.Done():
			return
		case <-reloadCtx.Done():
			if err := m.Reload(context.Background()); err != nil {
				liblog.Logf(m.log, liblog.ErrorLevel, nil, "runtime: reload failed, keeping previous state: %v", err)
			}
		}
	}
}

func (m *manager) Reload(ctx context.Context) error {
	m.triggers.Fire(trigger.StopServices)
	time.Sleep(drainDelay)

	next, err := buildRunningState(ctx, m.st, m.triggers, m.certsDir, m.log)
	if err != nil {
		return ErrorBuildState.Error(err)
	}

	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()

	prev.shutdown()

	return nil
}

func (m *manager) Shutdown() {
	m.triggers.Fire(trigger.Shutdown)
	m.triggers.Fire(trigger.StopServices)

	m.mu.Lock()
	prev := m.state
	m.state = nil
	m.mu.Unlock()

	prev.shutdown()
}

// buildRunningState re-reads configuration from st and constructs a fresh
// RunningState: config cache, binding-site index, ACME challenge store and
// (if eligible) shared manager, port manager, load-balancer registry,
// request-handler dispatch registry, CGI supervisors and the per-binding
// accept loops.
func buildRunningState(ctx context.Context, st store.Store, triggers trigger.Registry, certsDir string, log liblog.FuncLog) (*RunningState, error) {
	cfg, err := st.Load(ctx)
	if err != nil {
		return nil, err
	}

	s := &RunningState{
		cfgCache:   cache.New(cfg),
		index:      siteindex.Build(cfg),
		challenges: acme.NewChallengeStore(),
		ports:      portmanager.New(cfg.Settings.PortRangeLow, cfg.Settings.PortRangeHigh),
		lb:         lbregistry.New(),
		processors: newProcessorRegistry(),
	}

	s.acmeManager = buildACMEManager(ctx, cfg, s.challenges, triggers, log)

	buildProcessors(cfg, s, log)
	buildAcceptLoops(ctx, st, cfg, s, certsDir, log)

	// The accept loops exit when stop_services fires: the pool is shut
	// down, releasing its listeners before a replacement state binds.
	stopCtx := triggers.Subscribe(trigger.StopServices)
	go func(p httpserver.PoolServer) {
		<-stopCtx.Done()
		p.Shutdown()
	}(s.pool)

	return s, nil
}

// buildACMEManager scans the configuration for TLS-bound sites with
// tls_automatic_enabled per spec section 4.5's exact eligibility
// predicate, and -- if an account email and at least one eligible domain
// exist -- builds the shared Manager and launches its polling task,
// observing shutdown and stop_services alongside its own internal token.
func buildACMEManager(ctx context.Context, cfg domain.Configuration, challenges acme.ChallengeStore, triggers trigger.Registry, log liblog.FuncLog) acme.Manager {
	tlsBindings := make(map[uint32]bool)
	for _, b := range cfg.Bindings {
		if b.IsTLS {
			tlsBindings[b.ID] = true
		}
	}

	var domains []string
	for _, s := range cfg.Sites {
		if !s.Enabled || !s.TLSAutomaticEnabled {
			continue
		}
		if !siteHasTLSBinding(s, tlsBindings) {
			continue
		}
		for _, h := range s.Hostnames {
			if domain.IsACMEEligibleHostname(h) {
				domains = append(domains, h)
			}
		}
	}

	email := cfg.Settings.ACMEAccountEmail
	if email == "" || len(domains) == 0 {
		return nil
	}

	mgr, err := acme.NewManager(ctx, email, cfg.Settings.ACMECertificateCachePath, cfg.Settings.ACMEUseStagingServer, domains, challenges, log)
	if err != nil || mgr == nil {
		if err != nil {
			liblog.Logf(log, liblog.WarnLevel, nil, "acme: manager initialization failed, falling back to manual/self-signed certificates: %v", err)
		}
		return nil
	}

	go runACMEPollingTask(mgr, triggers)

	return mgr
}

func siteHasTLSBinding(s domain.Site, tlsBindings map[uint32]bool) bool {
	for _, bid := range s.BindingIDs {
		if tlsBindings[bid] {
			return true
		}
	}
	return false
}

// runACMEPollingTask drives mgr.Run against a context composed of the
// manager's own lifetime and the shutdown/stop_services triggers, per
// spec section 4.5: "The task observes three cancellation tokens
// (manager-internal, shutdown, stop_services) and exits on any of them."
func runACMEPollingTask(mgr acme.Manager, triggers trigger.Registry) {
	shutdownCtx := triggers.Subscribe(trigger.Shutdown)
	stopCtx := triggers.Subscribe(trigger.StopServices)

	pctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-shutdownCtx.Done():
		case <-stopCtx.Done():
		case <-pctx.Done():
		}
		cancel()
	}()

	mgr.Run(pctx)
}

// buildProcessors starts one CGI supervisor per php-type request handler
// referenced by an enabled site, and one proxy Processor per proxy-type
// handler, registering each under its handler id so the pipeline's
// Processors lookup can dispatch to it. Unreferenced enabled handlers are
// never started (spec section 3). Handlers of type "static" need no
// separate registration: the pipeline's own fallthrough already serves
// static files identically. "python"/"node" are accepted configuration
// values with no dispatching implementation (spec section 9).
func buildProcessors(cfg domain.Configuration, s *RunningState, log liblog.FuncLog) {
	referenced := make(map[uint32]bool)
	for _, site := range cfg.Sites {
		if !site.Enabled {
			continue
		}
		for _, id := range site.HandlerIDs {
			referenced[id] = true
		}
	}

	proxiesByID := make(map[uint32]domain.ProxyProcessor, len(cfg.Proxies))
	for _, p := range cfg.Proxies {
		proxiesByID[p.ID] = p
	}

	for _, h := range cfg.Handlers {
		if !h.Enabled || !referenced[h.ID] {
			continue
		}

		switch h.Type {
		case domain.HandlerPHP:
			sup := cgi.New(h, s.ports, log)
			sup.Start()
			s.supervisors = append(s.supervisors, sup)
			s.processors.register(h, sup)

		case domain.HandlerProxy:
			proxyCfg, ok := proxiesByID[h.ID]
			if !ok {
				continue
			}
			balancer := s.lb.Ensure(proxyCfg.ID, func() lbregistry.Balancer {
				return lbregistry.NewRoundRobin(proxyCfg.UpstreamURLs)
			})
			proc := proxyprocessor.New(proxyCfg, balancer, log)
			s.processors.register(h, proc)
		}
	}
}

// buildAcceptLoops builds one httpserver.ServerConfig/Server per binding,
// wiring its TLS bindings to a unified acme.Resolver (ACME sources shared
// across bindings via mgr.Resolver(), manual SNI and self-signed fallback
// built per-binding) and every binding to the site-resolving Pipeline.
// A single binding's Listen failure only refuses that binding (spec
// section 7); the rest continue.
func buildAcceptLoops(ctx context.Context, st store.Store, cfg domain.Configuration, s *RunningState, certsDir string, log liblog.FuncLog) {
	var servers []httpserver.Server

	// failures collects every binding's startup error; the joined result is
	// logged once after the loop, alongside the per-binding log lines, and
	// is not returned to Start/Reload. A single binding's failure never
	// aborts the others (spec section 7).
	failures := errpool.New()

	for _, b := range cfg.Bindings {
		sites := s.index.SitesForBinding(b.ID)

		var resolver *acme.Resolver
		if b.IsTLS {
			if s.acmeManager != nil {
				resolver = s.acmeManager.Resolver()
			}

			var err error
			resolver, err = acme.BuildManualSNI(ctx, st, certsDir, sites, b.IsAdmin, log, resolver)
			if err != nil {
				liblog.LogErrorCtxf(ctx, log, fmt.Sprintf("binding %d (%s) failed to start, other bindings continue", b.ID, b.ListenAddress()), err)
				failures.Add(fmt.Errorf("binding %d (%s): %w", b.ID, b.ListenAddress(), err))
				continue
			}
		}

		scheme := "http"
		if b.IsTLS {
			scheme = "https"
		}

		sc := httpserver.ServerConfig{
			BindingID: b.ID,
			Name:      fmt.Sprintf("binding-%d", b.ID),
			Listen:    b.ListenAddress(),
			Expose:    fmt.Sprintf("%s://%s", scheme, b.ListenAddress()),
			Resolver:  resolverOrNil(resolver),
		}
		sc.SetDefaultLog(func() liblog.FuncLog { return log })

		srv := sc.Server()

		pl := pipeline.New(
			pipeline.Binding{ID: b.ID, IsTLS: b.IsTLS},
			s.index,
			s.challenges,
			s.processors,
			log,
		)

		if e := srv.Listen(pl); e != nil {
			liblog.LogErrorCtxf(ctx, log, fmt.Sprintf("binding %d (%s) failed to start, other bindings continue", b.ID, b.ListenAddress()), e)
			failures.Add(fmt.Errorf("binding %d (%s): %w", b.ID, b.ListenAddress(), e))
			continue
		}

		servers = append(servers, srv)
	}

	s.pool = httpserver.NewPool(servers...)

	if err := failures.Error(); err != nil {
		liblog.Logf(log, liblog.WarnLevel, nil, "one or more bindings failed to start: %v", err)
	}
}

// resolverOrNil converts a possibly-nil *acme.Resolver into the
// httpserver.CertResolver interface value, preserving a true nil interface
// for non-TLS bindings (ServerConfig.IsTLS checks c.Resolver != nil).
func resolverOrNil(r *acme.Resolver) httpserver.CertResolver {
	if r == nil {
		return nil
	}
	return r
}
