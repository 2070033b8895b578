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

// Package runtime implements the top-level running-state manager (spec
// section 4.14): the tuple of caches, supervisors and accept loops that is
// rebuilt in full and atomically swapped in on every configuration reload.
// Grounded on nabbar-golib/config/manage.go's before/after hook sequencing
// idiom, generalized from "one config component" to "the entire server
// state".
package runtime

import (
	"net/http"

	"github.com/nabbar/edged/acme"
	"github.com/nabbar/edged/cgi"
	"github.com/nabbar/edged/config/cache"
	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/httpserver"
	"github.com/nabbar/edged/lbregistry"
	"github.com/nabbar/edged/portmanager"
	"github.com/nabbar/edged/siteindex"
)

// processorRegistry implements pipeline.Processors: it maps a configured
// request-handler id to the concrete http.Handler dispatching it (a CGI
// supervisor or a proxy processor; static has no handler id and is the
// pipeline's own fallback).
type processorRegistry struct {
	handlers map[uint32]registeredHandler
}

type registeredHandler struct {
	handler http.Handler
	cfg     domain.RequestHandler
}

func newProcessorRegistry() *processorRegistry {
	return &processorRegistry{handlers: make(map[uint32]registeredHandler)}
}

func (p *processorRegistry) register(cfg domain.RequestHandler, handler http.Handler) {
	p.handlers[cfg.ID] = registeredHandler{handler: handler, cfg: cfg}
}

func (p *processorRegistry) Handler(handlerID uint32) (http.Handler, domain.RequestHandler, bool) {
	rh, ok := p.handlers[handlerID]
	if !ok {
		return nil, domain.RequestHandler{}, false
	}
	return rh.handler, rh.cfg, true
}

// RunningState is the process's current live set of caches, supervisors
// and accept loops (spec section 3's "Running state"). It is owned
// exclusively by Manager: built once per reload and never mutated in
// place afterward.
type RunningState struct {
	cfgCache    cache.Cache
	index       siteindex.Index
	challenges  acme.ChallengeStore
	acmeManager acme.Manager
	ports       portmanager.Manager
	lb          lbregistry.Registry
	processors  *processorRegistry
	supervisors []*cgi.Supervisor
	pool        httpserver.PoolServer
}

// GetConfiguration exposes the live configuration snapshot to readers
// (e.g. the admin portal, out of scope here, or diagnostics).
func (s *RunningState) GetConfiguration() domain.Configuration {
	return s.cfgCache.GetConfiguration()
}

// Index exposes the binding-site index built for this state.
func (s *RunningState) Index() siteindex.Index {
	return s.index
}

// Pool exposes the set of binding servers owned by this state.
func (s *RunningState) Pool() httpserver.PoolServer {
	return s.pool
}

// shutdown tears down every long-lived resource owned by this state: CGI
// supervisors (kills children, releases ports), the binding server pool
// (graceful HTTP shutdown). The ACME polling task and the accept loops
// (through the stop_services watcher started in buildRunningState) exit
// on their own when stop_services fires; CGI supervisors subscribe to no
// trigger and are stopped only here.
func (s *RunningState) shutdown() {
	if s == nil {
		return
	}

	for _, sup := range s.supervisors {
		sup.Stop()
	}

	if s.pool != nil {
		s.pool.Shutdown()
	}
}
