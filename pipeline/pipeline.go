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

// Package pipeline implements the per-request processor chain: path
// security gate, ACME HTTP-01 interception, processor
// selection by file-match pattern, and dispatch, falling back to serving
// static files from the site's web root.
package pipeline

import (
	"net/http"
	"strings"

	"github.com/nabbar/edged/config/domain"
	liblog "github.com/nabbar/edged/logger"
	"github.com/nabbar/edged/siteindex"
)

const wellKnownACMEPrefix = "/.well-known/acme-challenge/"

// ChallengeStore is the narrow slice of acme.ChallengeStore the pipeline
// needs for HTTP-01 interception.
type ChallengeStore interface {
	TryHandle(path string) (keyAuth string, ok bool)
}

// Processors resolves a configured request handler id to the http.Handler
// serving it (a proxyprocessor.Processor or cgi.Supervisor, built and
// owned by the running-state manager).
type Processors interface {
	Handler(handlerID uint32) (http.Handler, domain.RequestHandler, bool)
}

// Binding carries just the fields the pipeline needs to know about the
// binding a request arrived on.
type Binding struct {
	ID    uint32
	IsTLS bool
}

// Pipeline dispatches one binding's requests through the full processor
// chain.
type Pipeline struct {
	binding    Binding
	index      siteindex.Index
	challenges ChallengeStore
	processors Processors
	static     staticProcessor
	log        liblog.FuncLog
}

// New builds a Pipeline for one binding.
func New(binding Binding, index siteindex.Index, challenges ChallengeStore, processors Processors, log liblog.FuncLog) *Pipeline {
	return &Pipeline{
		binding:    binding,
		index:      index,
		challenges: challenges,
		processors: processors,
		log:        log,
	}
}

// ServeHTTP implements the full request flow.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.binding.IsTLS && strings.HasPrefix(r.URL.Path, wellKnownACMEPrefix) && p.challenges != nil {
		if keyAuth, ok := p.challenges.TryHandle(r.URL.Path); ok {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(keyAuth))
			return
		}
		http.NotFound(w, r)
		return
	}

	site, ok := p.index.ResolveSite(p.binding.ID, r.Host)
	if !ok {
		http.NotFound(w, r)
		return
	}

	fullPath, ok := normalizePath(site.WebRoot, r.URL.Path)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if !allowedByLists(site.WhitelistPatterns, site.BlocklistPatterns, fullPath) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	if handler := p.selectProcessor(site, r.URL.Path); handler != nil {
		handler.ServeHTTP(w, r)
		return
	}

	p.static.serve(w, r, site, fullPath)
}

// selectProcessor walks the site's enabled handler ids in order, returning
// the first whose file-match patterns match the request path.
func (p *Pipeline) selectProcessor(site domain.Site, requestPath string) http.Handler {
	if p.processors == nil {
		return nil
	}

	for _, id := range site.HandlerIDs {
		handler, cfg, ok := p.processors.Handler(id)
		if !ok || !cfg.Enabled {
			continue
		}
		if matchesAny(cfg.FileMatchPatterns, requestPath) {
			return handler
		}
	}

	return nil
}
