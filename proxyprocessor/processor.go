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

// Package proxyprocessor implements the reverse-proxy request processor:
// upstream selection via a per-processor load
// balancer, URL rewriting, Host-header handling, hop-by-hop header
// stripping and X-Forwarded-* population. WebSocket bridging rides on
// net/http/httputil.ReverseProxy's native 101-upgrade support. Grounded on
// cuemby-warren/pkg/ingress/proxy.go's Director/ErrorHandler shape and
// original_source/src/http/request_handlers/processors/proxy_processor.rs's
// exact header and rewrite semantics.
package proxyprocessor

import (
	"context"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/lbregistry"
	liblog "github.com/nabbar/edged/logger"
)

var hopByHopHeaders = []string{
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailers",
	"Transfer-Encoding",
}

// Processor proxies requests for one configured ProxyProcessor.
type Processor struct {
	cfg domain.ProxyProcessor
	lb  lbregistry.Balancer
	log liblog.FuncLog
	rp  *httputil.ReverseProxy
}

// New builds a Processor backed by balancer, which must already be
// configured with cfg's upstream list.
func New(cfg domain.ProxyProcessor, balancer lbregistry.Balancer, log liblog.FuncLog) *Processor {
	p := &Processor{cfg: cfg, lb: balancer, log: log}

	p.rp = &httputil.ReverseProxy{
		Director:      p.direct,
		ModifyResponse: p.cleanResponse,
		ErrorHandler:  p.handleError,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: timeoutOr(cfg.TimeoutSeconds, 30*time.Second),
			}).DialContext,
			IdleConnTimeout: 15 * time.Second,
		},
	}

	return p
}

func timeoutOr(seconds uint64, fallback time.Duration) time.Duration {
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// ServeHTTP implements http.Handler, selecting the next upstream via the
// load balancer and delegating to the underlying reverse proxy. Returns a
// 502 with no upstream contacted when the balancer has nothing to offer,
// and a 500 when the configured strategy is set to anything other than
// round_robin.
func (p *Processor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s := p.cfg.LoadBalancingStrategy; s != "" && s != domain.RoundRobin {
		http.Error(w, "unsupported load balancing strategy", http.StatusInternalServerError)
		return
	}

	upstream, ok := p.lb.Next()
	if !ok {
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	ctx := context.WithValue(r.Context(), upstreamKey, upstream)
	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

type ctxKey int

const upstreamKey ctxKey = 0
