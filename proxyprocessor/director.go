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

package proxyprocessor

import (
	"net/http"
	"net/url"

	liblog "github.com/nabbar/edged/logger"
)

// direct rewrites req in place before it reaches the upstream: target URL
// from the balancer pick plus the configured rewrite rules, Host header per
// should_rewrite_host_header/forced_host_header, and X-Forwarded-* request
// headers.
func (p *Processor) direct(req *http.Request) {
	upstream, _ := req.Context().Value(upstreamKey).(string)

	target, err := url.Parse(upstream)
	if err != nil {
		liblog.Logf(p.log, liblog.WarnLevel, nil, "proxy processor %d: invalid upstream url %q: %v", p.cfg.ID, upstream, err)
		return
	}

	originalHost := req.Host
	originalProto := "http"
	if req.TLS != nil {
		originalProto = "https"
	}

	originalURI := req.URL.Path
	if req.URL.RawQuery != "" {
		originalURI += "?" + req.URL.RawQuery
	}

	rewritten := applyURLRewrites(p.cfg.URLRewrites, target.Scheme+"://"+target.Host+originalURI)
	newURL, err := url.Parse(rewritten)
	if err != nil {
		newURL = target
	}

	req.URL.Scheme = newURL.Scheme
	req.URL.Host = newURL.Host
	req.URL.Path = newURL.Path
	req.URL.RawQuery = newURL.RawQuery

	req.Host = originalHost
	if p.cfg.ShouldRewriteHostHeader {
		switch {
		case p.cfg.ForcedHostHeader != "":
			req.Host = p.cfg.ForcedHostHeader
		case newURL.Port() != "":
			req.Host = newURL.Hostname() + ":" + newURL.Port()
		default:
			req.Host = newURL.Hostname() + ":80"
		}
	}

	// X-Forwarded-For is not set here: httputil.ReverseProxy appends the
	// client IP (port stripped) to any prior value after direct returns.
	if req.Header.Get("X-Forwarded-Host") == "" {
		req.Header.Set("X-Forwarded-Host", originalHost)
	}
	if req.Header.Get("X-Forwarded-Proto") == "" {
		req.Header.Set("X-Forwarded-Proto", originalProto)
	}
}

// cleanResponse strips hop-by-hop headers from the upstream response,
// leaving Connection/Upgrade intact for protocol-switching responses
//.
func (p *Processor) cleanResponse(resp *http.Response) error {
	isUpgrade := resp.StatusCode == http.StatusSwitchingProtocols

	if !isUpgrade {
		resp.Header.Del("Connection")
		resp.Header.Del("Upgrade")
	}

	for _, h := range hopByHopHeaders {
		resp.Header.Del(h)
	}

	return nil
}

func (p *Processor) handleError(w http.ResponseWriter, r *http.Request, err error) {
	liblog.Logf(p.log, liblog.WarnLevel, nil, "proxy processor %d: upstream request failed: %v", p.cfg.ID, err)
	http.Error(w, "bad gateway", http.StatusBadGateway)
}
