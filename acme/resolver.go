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

package acme

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"sync"

	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/config/store"
	liblog "github.com/nabbar/edged/logger"
)

// Resolver is the per-binding unified certificate resolver: ACME
// TLS-ALPN-01, ACME-managed SNI, manual SNI, then a
// self-signed fallback, queried in that order on every ClientHello.
type Resolver struct {
	isManagedDomain func(string) bool
	getManagedCert  func(string) (*tls.Certificate, bool)
	getALPNCert     func(string) (*tls.Certificate, bool)

	mu       sync.RWMutex
	manual   map[string]*tls.Certificate
	fallback *tls.Certificate
}

// NewManualResolver builds a Resolver with no ACME sources, for bindings
// with no active ACME manager.
func NewManualResolver() *Resolver {
	return &Resolver{manual: make(map[string]*tls.Certificate)}
}

// GetCertificate implements the tls.Config.GetCertificate hook, dispatching
// in a strict, fixed priority order.
func (r *Resolver) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	for _, proto := range hello.SupportedProtos {
		if proto == "acme-tls/1" {
			if r.getALPNCert == nil {
				return nil, ErrorNoCert.Error(nil)
			}
			if cert, ok := r.getALPNCert(hello.ServerName); ok {
				return cert, nil
			}
			return nil, ErrorNoCert.Error(nil)
		}
	}

	name := strings.ToLower(hello.ServerName)

	if r.isManagedDomain != nil && r.isManagedDomain(name) {
		if cert, ok := r.getManagedCert(name); ok {
			return cert, nil
		}
	}

	r.mu.RLock()
	cert, ok := r.manual[name]
	fallback := r.fallback
	r.mu.RUnlock()

	if ok {
		return cert, nil
	}
	if fallback != nil {
		return fallback, nil
	}

	return nil, ErrorNoCert.Error(nil)
}

// ACMEActive reports whether this resolver has an ACME source configured
// (TLS-ALPN-01 challenge certificates), per spec section 4.6: ALPN should
// advertise "acme-tls/1" only for bindings where ACME is actually active.
func (r *Resolver) ACMEActive() bool {
	return r.getALPNCert != nil
}

// register stores cert under hostname, and makes it the fallback if none is
// set yet: the first certified key built becomes the fallback.
func (r *Resolver) register(hostname string, cert *tls.Certificate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.manual[strings.ToLower(hostname)] = cert
	if r.fallback == nil {
		r.fallback = cert
	}
}

// BuildManualSNI implements the builder contract for one binding: for
// every enabled site on the binding, expand hostnames,
// load or generate material, and register a certified key under each
// hostname. isAdmin selects which store-update method persists freshly
// generated self-signed material. r is the binding's resolver -- already
// carrying the ACME sources when an ACME manager is active, or nil to build
// a fresh manual-only Resolver.
func BuildManualSNI(ctx context.Context, st store.Store, certsDir string, sites []domain.Site, isAdmin bool, log liblog.FuncLog, r *Resolver) (*Resolver, error) {
	if r == nil {
		r = NewManualResolver()
	}

	for _, s := range sites {
		if !s.Enabled {
			continue
		}

		hostnames := expandHostnames(s)
		if len(hostnames) == 0 {
			continue
		}

		cert, persistPaths, err := materializeSite(s, hostnames, certsDir)
		if err != nil {
			liblog.Logf(log, liblog.WarnLevel, nil, "acme: site %d certificate build failed: %v", s.ID, err)
			continue
		}

		if persistPaths {
			persistSiteTLS(ctx, st, s, cert, certsDir, isAdmin, log)
		}

		for _, h := range hostnames {
			r.register(h, cert)
		}
	}

	if r.fallback == nil {
		cert, err := generateSelfSigned([]string{"localhost"})
		if err != nil {
			return nil, err
		}
		r.register("localhost", cert)
	}

	return r, nil
}

// expandHostnames expands a site's hostname list, turning the wildcard
// default marker into localhost plus the machine hostname.
func expandHostnames(s domain.Site) []string {
	if !s.IsWildcardDefault() {
		return s.LowercasedHostnames()
	}

	out := []string{"localhost"}
	if h, err := os.Hostname(); err == nil && h != "" {
		out = append(out, strings.ToLower(h))
	}
	return out
}

// materializeSite loads a site's configured TLS material, or generates a
// self-signed certificate when none was configured. The second return value
// reports whether the result needs persisting back to the store.
func materializeSite(s domain.Site, hostnames []string, certsDir string) (*tls.Certificate, bool, error) {
	switch {
	case s.TLS.CertPath != "" && s.TLS.KeyPath != "":
		cert, err := loadKeyPair(s.TLS.CertPath, s.TLS.KeyPath)
		return cert, false, err

	case s.TLS.CertInline != "" && s.TLS.KeyInline != "":
		cert, err := parseInlinePEM([]byte(s.TLS.CertInline), []byte(s.TLS.KeyInline))
		return cert, false, err

	default:
		cert, err := generateSelfSigned(hostnames)
		return cert, err == nil, err
	}
}

// persistSiteTLS writes the generated certificate under certsDir and
// records the resulting paths in the store.
// Persistence failure is logged and otherwise ignored -- the in-memory
// certificate remains usable.
func persistSiteTLS(ctx context.Context, st store.Store, s domain.Site, cert *tls.Certificate, certsDir string, isAdmin bool, log liblog.FuncLog) {
	if st == nil {
		return
	}

	certPath, keyPath, err := persistSelfSigned(certsDir, cert)
	if err != nil {
		liblog.Logf(log, liblog.WarnLevel, nil, "acme: persisting self-signed certificate for site %d failed: %v", s.ID, err)
		return
	}

	if isAdmin {
		err = st.UpdateAdminPortalTLS(ctx, certPath, keyPath)
	} else {
		err = st.UpdateSiteTLS(ctx, s.ID, certPath, keyPath)
	}
	if err != nil {
		liblog.Logf(log, liblog.WarnLevel, nil, "acme: recording self-signed certificate paths for site %d failed: %v", s.ID, err)
	}
}
