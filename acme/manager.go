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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"encoding/pem"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/crypto/acme"

	liblog "github.com/nabbar/edged/logger"
)

const (
	letsEncryptProductionURL = "https://acme-v02.api.letsencrypt.org/directory"
	letsEncryptStagingURL    = "https://acme-staging-v02.api.letsencrypt.org/directory"

	renewBefore  = 30 * 24 * time.Hour
	pollInterval = 24 * time.Hour
)

// Manager drives certificate acquisition for every eligible domain using a
// single ACME account. It owns the unified
// resolver's ACME-backed certificate cache.
type Manager interface {
	// Resolver returns the certificate getter this manager feeds.
	Resolver() *Resolver

	// Domains returns the ACME-managed domain set.
	Domains() []string

	// Run drives the polling task until ctx (or any of shutdown /
	// stop_services) is cancelled. Intended to be run in its own
	// goroutine.
	Run(ctx context.Context)
}

type manager struct {
	client  *acme.Client
	store   ChallengeStore
	cacheDir string
	domains []string
	log     liblog.FuncLog

	mu          sync.RWMutex
	certs       map[string]*tls.Certificate
	pendingALPN map[string]*tls.Certificate
}

// NewManager builds a Manager for domains, registering an account with
// email against the production (or staging) ACME directory. Returns
// (nil, nil) when email or domains is empty: if the account email is
// empty or the eligible set is empty, ACME is disabled and the manager
// is absent.
func NewManager(ctx context.Context, email, cacheDir string, useStaging bool, domains []string, store ChallengeStore, log liblog.FuncLog) (Manager, error) {
	if email == "" || len(domains) == 0 {
		return nil, nil
	}

	if cacheDir == "" {
		cacheDir = "certs/cache"
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, ErrorCacheDir.Error(err)
	}

	key, err := loadOrCreateAccountKey(cacheDir)
	if err != nil {
		return nil, ErrorAccountKey.Error(err)
	}

	dirURL := letsEncryptProductionURL
	if useStaging {
		dirURL = letsEncryptStagingURL
	}

	cl := &acme.Client{
		Key:          key,
		DirectoryURL: dirURL,
	}

	if _, err = cl.Register(ctx, &acme.Account{Contact: []string{"mailto:" + email}}, acme.AcceptTOS); err != nil {
		var ae *acme.Error
		if !stderrors.As(err, &ae) || ae.ProblemType != "urn:ietf:params:acme:error:accountAlreadyExists" {
			return nil, ErrorRegister.Error(err)
		}
	}

	m := &manager{
		client:      cl,
		store:       store,
		cacheDir:    cacheDir,
		domains:     domains,
		log:         log,
		certs:       make(map[string]*tls.Certificate),
		pendingALPN: make(map[string]*tls.Certificate),
	}

	return m, nil
}

func (m *manager) Domains() []string { return m.domains }

func (m *manager) Resolver() *Resolver {
	return &Resolver{
		isManagedDomain: m.isManaged,
		getManagedCert:  m.getCert,
		getALPNCert:     m.getPendingALPN,
		manual:          make(map[string]*tls.Certificate),
	}
}

func (m *manager) isManaged(domain string) bool {
	for _, d := range m.domains {
		if d == domain {
			return true
		}
	}
	return false
}

func (m *manager) getCert(domain string) (*tls.Certificate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.certs[domain]
	return c, ok
}

func (m *manager) getPendingALPN(domain string) (*tls.Certificate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.pendingALPN[domain]
	return c, ok
}

func (m *manager) setPendingALPN(domain string, cert *tls.Certificate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingALPN[domain] = cert
}

func (m *manager) clearPendingALPN(domain string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pendingALPN, domain)
}

func (m *manager) setCert(domain string, cert *tls.Certificate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certs[domain] = cert
}

// Run implements the polling task: order creation,
// challenge fulfilment, finalize, certificate fetch, renewal -- observing
// ctx (the manager-internal token composed with shutdown/stop_services by
// the caller) and exiting when it is cancelled.
func (m *manager) Run(ctx context.Context) {
	liblog.Logf(m.log, liblog.InfoLevel, nil, "acme manager: polling task started for %d domain(s)", len(m.domains))

	m.obtainAll(ctx)

	t := time.NewTicker(pollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			liblog.Logf(m.log, liblog.InfoLevel, nil, "acme manager: polling task stopped")
			return
		case <-t.C:
			m.obtainAll(ctx)
		}
	}
}

func (m *manager) obtainAll(ctx context.Context) {
	for _, d := range m.domains {
		if cur, ok := m.getCert(d); ok && !needsRenewal(cur) {
			continue
		}

		if err := m.obtain(ctx, d); err != nil {
			liblog.Logf(m.log, liblog.WarnLevel, nil, "acme manager: obtain certificate for %s failed: %v", d, err)
		}
	}
}

func needsRenewal(cert *tls.Certificate) bool {
	if cert == nil || cert.Leaf == nil {
		return true
	}
	return time.Until(cert.Leaf.NotAfter) < renewBefore
}

// obtain runs one full RFC 8555 order for domain: authorize, fulfil every
// pending challenge (HTTP-01 via the challenge store, TLS-ALPN-01 via the
// resolver's ephemeral challenge certificate), finalize and fetch.
func (m *manager) obtain(ctx context.Context, domain string) error {
	order, err := m.client.AuthorizeOrder(ctx, acme.DomainIDs(domain))
	if err != nil {
		return err
	}

	for _, zurl := range order.AuthzURLs {
		if err = m.fulfilAuthorization(ctx, domain, zurl); err != nil {
			return err
		}
	}

	order, err = m.client.WaitOrder(ctx, order.URI)
	if err != nil {
		return err
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	csr, err := buildCSR(domain, key)
	if err != nil {
		return err
	}

	der, _, err := m.client.CreateOrderCert(ctx, order.FinalizeURL, csr, true)
	if err != nil {
		return err
	}

	cert := &tls.Certificate{Certificate: der, PrivateKey: key}
	if leaf, err := x509.ParseCertificate(der[0]); err == nil {
		cert.Leaf = leaf
	}

	m.setCert(domain, cert)
	liblog.Logf(m.log, liblog.InfoLevel, nil, "acme manager: certificate issued for %s", domain)
	return nil
}

func (m *manager) fulfilAuthorization(ctx context.Context, domain, zurl string) error {
	authz, err := m.client.GetAuthorization(ctx, zurl)
	if err != nil {
		return err
	}
	if authz.Status == acme.StatusValid {
		return nil
	}

	if chal := findChallenge(authz, "http-01"); chal != nil {
		return m.fulfilHTTP01(ctx, zurl, chal)
	}
	if chal := findChallenge(authz, "tls-alpn-01"); chal != nil {
		return m.fulfilTLSALPN01(ctx, domain, zurl, chal)
	}

	return ErrorNoChallenge.Error(nil)
}

func (m *manager) fulfilHTTP01(ctx context.Context, zurl string, chal *acme.Challenge) error {
	keyAuth, err := m.client.HTTP01ChallengeResponse(chal.Token)
	if err != nil {
		return err
	}

	m.store.Add(chal.Token, keyAuth)
	defer m.store.Remove(chal.Token)

	if _, err = m.client.Accept(ctx, chal); err != nil {
		return err
	}

	_, err = m.client.WaitAuthorization(ctx, zurl)
	return err
}

func (m *manager) fulfilTLSALPN01(ctx context.Context, domain, zurl string, chal *acme.Challenge) error {
	cert, err := m.client.TLSALPN01ChallengeCert(chal.Token, domain)
	if err != nil {
		return err
	}

	m.setPendingALPN(domain, &cert)
	defer m.clearPendingALPN(domain)

	if _, err = m.client.Accept(ctx, chal); err != nil {
		return err
	}

	_, err = m.client.WaitAuthorization(ctx, zurl)
	return err
}

func findChallenge(authz *acme.Authorization, typ string) *acme.Challenge {
	for _, c := range authz.Challenges {
		if c.Type == typ {
			return c
		}
	}
	return nil
}

func loadOrCreateAccountKey(cacheDir string) (*ecdsa.PrivateKey, error) {
	path := filepath.Join(cacheDir, "account.key.pem")

	if data, err := os.ReadFile(path); err == nil {
		block, _ := pem.Decode(data)
		if block != nil {
			if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
				return key, nil
			}
		}
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}

	block := &pem.Block{Type: "EC PRIVATE KEY", Bytes: der}
	if err = writeFileAtomic(path, pem.EncodeToMemory(block)); err != nil {
		return nil, err
	}

	return key, nil
}
