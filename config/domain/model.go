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

// Package domain carries the edged configuration data model: bindings,
// sites, request handlers, proxy processors and
// server-wide settings. Some fields carry validator tags; nothing in this
// package runs the validator over them.
package domain

import "strings"

// HandlerType is the type tag of an external request handler. It is an
// open string type: only php, static and proxy have a dispatching
// processor implementation, but python
// and node remain valid configuration values.
type HandlerType string

const (
	HandlerPHP    HandlerType = "php"
	HandlerPython HandlerType = "python"
	HandlerNode   HandlerType = "node"
	HandlerStatic HandlerType = "static"
	HandlerProxy  HandlerType = "proxy"
)

// LoadBalanceStrategy is the upstream-selection strategy of a proxy
// processor. Only RoundRobin is implemented; any other value is rejected
// at dispatch time with a 500.
type LoadBalanceStrategy string

const (
	RoundRobin LoadBalanceStrategy = "round_robin"
)

// OpMode is the CLI-selected operating mode.
type OpMode string

const (
	OpModeDev        OpMode = "DEV"
	OpModeDebug      OpMode = "DEBUG"
	OpModeProduction OpMode = "PRODUCTION"
	OpModeSpeedTest  OpMode = "SPEEDTEST"
)

// Binding is a (IP, port) the server listens on.
type Binding struct {
	ID      uint32 `validate:"required" json:"id" yaml:"id"`
	Address string `validate:"required,ip" json:"address" yaml:"address"`
	Port    uint16 `validate:"required" json:"port" yaml:"port"`
	IsAdmin bool   `json:"is_admin" yaml:"is_admin"`
	IsTLS   bool   `json:"is_tls" yaml:"is_tls"`
}

// ListenAddress renders the binding's dial/listen address as "host:port".
func (b Binding) ListenAddress() string {
	return strings.TrimSpace(b.Address) + ":" + portString(b.Port)
}

func portString(p uint16) string {
	const digits = "0123456789"
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = digits[p%10]
		p /= 10
	}
	return string(buf[i:])
}

// TLSMaterial is either a pair of PEM file paths, or inline PEM content.
// Both empty means "generate a self-signed certificate".
type TLSMaterial struct {
	CertPath    string `json:"tls_cert_path,omitempty" yaml:"tls_cert_path,omitempty"`
	KeyPath     string `json:"tls_key_path,omitempty" yaml:"tls_key_path,omitempty"`
	CertInline  string `json:"tls_cert_inline,omitempty" yaml:"tls_cert_inline,omitempty"`
	KeyInline   string `json:"tls_key_inline,omitempty" yaml:"tls_key_inline,omitempty"`
}

// IsEmpty reports whether no material at all was provided, triggering
// self-signed generation.
func (t TLSMaterial) IsEmpty() bool {
	return t.CertPath == "" && t.KeyPath == "" && t.CertInline == "" && t.KeyInline == ""
}

// Site is a virtual host bound to one or more hostnames within a binding
//.
type Site struct {
	ID                  uint32      `validate:"required" json:"id" yaml:"id"`
	BindingIDs          []uint32    `json:"binding_ids" yaml:"binding_ids"`
	Hostnames           []string    `validate:"required,min=1" json:"hostnames" yaml:"hostnames"`
	Enabled             bool        `json:"enabled" yaml:"enabled"`
	WebRoot             string      `validate:"required" json:"web_root" yaml:"web_root"`
	IndexFiles          []string    `validate:"required,min=1" json:"index_files" yaml:"index_files"`
	HandlerIDs          []uint32    `json:"handler_ids" yaml:"handler_ids"`
	TLS                 TLSMaterial `json:"tls" yaml:"tls"`
	TLSAutomaticEnabled bool        `json:"tls_automatic_enabled" yaml:"tls_automatic_enabled"`
	AccessLogEnabled    bool        `json:"access_log_enabled" yaml:"access_log_enabled"`
	AccessLogPath       string      `json:"access_log_path,omitempty" yaml:"access_log_path,omitempty"`
	WhitelistPatterns   []string    `json:"whitelist_patterns,omitempty" yaml:"whitelist_patterns,omitempty"`
	BlocklistPatterns   []string    `json:"blocklist_patterns,omitempty" yaml:"blocklist_patterns,omitempty"`
}

// LowercasedHostnames returns Hostnames normalized to lower case, matching
// the case-insensitive hostname matching required of the binding-site
// index.
func (s Site) LowercasedHostnames() []string {
	out := make([]string, len(s.Hostnames))
	for i, h := range s.Hostnames {
		out[i] = strings.ToLower(h)
	}
	return out
}

// IsWildcardDefault reports whether this site's hostname list contains the
// default/wildcard marker "*".
func (s Site) IsWildcardDefault() bool {
	for _, h := range s.Hostnames {
		if h == "*" {
			return true
		}
	}
	return false
}

// RequestHandler is an external request-handler configuration.
type RequestHandler struct {
	ID                 uint32            `validate:"required" json:"id" yaml:"id"`
	Type               HandlerType       `validate:"required" json:"type" yaml:"type"`
	Enabled            bool              `json:"enabled" yaml:"enabled"`
	ExecutablePath     string            `json:"executable_path,omitempty" yaml:"executable_path,omitempty"`
	UpstreamAddress    string            `json:"upstream_address,omitempty" yaml:"upstream_address,omitempty"`
	FileMatchPatterns  []string          `json:"file_match_patterns" yaml:"file_match_patterns"`
	RequestTimeout     uint64            `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	ConcurrentThreads  uint32            `json:"concurrent_threads" yaml:"concurrent_threads"`
	ExtraConfig        map[string]string `json:"extra_config,omitempty" yaml:"extra_config,omitempty"`
	Environment        map[string]string `json:"environment,omitempty" yaml:"environment,omitempty"`
	// ServerSoftwareSpoof feeds the CGI SERVER_SOFTWARE environment
	// variable (schema migration v3).
	ServerSoftwareSpoof string `json:"server_software_spoof,omitempty" yaml:"server_software_spoof,omitempty"`
}

// WorkerCount resolves ConcurrentThreads, deriving it from cpus when zero.
func (h RequestHandler) WorkerCount(cpus int) int {
	if h.ConcurrentThreads > 0 {
		return int(h.ConcurrentThreads)
	}
	if cpus <= 0 {
		return 1
	}
	return cpus
}

// URLRewrite is a single ordered URL rewrite rule applied by the proxy
// processor.
type URLRewrite struct {
	From            string `json:"from" yaml:"from"`
	To              string `json:"to" yaml:"to"`
	CaseInsensitive bool   `json:"case_insensitive" yaml:"case_insensitive"`
}

// ProxyProcessor is a reverse-proxy processor configuration.
type ProxyProcessor struct {
	ID                     uint32              `validate:"required" json:"id" yaml:"id"`
	UpstreamURLs           []string            `validate:"required,min=1" json:"upstream_urls" yaml:"upstream_urls"`
	LoadBalancingStrategy  LoadBalanceStrategy `json:"load_balancing_strategy" yaml:"load_balancing_strategy"`
	TimeoutSeconds         uint64              `json:"timeout_seconds" yaml:"timeout_seconds"`
	HealthCheckPath        string              `json:"health_check_path,omitempty" yaml:"health_check_path,omitempty"`
	URLRewrites            []URLRewrite        `json:"url_rewrites,omitempty" yaml:"url_rewrites,omitempty"`
	ShouldRewriteHostHeader bool               `json:"should_rewrite_host_header" yaml:"should_rewrite_host_header"`
	ForcedHostHeader       string              `json:"forced_host_header,omitempty" yaml:"forced_host_header,omitempty"`
}

// ServerSettings are the process-wide settings rows (table
// server_settings).
type ServerSettings struct {
	AdminPortalTLSCertPath string `json:"admin_portal_tls_certificate_path,omitempty" yaml:"admin_portal_tls_certificate_path,omitempty"`
	AdminPortalTLSKeyPath  string `json:"admin_portal_tls_key_path,omitempty" yaml:"admin_portal_tls_key_path,omitempty"`
	// AdminPasswordHash is the bcrypt hash of the admin portal's current
	// password, rotated by "edged --reset-admin-password". The admin
	// portal itself is out of scope; this field is the one piece of its
	// state the CLI surface is specified to mutate directly.
	AdminPasswordHash string `json:"-" yaml:"-"`
	ACMEAccountEmail       string `json:"acme_account_email,omitempty" yaml:"acme_account_email,omitempty"`
	ACMEUseStagingServer   bool   `json:"acme_use_staging_server" yaml:"acme_use_staging_server"`
	ACMECertificateCachePath string `json:"acme_certificate_cache_path,omitempty" yaml:"acme_certificate_cache_path,omitempty"`
	PortRangeLow           uint16 `json:"port_range_low" yaml:"port_range_low"`
	PortRangeHigh          uint16 `json:"port_range_high" yaml:"port_range_high"`
	// MaxBodySize is an unsigned 64-bit byte count (open question resolved
	// in DESIGN.md).
	MaxBodySize uint64 `json:"max_body_size" yaml:"max_body_size"`
}

// Configuration is the full live configuration snapshot.
type Configuration struct {
	Settings  ServerSettings
	Bindings  []Binding
	Sites     []Site
	Handlers  []RequestHandler
	Proxies   []ProxyProcessor
}

// EligibleACMEHostnames returns the hostnames, across all tls_automatic
// sites in this configuration, eligible for ACME issuance per the
// predicate (ported verbatim from
// original_source/src/http/http_tls.rs's eligibility loop).
func (c Configuration) EligibleACMEHostnames() []string {
	var out []string
	for _, s := range c.Sites {
		if !s.Enabled || !s.TLSAutomaticEnabled {
			continue
		}
		for _, h := range s.Hostnames {
			if IsACMEEligibleHostname(h) {
				out = append(out, strings.ToLower(h))
			}
		}
	}
	return out
}

// IsACMEEligibleHostname implements the exact eligibility predicate from
// original_source/src/http/http_tls.rs: non-empty, not "*", contains no
// "*", contains at least one ".", and is not "localhost".
func IsACMEEligibleHostname(h string) bool {
	if h == "" || h == "*" {
		return false
	}
	if strings.Contains(h, "*") {
		return false
	}
	if !strings.Contains(h, ".") {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return false
	}
	return true
}
