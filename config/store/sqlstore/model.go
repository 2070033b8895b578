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

// Package sqlstore is the reference config/store.Store implementation,
// backed by gorm.io/gorm + gorm.io/driver/sqlite.
package sqlstore

import "strings"

// serverSetting is a single server_settings(setting_key, setting_value)
// row.
type serverSetting struct {
	SettingKey   string `gorm:"primaryKey;column:setting_key"`
	SettingValue string `gorm:"column:setting_value"`
}

func (serverSetting) TableName() string { return "server_settings" }

type schemaMigration struct {
	Version int `gorm:"primaryKey;column:version"`
}

func (schemaMigration) TableName() string { return "schema_migrations" }

type binding struct {
	ID      uint32 `gorm:"primaryKey;column:id"`
	Address string `gorm:"column:address"`
	Port    uint16 `gorm:"column:port"`
	IsAdmin bool   `gorm:"column:is_admin"`
	IsTLS   bool   `gorm:"column:is_tls"`
}

func (binding) TableName() string { return "bindings" }

type site struct {
	ID                  uint32 `gorm:"primaryKey;column:id"`
	BindingIDs          string `gorm:"column:binding_ids"` // comma-separated
	Hostnames           string `gorm:"column:hostnames"` // comma-separated
	Enabled             bool   `gorm:"column:enabled"`
	WebRoot             string `gorm:"column:web_root"`
	IndexFiles          string `gorm:"column:index_files"` // comma-separated
	HandlerIDs          string `gorm:"column:handler_ids"` // comma-separated
	TLSCertPath         string `gorm:"column:tls_cert_path"`
	TLSKeyPath          string `gorm:"column:tls_key_path"`
	TLSCertInline       string `gorm:"column:tls_cert_inline"`
	TLSKeyInline        string `gorm:"column:tls_key_inline"`
	TLSAutomaticEnabled bool   `gorm:"column:tls_automatic_enabled"` // schema v4
	AccessLogEnabled    bool   `gorm:"column:access_log_enabled"`
	AccessLogPath       string `gorm:"column:access_log_path"`
	WhitelistPatterns   string `gorm:"column:whitelist_patterns"`
	BlocklistPatterns   string `gorm:"column:blocklist_patterns"`
}

func (site) TableName() string { return "sites" }

type requestHandler struct {
	ID                  uint32 `gorm:"primaryKey;column:id"`
	Type                string `gorm:"column:type"`
	Enabled             bool   `gorm:"column:enabled"`
	ExecutablePath      string `gorm:"column:executable_path"`
	UpstreamAddress     string `gorm:"column:upstream_address"`
	FileMatchPatterns   string `gorm:"column:file_match_patterns"`
	RequestTimeout      uint64 `gorm:"column:request_timeout"`
	ConcurrentThreads   uint32 `gorm:"column:concurrent_threads"`
	ServerSoftwareSpoof string `gorm:"column:server_software_spoof"` // schema v3
}

func (requestHandler) TableName() string { return "request_handlers" }

type proxyProcessor struct {
	ID                      uint32 `gorm:"primaryKey;column:id"`
	UpstreamURLs            string `gorm:"column:upstream_urls"`
	LoadBalancingStrategy   string `gorm:"column:load_balancing_strategy"`
	TimeoutSeconds          uint64 `gorm:"column:timeout_seconds"`
	HealthCheckPath         string `gorm:"column:health_check_path"`
	URLRewrites             string `gorm:"column:url_rewrites"` // "from|to|ci;from|to|ci"
	ShouldRewriteHostHeader bool   `gorm:"column:should_rewrite_host_header"`
	ForcedHostHeader        string `gorm:"column:forced_host_header"`
}

func (proxyProcessor) TableName() string { return "proxy_processors" }

func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinCSV(v []string) string {
	return strings.Join(v, ",")
}
