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

package sqlstore

import (
	"context"
	"strconv"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/config/store"
)

// CurrentSchemaVersion is the migration head this store implements
//: version 3 added request_handlers.server_software_spoof,
// version 4 added sites.tls_automatic_enabled.
const CurrentSchemaVersion = 4

type sqlStore struct {
	db *gorm.DB
}

// Open creates (or attaches to) a sqlite-backed configuration store at
// path, migrating its schema up to CurrentSchemaVersion.
func Open(path string) (store.Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err = db.AutoMigrate(
		&serverSetting{},
		&schemaMigration{},
		&binding{},
		&site{},
		&requestHandler{},
		&proxyProcessor{},
	); err != nil {
		return nil, err
	}

	s := &sqlStore{db: db}
	if err = s.ensureSchemaVersion(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *sqlStore) ensureSchemaVersion() error {
	var rows []schemaMigration
	if err := s.db.Find(&rows).Error; err != nil {
		return err
	}

	max := 0
	for _, r := range rows {
		if r.Version > max {
			max = r.Version
		}
	}

	for v := max + 1; v <= CurrentSchemaVersion; v++ {
		if err := s.db.Create(&schemaMigration{Version: v}).Error; err != nil {
			return err
		}
	}

	return nil
}

func (s *sqlStore) SchemaVersion(_ context.Context) (int, error) {
	var rows []schemaMigration
	if err := s.db.Find(&rows).Error; err != nil {
		return 0, err
	}
	max := 0
	for _, r := range rows {
		if r.Version > max {
			max = r.Version
		}
	}
	return max, nil
}

func (s *sqlStore) Load(ctx context.Context) (domain.Configuration, error) {
	db := s.db.WithContext(ctx)

	var (
		settings []serverSetting
		bindings []binding
		sites    []site
		handlers []requestHandler
		proxies  []proxyProcessor
	)

	if err := db.Find(&settings).Error; err != nil {
		return domain.Configuration{}, err
	}
	if err := db.Find(&bindings).Error; err != nil {
		return domain.Configuration{}, err
	}
	if err := db.Find(&sites).Error; err != nil {
		return domain.Configuration{}, err
	}
	if err := db.Find(&handlers).Error; err != nil {
		return domain.Configuration{}, err
	}
	if err := db.Find(&proxies).Error; err != nil {
		return domain.Configuration{}, err
	}

	cfg := domain.Configuration{
		Settings: settingsToDomain(settings),
	}

	for _, b := range bindings {
		cfg.Bindings = append(cfg.Bindings, domain.Binding{
			ID:      b.ID,
			Address: b.Address,
			Port:    b.Port,
			IsAdmin: b.IsAdmin,
			IsTLS:   b.IsTLS,
		})
	}

	for _, st := range sites {
		cfg.Sites = append(cfg.Sites, domain.Site{
			ID:         st.ID,
			BindingIDs: parseUint32CSV(st.BindingIDs),
			Hostnames:  splitCSV(st.Hostnames),
			Enabled:    st.Enabled,
			WebRoot:    st.WebRoot,
			IndexFiles: splitCSV(st.IndexFiles),
			HandlerIDs: parseUint32CSV(st.HandlerIDs),
			TLS: domain.TLSMaterial{
				CertPath:   st.TLSCertPath,
				KeyPath:    st.TLSKeyPath,
				CertInline: st.TLSCertInline,
				KeyInline:  st.TLSKeyInline,
			},
			TLSAutomaticEnabled: st.TLSAutomaticEnabled,
			AccessLogEnabled:    st.AccessLogEnabled,
			AccessLogPath:       st.AccessLogPath,
			WhitelistPatterns:   splitCSV(st.WhitelistPatterns),
			BlocklistPatterns:   splitCSV(st.BlocklistPatterns),
		})
	}

	for _, h := range handlers {
		cfg.Handlers = append(cfg.Handlers, domain.RequestHandler{
			ID:                  h.ID,
			Type:                domain.HandlerType(h.Type),
			Enabled:             h.Enabled,
			ExecutablePath:      h.ExecutablePath,
			UpstreamAddress:     h.UpstreamAddress,
			FileMatchPatterns:   splitCSV(h.FileMatchPatterns),
			RequestTimeout:      h.RequestTimeout,
			ConcurrentThreads:   h.ConcurrentThreads,
			ServerSoftwareSpoof: h.ServerSoftwareSpoof,
		})
	}

	for _, p := range proxies {
		cfg.Proxies = append(cfg.Proxies, domain.ProxyProcessor{
			ID:                      p.ID,
			UpstreamURLs:            splitCSV(p.UpstreamURLs),
			LoadBalancingStrategy:   domain.LoadBalanceStrategy(p.LoadBalancingStrategy),
			TimeoutSeconds:          p.TimeoutSeconds,
			HealthCheckPath:         p.HealthCheckPath,
			URLRewrites:             parseRewrites(p.URLRewrites),
			ShouldRewriteHostHeader: p.ShouldRewriteHostHeader,
			ForcedHostHeader:        p.ForcedHostHeader,
		})
	}

	return cfg, nil
}

func (s *sqlStore) UpdateAdminPortalTLS(ctx context.Context, certPath, keyPath string) error {
	db := s.db.WithContext(ctx)
	if err := upsertSetting(db, "admin_portal_tls_certificate_path", certPath); err != nil {
		return err
	}
	return upsertSetting(db, "admin_portal_tls_key_path", keyPath)
}

func (s *sqlStore) UpdateSiteTLS(ctx context.Context, siteID uint32, certPath, keyPath string) error {
	return s.db.WithContext(ctx).Model(&site{}).Where("id = ?", siteID).
		Updates(map[string]any{"tls_cert_path": certPath, "tls_key_path": keyPath}).Error
}

func (s *sqlStore) UpdateAdminPasswordHash(ctx context.Context, hash string) error {
	return upsertSetting(s.db.WithContext(ctx), "admin_password_hash", hash)
}

func upsertSetting(db *gorm.DB, key, value string) error {
	return db.Save(&serverSetting{SettingKey: key, SettingValue: value}).Error
}

func settingsToDomain(rows []serverSetting) domain.ServerSettings {
	m := make(map[string]string, len(rows))
	for _, r := range rows {
		m[r.SettingKey] = r.SettingValue
	}

	s := domain.ServerSettings{
		AdminPortalTLSCertPath:   m["admin_portal_tls_certificate_path"],
		AdminPortalTLSKeyPath:    m["admin_portal_tls_key_path"],
		ACMEAccountEmail:         m["acme_account_email"],
		ACMEUseStagingServer:     m["acme_use_staging_server"] == "true",
		ACMECertificateCachePath: m["acme_certificate_cache_path"],
		AdminPasswordHash:        m["admin_password_hash"],
	}

	if v, err := strconv.ParseUint(m["port_range_low"], 10, 16); err == nil {
		s.PortRangeLow = uint16(v)
	}
	if v, err := strconv.ParseUint(m["port_range_high"], 10, 16); err == nil {
		s.PortRangeHigh = uint16(v)
	}
	if v, err := strconv.ParseUint(m["max_body_size"], 10, 64); err == nil {
		s.MaxBodySize = v
	}

	if s.PortRangeLow == 0 && s.PortRangeHigh == 0 {
		s.PortRangeLow, s.PortRangeHigh = 9000, 10000
	}

	return s
}

func parseUint32CSV(s string) []uint32 {
	parts := splitCSV(s)
	out := make([]uint32, 0, len(parts))
	for _, p := range parts {
		if v, err := strconv.ParseUint(p, 10, 32); err == nil {
			out = append(out, uint32(v))
		}
	}
	return out
}

// parseRewrites decodes "from|to|ci;from|to|ci" into ordered URLRewrite
// rules. Empty input yields no rules.
func parseRewrites(s string) []domain.URLRewrite {
	if strings.TrimSpace(s) == "" {
		return nil
	}

	var out []domain.URLRewrite
	for _, rule := range strings.Split(s, ";") {
		fields := strings.SplitN(rule, "|", 3)
		if len(fields) != 3 {
			continue
		}
		out = append(out, domain.URLRewrite{
			From:            fields[0],
			To:              fields[1],
			CaseInsensitive: fields[2] == "1",
		})
	}
	return out
}
