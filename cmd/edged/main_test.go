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

package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/config/store/sqlstore"
)

func TestNewRootCommandDefaults(t *testing.T) {
	v := viper.New()
	cmd := newRootCommand(v)

	if got := v.GetString("opmode"); got != string(domain.OpModeProduction) {
		t.Fatalf("expected default opmode PRODUCTION, got %q", got)
	}
	if got := v.GetString("certs-dir"); got != "certs" {
		t.Fatalf("expected default certs-dir 'certs', got %q", got)
	}
	if f := cmd.PersistentFlags().Lookup("reset-admin-password"); f == nil {
		t.Fatal("expected --reset-admin-password flag to be registered")
	}
}

func TestNewLoggerLevelByOpMode(t *testing.T) {
	if l := newLogger(domain.OpModeDev); l() == nil {
		t.Fatal("expected a non-nil logger")
	}
	if l := newLogger(domain.OpModeProduction); l() == nil {
		t.Fatal("expected a non-nil logger")
	}
}

func TestResetAdminPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edged.db")
	st, err := sqlstore.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	if err = resetAdminPassword(context.Background(), st); err != nil {
		t.Fatalf("reset admin password: %v", err)
	}

	cfg, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !strings.HasPrefix(cfg.Settings.AdminPasswordHash, "$2") {
		t.Fatalf("expected a bcrypt hash to be persisted, got %q", cfg.Settings.AdminPasswordHash)
	}
}
