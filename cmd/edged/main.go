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

// Command edged is the process entrypoint: it parses the CLI surface
// (spec section 6), opens the configuration store, and runs the
// running-state manager until shutdown is requested.
package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/nabbar/edged/config/domain"
	"github.com/nabbar/edged/config/store/sqlstore"
	liblog "github.com/nabbar/edged/logger"
	"github.com/nabbar/edged/runtime"
	"github.com/nabbar/edged/trigger"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	v := viper.New()
	cmd := newRootCommand(v)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCommand wires the CLI surface onto cmd, binding every flag
// through v the same way nabbar-golib/config.componentList.RegisterFlag
// links a *cobra.Command to a *viper.Viper per component.
func newRootCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "edged",
		Short:   "edged is a multi-tenant HTTP/1.1 and HTTP/2 edge server",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v)
		},
	}

	cmd.PersistentFlags().String("config", "edged.db", "path to the configuration store")
	cmd.PersistentFlags().String("opmode", string(domain.OpModeProduction), "operating mode: DEV, DEBUG, PRODUCTION or SPEEDTEST")
	cmd.PersistentFlags().String("certs-dir", "certs", "directory generated self-signed certificates are written to")
	cmd.PersistentFlags().Bool("reset-admin-password", false, "generate a new admin portal password, print it once and exit")

	_ = v.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("opmode", cmd.PersistentFlags().Lookup("opmode"))
	_ = v.BindPFlag("certs-dir", cmd.PersistentFlags().Lookup("certs-dir"))
	_ = v.BindPFlag("reset-admin-password", cmd.PersistentFlags().Lookup("reset-admin-password"))

	return cmd
}

func run(ctx context.Context, v *viper.Viper) error {
	st, err := sqlstore.Open(v.GetString("config"))
	if err != nil {
		return fmt.Errorf("opening configuration store: %w", err)
	}

	log := newLogger(domain.OpMode(v.GetString("opmode")))

	if v.GetBool("reset-admin-password") {
		return resetAdminPassword(ctx, st)
	}

	triggers := trigger.New()
	mgr := runtime.NewManager(st, triggers, v.GetString("certs-dir"), log)

	if err = mgr.Start(ctx); err != nil {
		return fmt.Errorf("starting edged: %w", err)
	}

	waitForShutdown(triggers)
	mgr.Shutdown()

	return nil
}

// newLogger builds the process logger, raising the level to Debug for
// DEV/DEBUG op modes and leaving it at Info otherwise.
func newLogger(mode domain.OpMode) liblog.FuncLog {
	lg := liblog.New(context.Background())

	switch mode {
	case domain.OpModeDev, domain.OpModeDebug:
		lg.SetLevel(liblog.DebugLevel)
	default:
		lg.SetLevel(liblog.InfoLevel)
	}

	return func() liblog.Logger { return lg }
}

// resetAdminPassword generates a new random admin-portal password,
// persists its bcrypt hash and prints the plaintext once: it is never
// stored or logged anywhere else.
func resetAdminPassword(ctx context.Context, st interface {
	UpdateAdminPasswordHash(ctx context.Context, hash string) error
}) error {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("generating admin password: %w", err)
	}
	password := base64.RawURLEncoding.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	if err = st.UpdateAdminPasswordHash(ctx, string(hash)); err != nil {
		return fmt.Errorf("persisting admin password: %w", err)
	}

	fmt.Printf("new admin portal password: %s\n", password)
	return nil
}

// waitForShutdown blocks until SIGINT/SIGTERM/SIGQUIT, firing the shutdown
// trigger so any other subscriber (none yet, outside runtime.Manager
// itself) observes it too.
func waitForShutdown(triggers trigger.Registry) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	triggers.Fire(trigger.Shutdown)
}
