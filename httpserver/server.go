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

package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/http2"

	tlscfg "github.com/nabbar/golib/certificates"

	liberr "github.com/nabbar/edged/errors"
)

const (
	timeoutShutdown = 10 * time.Second
	timeoutRestart  = 30 * time.Second
)

// acmeActiver is satisfied by a CertResolver that can report whether it has
// an ACME source configured (spec section 4.6: ALPN advertises
// "acme-tls/1" only while ACME is active for the binding). Resolvers that
// don't implement it -- e.g. test doubles -- are treated as ACME-inactive.
type acmeActiver interface {
	ACMEActive() bool
}

type server struct {
	run atomic.Value
	cfg *ServerConfig
	srv *http.Server
	cnl context.CancelFunc
}

// Server is one binding's accept loop: it owns the *http.Server, applies
// http/http2 tuning from ServerConfig, and terminates TLS through the
// config's CertResolver when one is set.
type Server interface {
	GetConfig() *ServerConfig
	SetConfig(cfg *ServerConfig)

	GetName() string
	GetBindable() string
	GetExpose() string

	IsRunning() bool
	IsTLS() bool
	WaitNotify()
	Merge(srv Server) bool

	Listen(handler http.Handler) liberr.Error
	Restart()
	Shutdown()
}

func NewServer(cfg *ServerConfig) Server {
	return &server{
		cfg: cfg,
		srv: nil,
		cnl: nil,
	}
}

func (s *server) GetConfig() *ServerConfig {
	return s.cfg
}

func (s *server) SetConfig(cfg *ServerConfig) {
	s.cfg = cfg
}

func (s server) GetName() string {
	if s.cfg.Name == "" {
		s.cfg.Name = s.GetBindable()
	}

	return s.cfg.Name
}

func (s *server) GetBindable() string {
	return s.cfg.GetListen().Host
}

func (s *server) GetExpose() string {
	return s.cfg.GetExpose().String()
}

func (s *server) IsRunning() bool {
	if i := s.run.Load(); i == nil {
		return false
	} else if b, ok := i.(bool); !ok {
		return false
	} else {
		return b
	}
}

func (s *server) IsTLS() bool {
	return s.cfg.IsTLS()
}

func (s *server) setRunning() {
	s.run.Store(true)
}

func (s *server) setNotRunning() {
	s.run.Store(false)
}

func (s *server) logInfo(message string, args ...interface{}) {
	if l := s.cfg.log(); l != nil {
		if lg := l(); lg != nil {
			lg.Info(message, nil, args...)
		}
	}
}

func (s *server) logError(message string, err error, args ...interface{}) {
	if l := s.cfg.log(); l != nil {
		if lg := l(); lg != nil {
			lg.Error(message, err, args...)
		}
	}
}

func (s *server) Listen(handler http.Handler) liberr.Error {
	srv := &http.Server{
		Addr: s.GetBindable(),
	}

	o := &optServer{
		ReadTimeout:                  s.cfg.ReadTimeout,
		ReadHeaderTimeout:            s.cfg.ReadHeaderTimeout,
		WriteTimeout:                 s.cfg.WriteTimeout,
		MaxHeaderBytes:               s.cfg.MaxHeaderBytes,
		MaxHandlers:                  s.cfg.MaxHandlers,
		MaxConcurrentStreams:         s.cfg.MaxConcurrentStreams,
		PermitProhibitedCipherSuites: s.cfg.PermitProhibitedCipherSuites,
		IdleTimeout:                  s.cfg.IdleTimeout,
		MaxUploadBufferPerConnection: s.cfg.MaxUploadBufferPerConnection,
		MaxUploadBufferPerStream:     s.cfg.MaxUploadBufferPerStream,
	}

	if e := o.initServer(srv); e != nil {
		return e
	}

	if s.cfg.IsTLS() {
		// The cipher/curve/version hardening defaults come from the
		// teacher's own certificates.Default builder; only the
		// per-connection certificate lookup and ALPN set are edged-specific.
		tc := tlscfg.Default.TLS("")
		tc.GetCertificate = s.cfg.Resolver.GetCertificate
		tc.NextProtos = []string{"h2", "http/1.1"}
		if a, ok := s.cfg.Resolver.(acmeActiver); ok && a.ACMEActive() {
			tc.NextProtos = append(tc.NextProtos, "acme-tls/1")
		}
		srv.TLSConfig = tc
	}

	if handler != nil {
		srv.Handler = handler
	} else if s.srv != nil {
		srv.Handler = s.srv.Handler
	}

	if s.IsRunning() {
		s.Shutdown()
	}

	for i := 0; i < 5; i++ {
		if e := PortInUse(context.Background(), s.GetBindable()); e != nil {
			s.Shutdown()
		} else {
			break
		}
	}

	s.srv = srv

	go func() {
		ctx, cnl := context.WithCancel(s.cfg.getContext())
		s.cnl = cnl

		defer func() {
			cnl()
			s.setNotRunning()
		}()

		s.srv.BaseContext = func(listener net.Listener) context.Context {
			return ctx
		}

		var err error

		if s.cfg.IsTLS() {
			s.logInfo("TLS server '%s' is starting with bindable: %s", s.GetName(), s.GetBindable())

			s.setRunning()
			err = s.srv.ListenAndServeTLS("", "")
		} else {
			s.logInfo("server '%s' is starting with bindable: %s", s.GetName(), s.GetBindable())

			s.setRunning()
			err = s.srv.ListenAndServe()
		}

		if err != nil && ctx.Err() != nil && ctx.Err().Error() == err.Error() {
			return
		} else if err != nil && errors.Is(err, http.ErrServerClosed) {
			return
		} else if err != nil {
			s.logError("listen server '%s'", err, s.GetName())
		}
	}()

	return nil
}

func (s *server) WaitNotify() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT)
	signal.Notify(quit, syscall.SIGTERM)
	signal.Notify(quit, syscall.SIGQUIT)

	select {
	case <-quit:
		s.Shutdown()
	case <-s.cfg.getContext().Done():
		s.Shutdown()
	}
}

func (s *server) Restart() {
	_ = s.Listen(nil)
}

func (s *server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), timeoutShutdown)
	defer func() {
		cancel()

		if s.srv != nil {
			_ = s.srv.Close()
		}

		s.setNotRunning()
	}()

	s.logInfo("shutdown server '%s'...", s.GetName())

	if s.cnl != nil {
		s.cnl()
	}

	if s.srv != nil {
		err := s.srv.Shutdown(ctx)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logError("shutdown server '%s'", err, s.GetName())
		}
	}
}

func (s *server) Merge(srv Server) bool {
	if x, ok := srv.(*server); ok {
		s.cfg = x.cfg
		return true
	}

	return false
}
