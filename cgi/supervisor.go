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

// Package cgi supervises external request handler child processes: one
// supervisor per handler type referenced by an enabled
// site, a fixed worker pool each owning a supervised child bound to a
// port-manager-allocated TCP port, and a bounded request queue feeding
// them. Grounded on
// original_source/src/grux_external_request_handlers/grux_handler_php.rs's
// worker-pool-over-a-bounded-channel shape, generalized from "print a
// trace line" to the full spawn/monitor/restart state machine and CGI
// wire I/O a PHP-FPM-style external handler requires.
package cgi

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/nabbar/edged/config/domain"
	liblog "github.com/nabbar/edged/logger"
	"github.com/nabbar/edged/portmanager"
)

const queueCapacity = 1000

// Supervisor runs the worker pool for one external request handler
// configuration and dispatches queued requests to whichever worker is
// Running.
type Supervisor struct {
	cfg     domain.RequestHandler
	workers []*worker
	queue   chan job
	log     liblog.FuncLog

	cursorMu sync.Mutex
	cursor   int

	wg sync.WaitGroup
}

// New builds a Supervisor for cfg, sizing the worker pool from
// cfg.ConcurrentThreads (or runtime.NumCPU when zero).
func New(cfg domain.RequestHandler, ports portmanager.Manager, log liblog.FuncLog) *Supervisor {
	count := cfg.WorkerCount(runtime.NumCPU())
	serviceID := fmt.Sprintf("handler-%d", cfg.ID)

	s := &Supervisor{
		cfg:   cfg,
		queue: make(chan job, queueCapacity),
		log:   log,
	}

	for i := 0; i < count; i++ {
		s.workers = append(s.workers, newWorker(i, serviceID, cfg, ports, log))
	}

	return s
}

// Start launches every worker's state machine and the dispatch loop.
func (s *Supervisor) Start() {
	for _, w := range s.workers {
		s.wg.Add(1)
		go func(w *worker) {
			defer s.wg.Done()
			w.run()
		}(w)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatchLoop()
	}()
}

// Stop kills every child, releases its port, and drains the queue.
func (s *Supervisor) Stop() {
	for _, w := range s.workers {
		w.stop()
	}
	close(s.queue)
	s.wg.Wait()
}

func (s *Supervisor) dispatchLoop() {
	for j := range s.queue {
		s.wg.Add(1)
		go func(j job) {
			defer s.wg.Done()
			s.dispatchOne(j)
		}(j)
	}
}

// dispatchOne hands j to the next Running worker in rotation, so
// concurrently queued requests spread across the pool instead of piling
// onto a single worker's connection.
func (s *Supervisor) dispatchOne(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	if w := s.nextRunning(); w != nil {
		w.handle(ctx, j)
		return
	}

	j.result <- jobResult{err: ErrorWorkerUnavailable.Error(nil)}
}

func (s *Supervisor) nextRunning() *worker {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()

	n := len(s.workers)
	for i := 0; i < n; i++ {
		w := s.workers[s.cursor%n]
		s.cursor++
		if w.State() == Running {
			return w
		}
	}

	return nil
}

// ServeHTTP implements http.Handler: it builds a CGI-style environment from
// r, enqueues a job (bounded by queueCapacity), and
// writes the worker's response back to w.
func (s *Supervisor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := make([]byte, 0)
	if r.Body != nil {
		buf := make([]byte, 4096)
		for {
			n, err := r.Body.Read(buf)
			if n > 0 {
				body = append(body, buf[:n]...)
			}
			if err != nil {
				break
			}
		}
	}

	result := make(chan jobResult, 1)
	j := job{ctx: r.Context(), env: buildRequestEnv(r, len(body)), body: body, result: result}

	select {
	case s.queue <- j:
	default:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	select {
	case res := <-result:
		if res.err != nil {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		for k, v := range res.headers {
			w.Header().Set(k, v)
		}
		status := res.status
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		_, _ = w.Write(res.body)

	case <-r.Context().Done():
		http.Error(w, "gateway timeout", http.StatusGatewayTimeout)
	}
}

// buildRequestEnv maps an inbound HTTP request onto the classic CGI
// environment variable set.
func buildRequestEnv(r *http.Request, contentLength int) map[string]string {
	env := map[string]string{
		"REQUEST_METHOD":  r.Method,
		"SCRIPT_NAME":     r.URL.Path,
		"QUERY_STRING":    r.URL.RawQuery,
		"SERVER_PROTOCOL": r.Proto,
		"CONTENT_LENGTH":  strconv.Itoa(contentLength),
		"CONTENT_TYPE":    r.Header.Get("Content-Type"),
		"REMOTE_ADDR":     r.RemoteAddr,
	}

	for k, vs := range r.Header {
		key := "HTTP_" + strings.ToUpper(strings.ReplaceAll(k, "-", "_"))
		env[key] = strings.Join(vs, ", ")
	}

	return env
}
