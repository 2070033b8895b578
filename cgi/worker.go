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

package cgi

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nabbar/edged/config/domain"
	liblog "github.com/nabbar/edged/logger"
	"github.com/nabbar/edged/portmanager"
)

const (
	monitorInterval = 5 * time.Second
	restartBackoff  = time.Second
)

// job is one unit of CGI work handed from the supervisor's queue to a
// worker.
type job struct {
	ctx    context.Context
	env    map[string]string
	body   []byte
	result chan jobResult
}

type jobResult struct {
	status  int
	headers map[string]string
	body    []byte
	err     error
}

// worker owns one supervised child process and the TCP connection used to
// feed it CGI requests.
type worker struct {
	id        int
	serviceID string
	cfg       domain.RequestHandler
	ports     portmanager.Manager
	log       liblog.FuncLog

	state atomic.Int32

	mu   sync.Mutex
	cmd  *exec.Cmd
	port uint16

	stopCh chan struct{}
	doneCh chan struct{}
}

func newWorker(id int, serviceID string, cfg domain.RequestHandler, ports portmanager.Manager, log liblog.FuncLog) *worker {
	return &worker{
		id:        id,
		serviceID: serviceID,
		cfg:       cfg,
		ports:     ports,
		log:       log,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// run drives the worker's state machine until stop is
// called. Intended to be launched in its own goroutine.
func (w *worker) run() {
	defer close(w.doneCh)

	for {
		select {
		case <-w.stopCh:
			w.shutdownChild()
			w.setState(Stopped)
			return
		default:
		}

		w.setState(Starting)

		if err := w.spawn(); err != nil {
			liblog.Logf(w.log, liblog.WarnLevel, nil, "cgi worker %d: spawn failed: %v", w.id, err)
			w.setState(Failed)
			if w.waitBackoffOrStop(restartBackoff) {
				return
			}
			continue
		}

		w.setState(Running)
		exited := w.monitor()

		select {
		case <-w.stopCh:
			w.shutdownChild()
			w.setState(Stopped)
			return
		case <-exited:
			liblog.Logf(w.log, liblog.WarnLevel, nil, "cgi worker %d: child exited, restarting", w.id)
			w.setState(Failed)
			if w.waitBackoffOrStop(restartBackoff) {
				return
			}
		}
	}
}

func (w *worker) waitBackoffOrStop(d time.Duration) (stopped bool) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-w.stopCh:
		return true
	case <-t.C:
		return false
	}
}

// spawn allocates a port and starts the child process bound to it.
func (w *worker) spawn() error {
	port, ok := w.ports.Allocate(w.serviceID)
	if !ok {
		return ErrorPortExhausted.Error(nil)
	}

	args := []string{"-b", fmt.Sprintf("127.0.0.1:%d", port)}

	cmd := exec.Command(w.cfg.ExecutablePath, args...)
	cmd.Env = buildChildEnv(w.cfg)

	if err := cmd.Start(); err != nil {
		w.ports.Release(port)
		return ErrorSpawn.Error(err)
	}

	w.mu.Lock()
	w.cmd = cmd
	w.port = port
	w.mu.Unlock()

	return nil
}

// monitor waits for the child's exit via cmd.Wait in a goroutine,
// returning a channel closed when the child has exited. It does not poll
// liveness on a timer.
func (w *worker) monitor() <-chan struct{} {
	exited := make(chan struct{})

	w.mu.Lock()
	cmd := w.cmd
	w.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	return exited
}

func (w *worker) shutdownChild() {
	w.mu.Lock()
	cmd := w.cmd
	port := w.port
	w.cmd = nil
	w.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if port != 0 {
		w.ports.Release(port)
	}
}

func (w *worker) stop() {
	close(w.stopCh)
	<-w.doneCh
}

// handle performs one request's CGI I/O against the worker's child:
// environment and body are written to a fresh TCP connection on the
// child's bound port, and the response is read back.
func (w *worker) handle(ctx context.Context, j job) {
	w.mu.Lock()
	port := w.port
	w.mu.Unlock()

	if port == 0 || w.State() != Running {
		j.result <- jobResult{err: ErrorWorkerUnavailable.Error(nil)}
		return
	}

	timeout := time.Duration(w.cfg.RequestTimeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		j.result <- jobResult{err: err}
		return
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))

	bw := bufio.NewWriter(conn)
	for k, v := range j.env {
		fmt.Fprintf(bw, "%s=%s\n", k, v)
	}
	bw.WriteString("\n")
	bw.Write(j.body)
	if err = bw.Flush(); err != nil {
		j.result <- jobResult{err: err}
		return
	}

	res, err := readCGIResponse(conn)
	if err != nil {
		j.result <- jobResult{err: err}
		return
	}

	j.result <- res
}

func readCGIResponse(conn net.Conn) (jobResult, error) {
	r := bufio.NewReader(conn)

	statusLine, err := r.ReadString('\n')
	if err != nil {
		return jobResult{}, err
	}
	status, err := strconv.Atoi(strings.TrimSpace(statusLine))
	if err != nil {
		status = 200
	}

	headers := make(map[string]string)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return jobResult{}, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if k, v, ok := strings.Cut(line, ": "); ok {
			headers[k] = v
		}
	}

	body := make([]byte, 0, 4096)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if err != nil {
			break
		}
	}

	return jobResult{status: status, headers: headers, body: body}, nil
}

func buildChildEnv(cfg domain.RequestHandler) []string {
	env := append([]string{}, os.Environ()...)
	for k, v := range cfg.Environment {
		env = append(env, k+"="+v)
	}
	for k, v := range cfg.ExtraConfig {
		env = append(env, k+"="+v)
	}
	if cfg.ServerSoftwareSpoof != "" {
		env = append(env, "SERVER_SOFTWARE="+cfg.ServerSoftwareSpoof)
	}
	return env
}
