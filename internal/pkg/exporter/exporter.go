// Copyright 2022 Metrika Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package exporter manages the lifecycle of the exporter process under
// test: spawn, readiness, resource usage sampling and shutdown.
package exporter

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"go.uber.org/zap"
)

// Config configures the exporter process.
type Config struct {
	// Path to the exporter executable.
	Path string
	// ConfPath is passed as --conf, the metric-definition file.
	ConfPath string
	// Port the exporter serves /metrics on.
	Port int
	// SMP is the shard count passed as --smp.
	SMP int
	// EnvFile optionally points to a dotenv file with extra environment
	// for the child process.
	EnvFile string
	// StartTimeout bounds readiness (first stdout line plus a reachable
	// metrics port).
	StartTimeout time.Duration
}

// Exporter is one spawned exporter process.
type Exporter struct {
	Config

	cmd  *exec.Cmd
	proc procfs.Proc
	log  *zap.SugaredLogger
}

// New returns an unstarted exporter.
func New(conf Config) *Exporter {
	if conf.SMP == 0 {
		conf.SMP = 2
	}
	if conf.StartTimeout == 0 {
		conf.StartTimeout = 30 * time.Second
	}

	return &Exporter{
		Config: conf,
		log:    zap.S().With("exporter", conf.Path),
	}
}

// Addr returns the host:port of the exporter's metrics endpoint.
func (e *Exporter) Addr() string {
	return fmt.Sprintf("localhost:%d", e.Port)
}

// Start spawns the process and blocks until it is ready to serve. The
// exporter signals readiness by printing one line to stdout once its server
// listens; the metrics port is probed afterwards to cover the window between
// the print and the accept loop.
func (e *Exporter) Start(ctx context.Context) error {
	args := []string{
		"--port", fmt.Sprintf("%d", e.Port),
		"--conf", e.ConfPath,
		fmt.Sprintf("--smp=%d", e.SMP),
	}

	cmd := exec.Command(e.Path, args...)
	cmd.Env = os.Environ()
	if e.EnvFile != "" {
		extra, err := godotenv.Read(e.EnvFile)
		if err != nil {
			return errors.Wrapf(err, "failed to read env file %s", e.EnvFile)
		}
		for k, v := range extra {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errors.Wrap(err, "failed to pipe exporter stdout")
	}

	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start exporter %s", e.Path)
	}
	e.cmd = cmd
	e.log = e.log.With("pid", cmd.Process.Pid)

	readyCh := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(stdout)
		if scanner.Scan() {
			readyCh <- scanner.Text()
		} else {
			close(readyCh)
		}
		// keep draining so the child never blocks on a full pipe
		for scanner.Scan() {
			e.log.Debugw("exporter output", "line", scanner.Text())
		}
	}()

	select {
	case line, ok := <-readyCh:
		if !ok {
			e.Stop()
			return errors.New("exporter exited before becoming ready")
		}
		e.log.Infow("exporter ready", "line", line)
	case <-time.After(e.StartTimeout):
		e.Stop()
		return errors.Errorf("exporter not ready after %v", e.StartTimeout)
	case <-ctx.Done():
		e.Stop()
		return ctx.Err()
	}

	if proc, err := procfs.NewProc(cmd.Process.Pid); err != nil {
		e.log.Warnw("process stats unavailable", zap.Error(err))
	} else {
		e.proc = proc
	}

	return e.waitReachable(ctx)
}

func (e *Exporter) waitReachable(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = e.StartTimeout

	probe := func() error {
		conn, err := net.DialTimeout("tcp", e.Addr(), time.Second)
		if err != nil {
			return err
		}
		return conn.Close()
	}

	if err := backoff.Retry(probe, backoff.WithContext(bo, ctx)); err != nil {
		return errors.Wrapf(err, "metrics port never became reachable, addr: %s", e.Addr())
	}
	return nil
}

// Usage samples the resident memory and accumulated CPU time of the spawned
// process.
func (e *Exporter) Usage() (residentBytes int, cpuSeconds float64, err error) {
	stat, err := e.proc.Stat()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to read process stats")
	}
	return stat.ResidentMemory(), stat.CPUTime(), nil
}

// Stop terminates the process, escalating to SIGKILL when it ignores
// SIGTERM.
func (e *Exporter) Stop() error {
	if e.cmd == nil || e.cmd.Process == nil {
		return nil
	}

	if err := e.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		e.log.Warnw("failed to signal exporter", zap.Error(err))
	}

	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		e.log.Warn("exporter ignored SIGTERM, killing")
		e.cmd.Process.Kill()
		<-done
	}

	e.cmd = nil
	return nil
}
