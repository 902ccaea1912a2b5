// Package sidecar implements the out-of-process backend transport
// (spec §4.6, §4.7): spawning a child process, framing JSONL over its
// stdio, and a client that layers handshake/run/cancel semantics on
// top of the raw transport.
package sidecar

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/bperr"
	"github.com/EffortlessMetrics/agent-backplane-sub008/pkg/wire"
)

// Spec describes a child process to spawn as a sidecar backend.
type Spec struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	// CancelGrace bounds how long Cancel waits for the child to exit
	// after a best-effort cancel before sending a forceful kill
	// (spec §4.6, §5; default 2s).
	CancelGrace time.Duration
}

func (s Spec) cancelGrace() time.Duration {
	if s.CancelGrace > 0 {
		return s.CancelGrace
	}
	return 2 * time.Second
}

// Transport owns a spawned child process and the line-framed JSONL
// streams over its stdin/stdout. stderr is copied to the provided
// logger out-of-band, never parsed as protocol.
type Transport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	logger *slog.Logger

	mu       sync.Mutex
	recvErr  error
	closed   bool
	cancelGr time.Duration
}

// Spawn starts the child process described by spec. stderr lines are
// logged at Warn level tagged "sidecar.stderr"; they never affect
// protocol state.
func Spawn(ctx context.Context, spec Spec, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir

	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env
	cmd.SysProcAttr = sidecarSysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "sidecar: stdin pipe failed", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "sidecar: stdout pipe failed", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, bperr.Wrap(bperr.CodeInternal, "sidecar: stderr pipe failed", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, bperr.Wrap(bperr.CodeBackendCrashed, "sidecar: spawn failed", err)
	}

	go logStderr(stderr, logger)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), wire.MaxLineBytes)

	return &Transport{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   sc,
		logger:   logger,
		cancelGr: spec.cancelGrace(),
	}, nil
}

func logStderr(r io.Reader, logger *slog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		logger.Warn("sidecar.stderr", "line", sc.Text())
	}
}

// Send encodes env and writes it as one line to the child's stdin.
func (t *Transport) Send(env wire.Envelope) error {
	line, err := wire.Encode(env)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return bperr.New(bperr.CodeBackendCrashed, "sidecar: stdin closed")
	}
	if _, err := io.WriteString(t.stdin, line); err != nil {
		return bperr.Wrap(bperr.CodeBackendCrashed, "sidecar: stdin write failed", err)
	}
	return nil
}

// Recv reads and decodes the next JSONL line from the child's stdout.
// It returns (Envelope{}, io.EOF) on clean EOF.
func (t *Transport) Recv() (wire.Envelope, error) {
	if !t.stdout.Scan() {
		if err := t.stdout.Err(); err != nil {
			return wire.Envelope{}, bperr.Wrap(bperr.CodeProtocolInvalidEnvelope, "sidecar: stdout read failed", err)
		}
		return wire.Envelope{}, io.EOF
	}
	line := t.stdout.Text()
	env, err := wire.Decode(line)
	if err != nil {
		return wire.Envelope{}, err
	}
	return env, nil
}

// Cancel sends a best-effort cancel frame, closes stdin, and waits up
// to the configured grace period for the child to exit before sending
// a forceful kill to the process group (spec §4.6, §5).
func (t *Transport) Cancel(refID, reason string) {
	_ = t.Send(wire.Envelope{Tag: wire.TagCancel, Cancel: &wire.Cancel{RefID: refID, Reason: reason}})

	t.mu.Lock()
	if !t.closed {
		_ = t.stdin.Close()
		t.closed = true
	}
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = t.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(t.cancelGr):
		t.forceKill()
		<-done
	}
}

// Wait blocks until the child exits and returns its exit code, or -1
// if it could not be determined. It must be called exactly once.
func (t *Transport) Wait() int {
	err := t.cmd.Wait()
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

// Close closes stdin (signalling EOF to the child) without waiting.
// Callers that need deterministic reaping should follow with Wait.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.stdin.Close()
}

func sidecarSysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// forceKill sends SIGKILL to the child's process group.
func (t *Transport) forceKill() {
	if t.cmd.Process == nil {
		return
	}
	pgid, err := syscall.Getpgid(t.cmd.Process.Pid)
	if err != nil {
		_ = t.cmd.Process.Kill()
		return
	}
	_ = syscall.Kill(-pgid, syscall.SIGKILL)
}
