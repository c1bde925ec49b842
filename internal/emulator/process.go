package emulator

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// startupGrace is how long Start waits before confirming the process has
	// not exited immediately (bad host, refused connection, bad arguments).
	startupGrace = 2 * time.Second

	// quitGrace is how long Terminate waits after sending Quit before
	// force-killing the process.
	quitGrace = 5 * time.Second
)

// Process supervises one s3270 subprocess: it owns the standard streams and
// guarantees the process is gone after Terminate.
type Process struct {
	Host string
	Port int

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *lockedBuffer

	done chan struct{} // closed once Wait returns

	mu         sync.Mutex
	terminated bool

	// Overridable for tests.
	grace     time.Duration
	quitGrace time.Duration
}

// lockedBuffer lets the exec machinery write stderr while Start reads it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// StartProcess launches s3270 against host:port with the profile chosen for
// that target, wires the standard streams, and confirms the process survived
// its startup grace interval. On immediate exit the captured stderr is
// returned as the diagnostic.
func StartProcess(executable, host string, port int) (*Process, error) {
	return startProcess(executable, host, port, startupGrace)
}

func startProcess(executable, host string, port int, grace time.Duration) (*Process, error) {
	profile := ProfileFor(host, port)
	cmd := exec.Command(executable, profile.Args(host, port)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &lockedBuffer{}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", executable, err)
	}

	p := &Process{
		Host:      host,
		Port:      port,
		cmd:       cmd,
		stdin:     stdin,
		stdout:    stdout,
		stderr:    stderr,
		done:      make(chan struct{}),
		grace:     grace,
		quitGrace: quitGrace,
	}

	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()

	// An emulator that cannot reach the host exits within the grace window.
	select {
	case <-p.done:
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = "process exited immediately"
		}
		return nil, fmt.Errorf("connection to %s:%d failed: %s", host, port, diag)
	case <-time.After(grace):
	}

	slog.Debug("emulator process started",
		"host", host, "port", port, "profile", profile.Name, "pid", cmd.Process.Pid)
	return p, nil
}

// Running reports whether the subprocess is still alive.
func (p *Process) Running() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stdin returns the writer for the scripting channel. Only Channel should use
// it; all other interaction goes through Channel.Send.
func (p *Process) Stdin() io.Writer { return p.stdin }

// Stdout returns the reader for the scripting channel reply stream.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stderr returns whatever the subprocess has written to standard error.
func (p *Process) Stderr() string { return p.stderr.String() }

// Terminate shuts the subprocess down: Quit on the input stream, a bounded
// wait for exit, then a hard kill. Idempotent; the process is not running
// when it returns.
func (p *Process) Terminate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminated {
		return
	}
	p.terminated = true

	if p.Running() {
		// Graceful path: s3270 exits on Quit.
		_, _ = io.WriteString(p.stdin, "Quit\n")

		select {
		case <-p.done:
		case <-time.After(p.quitGrace):
			slog.Warn("emulator did not exit on Quit, killing",
				"host", p.Host, "port", p.Port, "pid", p.cmd.Process.Pid)
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	}

	_ = p.stdin.Close()
}
