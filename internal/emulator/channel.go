package emulator

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Sentinel errors for the channel failure taxonomy.
var (
	ErrConnectionLost = errors.New("emulator connection lost")
	ErrCommandTimeout = errors.New("emulator command timeout")
)

// Status classifies one command round-trip.
type Status string

const (
	StatusOK             Status = "ok"
	StatusError          Status = "error"
	StatusTimeout        Status = "timeout"
	StatusConnectionLost Status = "connection_lost"
)

// Result is the outcome of one command round-trip on the scripting channel.
type Result struct {
	Status Status
	Data   []string
}

// OK reports whether the command terminated with the success line.
func (r Result) OK() bool { return r.Status == StatusOK }

// Text joins the collected data lines.
func (r Result) Text() string { return strings.Join(r.Data, "\n") }

// Err maps a non-ok status to its sentinel error, nil otherwise.
func (r Result) Err() error {
	switch r.Status {
	case StatusTimeout:
		return ErrCommandTimeout
	case StatusConnectionLost:
		return ErrConnectionLost
	case StatusError:
		return fmt.Errorf("emulator command failed: %s", r.Text())
	default:
		return nil
	}
}

// transport is the slice of Process the channel needs. Tests substitute an
// in-memory pipe pair.
type transport interface {
	Running() bool
	Stdin() io.Writer
	Stdout() io.Reader
}

// Channel is the only path for talking to the subprocess. It serializes
// commands (the protocol has no correlation ids) and parses the reply
// grammar: a line starting with "ok" terminates success, "error" terminates
// failure, "data:" lines carry payload with the marker stripped, anything
// else is payload verbatim.
type Channel struct {
	proc transport

	mu    sync.Mutex
	lines chan string

	// stale is set when a command timed out with its reply still owed; the
	// next send drains whatever arrived late before writing.
	stale bool

	// OnCommand, when set, observes every completed round-trip (metrics).
	// Assign before the first Send.
	OnCommand func(status Status, elapsed time.Duration)
}

// NewChannel wires a channel onto a started process and begins pumping its
// stdout.
func NewChannel(p transport) *Channel {
	c := &Channel{
		proc:  p,
		lines: make(chan string, 256),
	}
	go c.pump()
	return c
}

// pump moves stdout lines into the buffered channel until EOF. A blocking
// read lives only here; Send selects on the channel with a deadline, so no
// caller ever blocks past its timeout.
func (c *Channel) pump() {
	scanner := bufio.NewScanner(c.proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		c.lines <- strings.TrimSpace(scanner.Text())
	}
	close(c.lines)
}

// Send writes one command line and collects its reply, failing with a timeout
// result if no terminator arrives in time and a connection-lost result if the
// subprocess is gone. The subprocess is left running after a timeout; only
// its own exit makes the channel dead.
func (c *Channel) Send(ctx context.Context, command string, timeout time.Duration) Result {
	start := time.Now()
	res := c.send(ctx, command, timeout)
	if c.OnCommand != nil {
		c.OnCommand(res.Status, time.Since(start))
	}
	return res
}

func (c *Channel) send(ctx context.Context, command string, timeout time.Duration) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.proc.Running() {
		return Result{Status: StatusConnectionLost, Data: []string{"Connection lost"}}
	}

	c.drainStale()

	if _, err := io.WriteString(c.proc.Stdin(), command+"\n"); err != nil {
		return Result{Status: StatusConnectionLost, Data: []string{"Connection lost"}}
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	var data []string
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return Result{Status: StatusConnectionLost, Data: []string{"Connection lost"}}
			}
			switch {
			case line == "":
				// skip blank lines
			case strings.HasPrefix(line, "ok"):
				return Result{Status: StatusOK, Data: data}
			case strings.HasPrefix(line, "error"):
				return Result{Status: StatusError, Data: data}
			case strings.HasPrefix(line, "data:"):
				data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			default:
				data = append(data, line)
			}
		case <-deadline.C:
			c.stale = true
			slog.Debug("emulator command timed out", "command", commandVerb(command), "timeout", timeout)
			return Result{Status: StatusTimeout, Data: []string{fmt.Sprintf("Command timeout after %s", timeout)}}
		case <-ctx.Done():
			c.stale = true
			return Result{Status: StatusTimeout, Data: []string{ctx.Err().Error()}}
		}
	}
}

// staleDrainGrace bounds how long a send waits for a timed-out predecessor's
// terminator before giving up on the drain.
const staleDrainGrace = 250 * time.Millisecond

// drainStale discards lines left over from a timed-out exchange so a retried
// command parses its own reply, not its predecessor's. Buffered lines are
// consumed immediately; the grace window then catches a terminator still in
// flight. A reply landing after the window can still truncate the next parse,
// which surfaces as one more timeout and resets the drain.
func (c *Channel) drainStale() {
	if !c.stale {
		return
	}
	grace := time.NewTimer(staleDrainGrace)
	defer grace.Stop()
	for {
		select {
		case line, ok := <-c.lines:
			if !ok {
				return
			}
			if strings.HasPrefix(line, "ok") || strings.HasPrefix(line, "error") {
				c.stale = false
				return
			}
		case <-grace.C:
			c.stale = false
			return
		}
	}
}

// commandVerb strips String() payloads out of log lines so credentials typed
// into the screen never reach the logs.
func commandVerb(command string) string {
	if i := strings.IndexByte(command, '('); i > 0 {
		return command[:i]
	}
	return command
}
