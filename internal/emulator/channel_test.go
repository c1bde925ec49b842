package emulator

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeTransport feeds canned reply lines through an in-memory pipe and
// consumes everything written to stdin.
type pipeTransport struct {
	running atomic.Bool

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
}

func newPipeTransport() *pipeTransport {
	t := &pipeTransport{}
	t.stdinR, t.stdinW = io.Pipe()
	t.stdoutR, t.stdoutW = io.Pipe()
	t.running.Store(true)
	return t
}

func (t *pipeTransport) Running() bool     { return t.running.Load() }
func (t *pipeTransport) Stdin() io.Writer  { return t.stdinW }
func (t *pipeTransport) Stdout() io.Reader { return t.stdoutR }

// reply writes raw lines to the fake subprocess stdout.
func (t *pipeTransport) reply(lines ...string) {
	for _, l := range lines {
		_, _ = t.stdoutW.Write([]byte(l + "\n"))
	}
}

// drainStdin consumes command writes so the pipe never blocks the channel.
func (t *pipeTransport) drainStdin() {
	buf := make([]byte, 4096)
	for {
		if _, err := t.stdinR.Read(buf); err != nil {
			return
		}
	}
}

func (t *pipeTransport) close() {
	t.running.Store(false)
	_ = t.stdoutW.Close()
	_ = t.stdinR.Close()
}

func TestChannel_OkTerminatorCollectsData(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()
	defer tr.close()

	ch := NewChannel(tr)
	go tr.reply("data: READY", "data: ***", "U F U C(pub400.com)", "ok")

	res := ch.Send(context.Background(), CmdReadScreen, time.Second)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []string{"READY", "***", "U F U C(pub400.com)"}, res.Data)
	assert.True(t, res.OK())
	assert.NoError(t, res.Err())
}

func TestChannel_ErrorTerminator(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()
	defer tr.close()

	ch := NewChannel(tr)
	go tr.reply("data: Unknown action", "error")

	res := ch.Send(context.Background(), "Bogus", time.Second)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "Unknown action", res.Text())
	assert.Error(t, res.Err())
}

func TestChannel_Timeout(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()
	defer tr.close()

	ch := NewChannel(tr)

	start := time.Now()
	res := ch.Send(context.Background(), CmdEnter, 50*time.Millisecond)
	assert.Equal(t, StatusTimeout, res.Status)
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, res.Err(), ErrCommandTimeout)
}

func TestChannel_StaleReplyDrainedAfterTimeout(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()
	defer tr.close()

	ch := NewChannel(tr)

	// First command times out; its reply arrives late.
	res := ch.Send(context.Background(), CmdReadScreen, 20*time.Millisecond)
	require.Equal(t, StatusTimeout, res.Status)

	tr.reply("data: LATE SCREEN", "ok")
	time.Sleep(50 * time.Millisecond) // let the pump buffer the stale reply

	// Second command must see its own reply, not the stale one.
	go func() {
		time.Sleep(20 * time.Millisecond)
		tr.reply("data: FRESH SCREEN", "ok")
	}()
	res = ch.Send(context.Background(), CmdReadScreen, time.Second)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "FRESH SCREEN", res.Text())
}

func TestChannel_StaleTerminatorCaughtInFlight(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()
	defer tr.close()

	ch := NewChannel(tr)

	res := ch.Send(context.Background(), CmdReadScreen, 20*time.Millisecond)
	require.Equal(t, StatusTimeout, res.Status)

	// The late reply lands only after the next send has started draining.
	go func() {
		time.Sleep(50 * time.Millisecond)
		tr.reply("data: LATE SCREEN", "ok")
		time.Sleep(50 * time.Millisecond)
		tr.reply("data: FRESH SCREEN", "ok")
	}()
	res = ch.Send(context.Background(), CmdReadScreen, time.Second)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "FRESH SCREEN", res.Text())
}

func TestChannel_ConnectionLost(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()

	ch := NewChannel(tr)
	tr.close()

	res := ch.Send(context.Background(), CmdReadScreen, time.Second)
	assert.Equal(t, StatusConnectionLost, res.Status)
	assert.ErrorIs(t, res.Err(), ErrConnectionLost)
}

func TestChannel_EOFMidCommand(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()

	ch := NewChannel(tr)
	go func() {
		tr.reply("data: partial")
		_ = tr.stdoutW.Close()
	}()

	res := ch.Send(context.Background(), CmdReadScreen, time.Second)
	assert.Equal(t, StatusConnectionLost, res.Status)
}

func TestChannel_ContextCancel(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()
	defer tr.close()

	ch := NewChannel(tr)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := ch.Send(ctx, CmdReadScreen, 10*time.Second)
	assert.Equal(t, StatusTimeout, res.Status)
}

func TestChannel_OnCommandHook(t *testing.T) {
	tr := newPipeTransport()
	go tr.drainStdin()
	defer tr.close()

	ch := NewChannel(tr)
	var statuses []Status
	ch.OnCommand = func(status Status, elapsed time.Duration) {
		statuses = append(statuses, status)
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
	}

	go tr.reply("ok")
	res := ch.Send(context.Background(), CmdEnter, time.Second)
	require.Equal(t, StatusOK, res.Status)

	res = ch.Send(context.Background(), CmdReadScreen, 20*time.Millisecond)
	require.Equal(t, StatusTimeout, res.Status)

	assert.Equal(t, []Status{StatusOK, StatusTimeout}, statuses)
}

func TestCommandVerb_StripsPayload(t *testing.T) {
	assert.Equal(t, "String", commandVerb(`String("secret hunter2")`))
	assert.Equal(t, "Ascii", commandVerb("Ascii"))
	assert.Equal(t, "PF", commandVerb("PF(3)"))
}
