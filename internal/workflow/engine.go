// Package workflow composes emulator commands, screen stabilization, and
// keyword classification into the multi-step mainframe operations: login,
// logout, command entry, JCL submission, job polling, output retrieval, and
// file transfer.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tn3270d/internal/emulator"
	"tn3270d/internal/screen"
)

// LoginVariant selects the login/logout sequence for a target system.
type LoginVariant string

const (
	VariantStandard LoginVariant = "standard"
	VariantTSO      LoginVariant = "tso"
)

// AmbiguousLoginPolicy decides what an unclassifiable post-login screen
// means. The historical behavior is "assume success if no explicit error";
// it is a real correctness risk (a hung screen reads as a successful login),
// so it is a named, overridable option rather than something baked into the
// classifier.
type AmbiguousLoginPolicy int

const (
	AmbiguousMeansSuccess AmbiguousLoginPolicy = iota
	AmbiguousMeansFailure
)

// Channel is the command channel slice the engine drives.
type Channel interface {
	Send(ctx context.Context, command string, timeout time.Duration) emulator.Result
}

// Timing groups every delay and timeout knob so tests can shrink them.
type Timing struct {
	SettleShort  time.Duration // after positioning keystrokes
	SettleMedium time.Duration // after typing a field
	SettleLong   time.Duration // after submitting a form

	CommandTimeout  time.Duration // per channel command
	StabilizeWait   time.Duration // generic wait-for-stable bound
	PollInterval    time.Duration // stabilizer poll spacing
	TransferTimeout time.Duration // file transfers are data-size dependent

	// The TSO ladder climbs through screens that take progressively longer
	// to render; the final ISPF load is the slowest.
	TSOStepWait  time.Duration
	TSOFinalWait time.Duration
}

// DefaultTiming mirrors the pacing the bridge has always used against real
// hosts.
func DefaultTiming() Timing {
	return Timing{
		SettleShort:     500 * time.Millisecond,
		SettleMedium:    time.Second,
		SettleLong:      2 * time.Second,
		CommandTimeout:  10 * time.Second,
		StabilizeWait:   10 * time.Second,
		PollInterval:    500 * time.Millisecond,
		TransferTimeout: 5 * time.Minute,
		TSOStepWait:     15 * time.Second,
		TSOFinalWait:    30 * time.Second,
	}
}

// Engine runs workflows against one session's emulator process. All calls on
// an Engine must be externally serialized (the registry holds a per-session
// lock); the engine itself assumes single-threaded use.
type Engine struct {
	ch    Channel
	stab  *screen.Stabilizer
	rules *screen.Rules

	timing Timing

	// LoginPolicy applies when the post-login screen classifies ambiguous.
	LoginPolicy AmbiguousLoginPolicy

	// OutputDir receives retrieved job output files.
	OutputDir string

	// OnWorkflow, when set, observes every workflow completion (metrics).
	OnWorkflow func(operation, outcome string)

	connected bool
	loggedIn  bool
	variant   LoginVariant
}

// NewEngine builds an engine over a live channel. rules may be nil, in which
// case the embedded defaults apply.
func NewEngine(ch Channel, rules *screen.Rules) *Engine {
	if rules == nil {
		rules, _ = screen.DefaultRules()
	}
	stab := screen.NewStabilizer(ch)
	e := &Engine{
		ch:        ch,
		stab:      stab,
		rules:     rules,
		timing:    DefaultTiming(),
		OutputDir: "job_output",
		connected: true,
	}
	stab.ReadTimeout = e.timing.CommandTimeout
	return e
}

// SetTiming replaces the pacing knobs (tests shrink them).
func (e *Engine) SetTiming(t Timing) {
	e.timing = t
	e.stab.ReadTimeout = t.CommandTimeout
}

// Stabilizer exposes the engine's stabilizer for callers that stream screens.
func (e *Engine) Stabilizer() *screen.Stabilizer { return e.stab }

// Connected reports the session's connection flag.
func (e *Engine) Connected() bool { return e.connected }

// LoggedIn reports the session's login flag.
func (e *Engine) LoggedIn() bool { return e.loggedIn }

// Variant reports the login variant recorded by the last successful login.
func (e *Engine) Variant() LoginVariant { return e.variant }

// MarkDisconnected clears both flags; called when the process goes away.
func (e *Engine) MarkDisconnected() {
	e.connected = false
	e.loggedIn = false
}

func (e *Engine) report(operation, outcome string) {
	if e.OnWorkflow != nil {
		e.OnWorkflow(operation, outcome)
	}
}

// settle sleeps for a fixed pacing delay, honoring cancellation. Reserved for
// the moments right after a keystroke where the protocol offers no observable
// completion signal; everything else uses the stabilizer.
func (e *Engine) settle(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// exec runs one channel command with the standard timeout.
func (e *Engine) exec(ctx context.Context, command string) emulator.Result {
	return e.ch.Send(ctx, command, e.timing.CommandTimeout)
}

// readScreen fetches the current display text.
func (e *Engine) readScreen(ctx context.Context) string {
	text, _ := e.stab.Read(ctx)
	return text
}

// CommandResult reports a raw command or key press.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Command string `json:"command,omitempty"`
	Screen  string `json:"screen_content,omitempty"`
}

// GetScreen returns the current display text.
func (e *Engine) GetScreen(ctx context.Context) (string, error) {
	if !e.connected {
		return "", fmt.Errorf("not connected")
	}
	return e.stab.Read(ctx)
}

// SendCommand types literal text and presses Enter, then captures the
// resulting screen. Subprocess-side errors surface as text on the captured
// screen, not as a failed call.
func (e *Engine) SendCommand(ctx context.Context, text string) CommandResult {
	if !e.connected {
		return CommandResult{Success: false, Message: "Not connected to mainframe"}
	}

	e.exec(ctx, emulator.StringCommand(text))
	e.settle(ctx, e.timing.SettleShort)
	e.exec(ctx, emulator.CmdEnter)
	e.settle(ctx, e.timing.SettleMedium)

	screenText := e.readScreen(ctx)
	e.report("command", "success")
	return CommandResult{
		Success: true,
		Message: "Command sent successfully",
		Command: text,
		Screen:  screenText,
	}
}

// SendFunctionKey presses a named key (ENTER, CLEAR, TAB, PF1..PF24,
// PA1..PA3) and captures the resulting screen.
func (e *Engine) SendFunctionKey(ctx context.Context, key string) CommandResult {
	if !e.connected {
		return CommandResult{Success: false, Message: "Not connected to mainframe"}
	}

	action, ok := emulator.KeyCommand(key)
	if !ok {
		return CommandResult{Success: false, Message: fmt.Sprintf("Unknown function key: %s", key)}
	}

	e.exec(ctx, action)
	e.settle(ctx, e.timing.SettleMedium)

	screenText := e.readScreen(ctx)
	e.report("key", "success")
	return CommandResult{
		Success: true,
		Message: fmt.Sprintf("Function key %s sent", key),
		Command: key,
		Screen:  screenText,
	}
}

// ensureReady drives the display back to the command-ready prompt with up to
// maxPresses PF3 presses. Returns the last screen either way.
func (e *Engine) ensureReady(ctx context.Context, maxPresses int) (bool, string) {
	text := e.readScreen(ctx)
	for i := 0; i <= maxPresses; i++ {
		if screen.ContainsAny(upper(text), []string{e.rules.ReadyPrompt}) {
			return true, text
		}
		if i == maxPresses {
			break
		}
		e.exec(ctx, "PF(3)")
		_, text, _ = e.stab.WaitUntilStable(ctx, e.timing.StabilizeWait, e.timing.PollInterval)
	}
	slog.Debug("command-ready prompt not reached", "presses", maxPresses)
	return false, text
}

func upper(s string) string { return strings.ToUpper(s) }
