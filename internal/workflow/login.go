package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tn3270d/internal/emulator"
	"tn3270d/internal/screen"
)

// LoginResult reports a login or logout attempt.
type LoginResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Screen  string `json:"screen_content,omitempty"`
}

// Login authenticates against the host. The standard variant fills the
// username/password fields on the current screen; the tso variant climbs the
// full TSO logon ladder ending in ISPF. On success or an ambiguous-but-
// accepted screen the session is marked logged in and the variant recorded
// so logout can mirror it.
func (e *Engine) Login(ctx context.Context, username, password string, variant LoginVariant) LoginResult {
	if !e.connected {
		return LoginResult{Success: false, Message: "Not connected to mainframe"}
	}
	if variant == "" {
		variant = VariantStandard
	}

	var finalScreen string
	switch variant {
	case VariantTSO:
		finalScreen = e.loginTSO(ctx, username, password)
	default:
		variant = VariantStandard
		finalScreen = e.loginStandard(ctx, username, password)
	}

	outcome := screen.Classify(finalScreen, e.rules.Login)

	switch outcome {
	case screen.OutcomeSuccess:
		e.loggedIn = true
		e.variant = variant
		e.report("login", "success")
		return LoginResult{Success: true, Message: "Login successful", Screen: finalScreen}
	case screen.OutcomeFailure:
		e.report("login", "failure")
		return LoginResult{Success: false, Message: "Login failed - invalid credentials", Screen: finalScreen}
	default:
		if e.LoginPolicy == AmbiguousMeansSuccess {
			// Historical default: assume success if no explicit error.
			e.loggedIn = true
			e.variant = variant
			e.report("login", "ambiguous_success")
			return LoginResult{Success: true, Message: "Login completed", Screen: finalScreen}
		}
		e.report("login", "ambiguous_failure")
		return LoginResult{Success: false, Message: "Login outcome unrecognized", Screen: finalScreen}
	}
}

// loginStandard fills the two-field login form in place: Clear, username,
// Tab, password, Enter. Fixed settle delays pace the keystrokes; the form
// offers no completion signal between them.
func (e *Engine) loginStandard(ctx context.Context, username, password string) string {
	e.exec(ctx, emulator.CmdClear)
	e.settle(ctx, e.timing.SettleShort)

	e.exec(ctx, emulator.StringCommand(username))
	e.settle(ctx, e.timing.SettleShort)

	e.exec(ctx, emulator.CmdTab)
	e.settle(ctx, e.timing.SettleShort)

	e.exec(ctx, emulator.StringCommand(password))
	e.settle(ctx, e.timing.SettleShort)

	e.exec(ctx, emulator.CmdEnter)
	e.settle(ctx, e.timing.SettleLong)

	return e.readScreen(ctx)
}

// loginTSO walks the interactive TSO logon: TSO, username, password, two
// acknowledging Enters for the logon messages, then ISPF. Each rung waits
// for the screen to stabilize, with the final ISPF load given the longest
// bound.
func (e *Engine) loginTSO(ctx context.Context, username, password string) string {
	type rung struct {
		action string // channel command, empty means wait only
		wait   time.Duration
	}

	steps := []rung{
		{"", e.timing.StabilizeWait},
		{emulator.StringCommand("TSO"), 0},
		{emulator.CmdEnter, e.timing.StabilizeWait},
		{emulator.StringCommand(username), 0},
		{emulator.CmdEnter, e.timing.TSOStepWait},
		{emulator.StringCommand(password), 0},
		{emulator.CmdEnter, e.timing.TSOStepWait},
		{emulator.CmdEnter, e.timing.TSOStepWait},
		{emulator.CmdEnter, e.timing.TSOStepWait},
		{emulator.StringCommand("ISPF"), 0},
		{emulator.CmdEnter, e.timing.TSOFinalWait},
	}

	var text string
	for _, s := range steps {
		if s.action != "" {
			e.exec(ctx, s.action)
		}
		if s.wait > 0 {
			var stable bool
			stable, text, _ = e.stab.WaitUntilStable(ctx, s.wait, e.timing.PollInterval)
			if !stable {
				slog.Debug("tso logon step did not stabilize", "wait", s.wait)
			}
		}
	}
	return text
}

// Logout ends the session's login. Only the tso variant performs an active
// sequence (PF3 back to the READY prompt, then LOGOFF); any other variant
// just clears the flag without touching the subprocess.
func (e *Engine) Logout(ctx context.Context) LoginResult {
	if !e.connected {
		return LoginResult{Success: false, Message: "Not connected to mainframe"}
	}
	if !e.loggedIn {
		return LoginResult{Success: true, Message: "Not logged in"}
	}

	if e.variant != VariantTSO {
		e.loggedIn = false
		e.report("logout", "success")
		return LoginResult{Success: true, Message: "Logged out"}
	}

	e.exec(ctx, "PF(3)")
	found, text, _ := e.stab.WaitForContent(ctx, e.rules.ReadyPrompt, e.timing.StabilizeWait, e.timing.PollInterval, false)
	if !found {
		e.report("logout", "failure")
		return LoginResult{
			Success: false,
			Message: fmt.Sprintf("Could not reach %s prompt for logoff", e.rules.ReadyPrompt),
			Screen:  text,
		}
	}

	e.exec(ctx, emulator.StringCommand("LOGOFF"))
	e.exec(ctx, emulator.CmdEnter)
	e.settle(ctx, e.timing.SettleMedium)

	e.loggedIn = false
	e.report("logout", "success")
	return LoginResult{Success: true, Message: "Logged off", Screen: e.readScreen(ctx)}
}
