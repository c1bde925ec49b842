// Package screen turns raw emulator display text into decisions: it waits for
// the display to settle and classifies its content with keyword rule tables.
package screen

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tn3270d/internal/emulator"
)

// Reader is the command channel slice the stabilizer polls through.
type Reader interface {
	Send(ctx context.Context, command string, timeout time.Duration) emulator.Result
}

// Stabilizer polls the emulator display until it stops changing. Stability is
// the only completion signal the scripting protocol offers: the host is done
// responding when the screen repeats.
type Stabilizer struct {
	ch Reader

	// ReadTimeout bounds each individual screen read.
	ReadTimeout time.Duration

	// OnPoll, when set, is invoked once per screen read (metrics hook).
	OnPoll func()
}

// NewStabilizer wraps a command channel.
func NewStabilizer(ch Reader) *Stabilizer {
	return &Stabilizer{ch: ch, ReadTimeout: 10 * time.Second}
}

// Read fetches the current screen text once.
func (s *Stabilizer) Read(ctx context.Context) (string, error) {
	if s.OnPoll != nil {
		s.OnPoll()
	}
	res := s.ch.Send(ctx, emulator.CmdReadScreen, s.ReadTimeout)
	if err := res.Err(); err != nil {
		return res.Text(), err
	}
	return res.Text(), nil
}

// WaitUntilStable polls until two consecutive reads return identical text or
// the timeout elapses. A single repeat is required (not merely a non-change
// since the first read): intermediate host rendering can transiently repeat,
// so the previous poll's text is the only baseline. On timeout the last-seen
// text is returned with stabilized=false; callers treat that as degraded, not
// fatal.
func (s *Stabilizer) WaitUntilStable(ctx context.Context, timeout, poll time.Duration) (bool, string, time.Duration) {
	start := time.Now()
	deadline := start.Add(timeout)

	var prev string
	havePrev := false

	for {
		text, err := s.Read(ctx)
		if err != nil {
			// A dead channel never stabilizes; report what we had.
			slog.Debug("screen read failed during stabilization", "error", err)
			return false, text, time.Since(start)
		}

		if havePrev && text == prev {
			return true, text, time.Since(start)
		}
		prev = text
		havePrev = true

		if time.Now().After(deadline) {
			return false, prev, time.Since(start)
		}

		select {
		case <-ctx.Done():
			return false, prev, time.Since(start)
		case <-time.After(poll):
		}
	}
}

// WaitForContent polls until the expected substring appears or the timeout
// elapses. Matching is case-insensitive unless caseSensitive is set.
func (s *Stabilizer) WaitForContent(ctx context.Context, want string, timeout, poll time.Duration, caseSensitive bool) (bool, string, time.Duration) {
	start := time.Now()
	deadline := start.Add(timeout)

	needle := want
	if !caseSensitive {
		needle = strings.ToUpper(want)
	}

	var last string
	for {
		text, err := s.Read(ctx)
		if err != nil {
			return false, text, time.Since(start)
		}
		last = text

		haystack := text
		if !caseSensitive {
			haystack = strings.ToUpper(text)
		}
		if strings.Contains(haystack, needle) {
			return true, text, time.Since(start)
		}

		if time.Now().After(deadline) {
			return false, last, time.Since(start)
		}

		select {
		case <-ctx.Done():
			return false, last, time.Since(start)
		case <-time.After(poll):
		}
	}
}
