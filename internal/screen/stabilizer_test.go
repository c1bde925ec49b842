package screen

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tn3270d/internal/emulator"
)

// scriptedReader returns a canned sequence of screens, repeating the last one
// once exhausted.
type scriptedReader struct {
	screens []string
	calls   int
	status  emulator.Status
}

func (r *scriptedReader) Send(ctx context.Context, command string, timeout time.Duration) emulator.Result {
	idx := r.calls
	if idx >= len(r.screens) {
		idx = len(r.screens) - 1
	}
	r.calls++
	status := r.status
	if status == "" {
		status = emulator.StatusOK
	}
	return emulator.Result{Status: status, Data: []string{r.screens[idx]}}
}

func fastStabilizer(r Reader) *Stabilizer {
	s := NewStabilizer(r)
	s.ReadTimeout = time.Second
	return s
}

func TestWaitUntilStable_ConvergesOnSecondRead(t *testing.T) {
	r := &scriptedReader{screens: []string{"A", "A"}}
	s := fastStabilizer(r)

	stable, text, _ := s.WaitUntilStable(context.Background(), time.Second, time.Millisecond)
	assert.True(t, stable)
	assert.Equal(t, "A", text)
	assert.Equal(t, 2, r.calls)
}

func TestWaitUntilStable_ConvergesOnThirdRead(t *testing.T) {
	r := &scriptedReader{screens: []string{"A", "B", "B"}}
	s := fastStabilizer(r)

	stable, text, _ := s.WaitUntilStable(context.Background(), time.Second, time.Millisecond)
	assert.True(t, stable)
	assert.Equal(t, "B", text)
	assert.Equal(t, 3, r.calls)
}

func TestWaitUntilStable_TimeoutReturnsLastSeen(t *testing.T) {
	// Every read differs; never stabilizes.
	screens := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		screens = append(screens, time.Now().Add(time.Duration(i)).String())
	}
	r := &scriptedReader{screens: screens}
	s := fastStabilizer(r)

	stable, text, elapsed := s.WaitUntilStable(context.Background(), 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, stable)
	assert.NotEmpty(t, text)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestWaitUntilStable_ChannelFailureReportsDegraded(t *testing.T) {
	r := &scriptedReader{screens: []string{"Connection lost"}, status: emulator.StatusConnectionLost}
	s := fastStabilizer(r)

	stable, _, _ := s.WaitUntilStable(context.Background(), time.Second, time.Millisecond)
	assert.False(t, stable)
	assert.Equal(t, 1, r.calls, "a dead channel should not be re-polled")
}

func TestWaitForContent_CaseInsensitiveByDefault(t *testing.T) {
	r := &scriptedReader{screens: []string{"loading...", "ISPF Primary Option Menu"}}
	s := fastStabilizer(r)

	found, text, _ := s.WaitForContent(context.Background(), "ispf", time.Second, time.Millisecond, false)
	assert.True(t, found)
	assert.Contains(t, text, "ISPF")
}

func TestWaitForContent_CaseSensitiveMiss(t *testing.T) {
	r := &scriptedReader{screens: []string{"ISPF Primary Option Menu"}}
	s := fastStabilizer(r)

	found, _, _ := s.WaitForContent(context.Background(), "ispf", 30*time.Millisecond, 5*time.Millisecond, true)
	assert.False(t, found)
}

func TestStabilizer_OnPollHook(t *testing.T) {
	r := &scriptedReader{screens: []string{"A", "A"}}
	s := fastStabilizer(r)

	polls := 0
	s.OnPoll = func() { polls++ }

	_, _, _ = s.WaitUntilStable(context.Background(), time.Second, time.Millisecond)
	require.Equal(t, 2, polls)
}
