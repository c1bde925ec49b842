package emulator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript drops an executable shell script standing in for s3270.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s3270")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

// surviving script: loops on stdin and exits cleanly on Quit, like the real
// emulator in scripting mode.
const survivingBody = `while read line; do
  if [ "$line" = "Quit" ]; then exit 0; fi
done`

func TestStartProcess_ImmediateExitCapturesStderr(t *testing.T) {
	exe := writeScript(t, `echo "Connect failed: Connection refused" >&2; exit 1`)

	_, err := startProcess(exe, "badhost", 23, 300*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Connection refused")
}

func TestStartProcess_SurvivesGrace(t *testing.T) {
	exe := writeScript(t, survivingBody)

	p, err := startProcess(exe, "localhost", 3270, 100*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, p.Running())

	p.Terminate()
	assert.False(t, p.Running())
}

func TestTerminate_Idempotent(t *testing.T) {
	exe := writeScript(t, survivingBody)

	p, err := startProcess(exe, "localhost", 3270, 100*time.Millisecond)
	require.NoError(t, err)

	p.Terminate()
	assert.NotPanics(t, p.Terminate)
	assert.False(t, p.Running())
}

func TestTerminate_ForceKillsStuckProcess(t *testing.T) {
	// Ignores Quit entirely; Terminate must fall through to Kill.
	exe := writeScript(t, `trap "" TERM; while true; do sleep 1; done`)

	p, err := startProcess(exe, "localhost", 3270, 100*time.Millisecond)
	require.NoError(t, err)
	p.quitGrace = 200 * time.Millisecond

	done := make(chan struct{})
	go func() {
		p.Terminate()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Terminate did not return after force kill")
	}
	assert.False(t, p.Running())
}
