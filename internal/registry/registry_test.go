package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmulator drops a shell script that behaves like s3270 in scripting
// mode: loops on stdin, exits cleanly on Quit.
func fakeEmulator(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "s3270")
	script := `#!/bin/sh
while read line; do
  if [ "$line" = "Quit" ]; then exit 0; fi
  echo "data: FAKE SCREEN"
  echo "ok"
done`
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestCreateGetRemove(t *testing.T) {
	var counts []int
	r := New(Options{
		TTL:           time.Hour,
		S3270Path:     fakeEmulator(t),
		OnActiveCount: func(n int) { counts = append(counts, n) },
	})
	defer r.Close()

	sess, err := r.Create("mainframe.example.com", 23)
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	assert.True(t, sess.Process.Running())
	assert.True(t, sess.Engine.Connected())
	assert.Equal(t, 1, r.Count())

	got, ok := r.Get(sess.ID)
	require.True(t, ok)
	assert.Same(t, sess, got)

	_, ok = r.Get("no-such-session")
	assert.False(t, ok)

	require.True(t, r.Remove(sess.ID))
	assert.False(t, sess.Process.Running())
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, []int{1, 0}, counts)
}

func TestRemoveUnknownIDIsIdempotent(t *testing.T) {
	r := New(Options{S3270Path: fakeEmulator(t)})
	defer r.Close()

	assert.False(t, r.Remove("gone"))

	sess, err := r.Create("mainframe.example.com", 23)
	require.NoError(t, err)

	assert.True(t, r.Remove(sess.ID))
	assert.False(t, r.Remove(sess.ID))
}

func TestGetMarksDeadProcessDisconnected(t *testing.T) {
	r := New(Options{S3270Path: fakeEmulator(t)})
	defer r.Close()

	sess, err := r.Create("mainframe.example.com", 23)
	require.NoError(t, err)

	sess.Process.Terminate()

	got, ok := r.Get(sess.ID)
	require.True(t, ok)
	assert.False(t, got.Engine.Connected())

	// Still registered; the caller decides when to disconnect.
	assert.Equal(t, 1, r.Count())
}

func TestSweepExpired(t *testing.T) {
	expired := 0
	r := New(Options{
		TTL:       50 * time.Millisecond,
		S3270Path: fakeEmulator(t),
		OnExpired: func() { expired++ },
	})
	defer r.Close()

	sess, err := r.Create("mainframe.example.com", 23)
	require.NoError(t, err)

	// Fresh sessions survive a sweep.
	assert.Equal(t, 0, r.SweepExpired())
	assert.Equal(t, 1, r.Count())

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, 1, r.SweepExpired())
	assert.Equal(t, 0, r.Count())
	assert.Equal(t, 1, expired)
	assert.False(t, sess.Process.Running())
}

func TestCreateFailsWithoutExecutable(t *testing.T) {
	r := New(Options{S3270Path: filepath.Join(t.TempDir(), "missing")})
	defer r.Close()

	_, err := r.Create("mainframe.example.com", 23)
	require.Error(t, err)
	assert.Equal(t, 0, r.Count())
}

func TestBusySessionDoesNotBlockOthers(t *testing.T) {
	r := New(Options{
		TTL:       time.Hour,
		S3270Path: fakeEmulator(t),
	})
	defer r.Close()

	busy, err := r.Create("mainframe.example.com", 23)
	require.NoError(t, err)

	// A long workflow (a transfer can run for minutes) holds the session
	// lock the way a handler does.
	busy.Lock()
	defer busy.Unlock()

	listed := make(chan []Info, 1)
	go func() { listed <- r.List() }()
	select {
	case infos := <-listed:
		assert.Len(t, infos, 1)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("List blocked behind a busy session")
	}

	assert.Equal(t, 0, r.SweepExpired())

	created := make(chan error, 1)
	go func() {
		_, err := r.Create("mainframe.example.com", 23)
		created <- err
	}()
	select {
	case err := <-created:
		require.NoError(t, err)
		assert.Equal(t, 2, r.Count())
	case <-time.After(5 * time.Second):
		t.Fatal("Create blocked behind a busy session")
	}
}

func TestListSnapshotsSessions(t *testing.T) {
	r := New(Options{S3270Path: fakeEmulator(t)})
	defer r.Close()

	sess, err := r.Create("mainframe.example.com", 3270)
	require.NoError(t, err)
	sess.LastJobID = "JOB00042"

	infos := r.List()
	require.Len(t, infos, 1)
	assert.Equal(t, sess.ID, infos[0].ID)
	assert.Equal(t, "mainframe.example.com", infos[0].Host)
	assert.Equal(t, 3270, infos[0].Port)
	assert.True(t, infos[0].Connected)
	assert.False(t, infos[0].LoggedIn)
	assert.Equal(t, "JOB00042", infos[0].LastJobID)
}
