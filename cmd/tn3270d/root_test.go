package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	assert.Contains(t, out, "tn3270d")
}

func TestDoctorReportsMissingEmulator(t *testing.T) {
	viper.Set("s3270_path", filepath.Join(t.TempDir(), "missing-s3270"))
	t.Cleanup(func() { viper.Set("s3270_path", "") })

	out := execute(t, "doctor")
	assert.Contains(t, out, "NOT FOUND")
	assert.Contains(t, out, "listen_addr")
}
