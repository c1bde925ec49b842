// Package emulator manages the external s3270 process for one session and the
// line-oriented scripting channel to it. s3270 owns the 3270 wire protocol and
// EBCDIC translation; everything here treats it as an opaque collaborator.
package emulator

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// Profile selects the s3270 launch parameters for a target system.
type Profile struct {
	Name           string
	Model          string
	CodePage       string
	ConnectTimeout time.Duration
}

var (
	// legacyProfile matches Hercules/TK5 style targets that need the older
	// terminal model and an explicit EBCDIC code page.
	legacyProfile = Profile{
		Name:           "legacy",
		Model:          "3278-2",
		CodePage:       "cp037",
		ConnectTimeout: 30 * time.Second,
	}

	// standardProfile covers modern hosts such as pub400.
	standardProfile = Profile{
		Name:           "standard",
		Model:          "3279-4",
		ConnectTimeout: 10 * time.Second,
	}
)

// ProfileFor picks the launch profile for a target host/port.
func ProfileFor(host string, port int) Profile {
	if host == "localhost" && port == 3270 {
		return legacyProfile
	}
	return standardProfile
}

// Args builds the s3270 argument list for this profile. The -script flag puts
// the emulator into the stdin/stdout scripting protocol this package speaks.
func (p Profile) Args(host string, port int) []string {
	args := []string{"-model", p.Model, "-script"}
	if p.ConnectTimeout > 0 {
		args = append(args, "-connecttimeout", strconv.Itoa(int(p.ConnectTimeout.Seconds())))
	}
	if p.CodePage != "" {
		args = append(args, "-codepage", p.CodePage)
	}
	return append(args, fmt.Sprintf("%s:%d", host, port))
}

// executablePaths are probed in order when no explicit path is configured.
var executablePaths = []string{
	"/opt/homebrew/bin/s3270",
	"/usr/bin/s3270",
	"/usr/local/bin/s3270",
}

// FindExecutable locates the s3270 binary. An explicit override wins; absent
// that, well-known install locations are probed before falling back to PATH.
func FindExecutable(override string) (string, error) {
	if override != "" {
		if _, err := os.Stat(override); err != nil {
			return "", fmt.Errorf("configured s3270 path %s: %w", override, err)
		}
		return override, nil
	}

	for _, path := range executablePaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if path, err := exec.LookPath("s3270"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("s3270 executable not found in well-known locations or PATH")
}

// Available reports whether an s3270 binary can be located at all. Used by the
// health endpoint and the doctor command.
func Available(override string) bool {
	_, err := FindExecutable(override)
	return err == nil
}
