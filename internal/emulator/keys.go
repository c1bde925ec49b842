package emulator

import (
	"fmt"
	"strconv"
	"strings"
)

// Primitive command vocabulary sent to s3270.
const (
	CmdReadScreen = "Ascii"
	CmdEnter      = "Enter"
	CmdClear      = "Clear"
	CmdTab        = "Tab"
	CmdQuit       = "Quit"
)

// StringCommand wraps literal text in the s3270 String() action, escaping
// backslashes and double quotes.
func StringCommand(text string) string {
	escaped := strings.ReplaceAll(text, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return fmt.Sprintf(`String("%s")`, escaped)
}

// KeyCommand maps a symbolic key name (ENTER, CLEAR, TAB, PF1..PF24,
// PA1..PA3) to the underlying s3270 action. Unknown names are rejected.
func KeyCommand(key string) (string, bool) {
	k := strings.ToUpper(strings.TrimSpace(key))
	switch k {
	case "ENTER":
		return CmdEnter, true
	case "CLEAR":
		return CmdClear, true
	case "TAB":
		return CmdTab, true
	}

	if n, ok := keyNumber(k, "PF"); ok && n >= 1 && n <= 24 {
		return fmt.Sprintf("PF(%d)", n), true
	}
	if n, ok := keyNumber(k, "PA"); ok && n >= 1 && n <= 3 {
		return fmt.Sprintf("PA(%d)", n), true
	}
	return "", false
}

// IsKeyName reports whether the given command text names a key rather than
// literal input.
func IsKeyName(command string) bool {
	_, ok := KeyCommand(command)
	return ok
}

func keyNumber(key, prefix string) (int, bool) {
	if !strings.HasPrefix(key, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(key[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}
