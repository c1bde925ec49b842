package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// TransferDirection selects IND$FILE send or receive, from the local side's
// point of view.
type TransferDirection string

const (
	TransferSend    TransferDirection = "send"
	TransferReceive TransferDirection = "receive"
)

// TransferRequest describes one IND$FILE transfer.
type TransferRequest struct {
	Direction TransferDirection
	LocalPath string
	Dataset   string
	// Mode is "ascii" or "binary".
	Mode string
}

// TransferResult reports the transfer verdict. The emulator performs the
// whole transfer inside one protocol command, so the verdict comes from the
// command's terminator alone.
type TransferResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	LocalPath string `json:"local_path,omitempty"`
	Dataset   string `json:"dataset,omitempty"`
}

// TransferFile runs an IND$FILE transfer over the live session. The host must
// be sitting at the command-ready prompt for IND$FILE to engage; the prompt
// check is best effort because some hosts run the transfer from other panels.
func (e *Engine) TransferFile(ctx context.Context, req TransferRequest) TransferResult {
	if !e.connected {
		return TransferResult{Success: false, Message: "Not connected to mainframe"}
	}
	if !e.loggedIn {
		return TransferResult{Success: false, Message: "Not logged in"}
	}

	switch req.Direction {
	case TransferSend, TransferReceive:
	default:
		return TransferResult{Success: false, Message: fmt.Sprintf("Unknown transfer direction: %s", req.Direction)}
	}

	mode := strings.ToLower(req.Mode)
	if mode == "" {
		mode = "ascii"
	}
	if mode != "ascii" && mode != "binary" {
		return TransferResult{Success: false, Message: fmt.Sprintf("Unknown transfer mode: %s", req.Mode)}
	}

	localPath, err := filepath.Abs(req.LocalPath)
	if err != nil {
		return TransferResult{Success: false, Message: fmt.Sprintf("Bad local path: %v", err)}
	}

	if ready, _ := e.ensureReady(ctx, 3); !ready {
		slog.Warn("transfer starting without command-ready prompt",
			"direction", req.Direction, "dataset", req.Dataset)
	}

	cmd := fmt.Sprintf("Transfer(Direction=%s,HostFile=%s,LocalFile=%s,Host=tso,Mode=%s)",
		req.Direction, req.Dataset, localPath, mode)

	res := e.ch.Send(ctx, cmd, e.timing.TransferTimeout)
	if !res.OK() {
		e.report("transfer", "failure")
		msg := "Transfer failed"
		if err := res.Err(); err != nil {
			msg = fmt.Sprintf("Transfer failed: %v", err)
		} else if t := res.Text(); t != "" {
			msg = fmt.Sprintf("Transfer failed: %s", t)
		}
		return TransferResult{
			Success:   false,
			Message:   msg,
			LocalPath: localPath,
			Dataset:   req.Dataset,
		}
	}

	slog.Info("file transfer complete",
		"direction", req.Direction, "dataset", req.Dataset, "mode", mode)
	e.report("transfer", "success")
	return TransferResult{
		Success:   true,
		Message:   fmt.Sprintf("Transfer (%s) completed", req.Direction),
		LocalPath: localPath,
		Dataset:   req.Dataset,
	}
}
