package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"tn3270d/internal/emulator"
	"tn3270d/internal/screen"
)

// JobState is the queue state of a batch job as read off the screen.
type JobState string

const (
	JobStateUnknown     JobState = "UNKNOWN"
	JobStateInputQueue  JobState = "INPUT_QUEUE"
	JobStateActive      JobState = "ACTIVE"
	JobStateExecuting   JobState = "EXECUTING"
	JobStateWaiting     JobState = "WAITING"
	JobStateHeld        JobState = "HELD"
	JobStateOutputQueue JobState = "OUTPUT_QUEUE"
	JobStatePrintQueue  JobState = "PRINT_QUEUE"
)

// JobAttempt is one status poll's snapshot.
type JobAttempt struct {
	Attempt int      `json:"attempt"`
	State   JobState `json:"state"`
	Screen  string   `json:"screen_content"`
}

// SubmitResult reports a JCL submission. A submission that neither confirmed
// nor denied is Unclear, a distinct third outcome that is never coerced to
// success.
type SubmitResult struct {
	Success bool   `json:"success"`
	Unclear bool   `json:"unclear,omitempty"`
	Message string `json:"message"`
	JobID   string `json:"job_id,omitempty"`
	Screen  string `json:"screen_content,omitempty"`
}

// JobStatusResult reports a polling run.
type JobStatusResult struct {
	Success            bool         `json:"success"`
	Message            string       `json:"message"`
	JobID              string       `json:"job_identifier,omitempty"`
	State              JobState     `json:"job_state"`
	Attempts           int          `json:"attempts"`
	ReachedOutputQueue bool         `json:"reached_output_queue"`
	Screen             string       `json:"screen_content,omitempty"`
	History            []JobAttempt `json:"history,omitempty"`
}

// JobOutputResult reports output retrieval.
type JobOutputResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	JobID      string `json:"job_identifier,omitempty"`
	CondCode   string `json:"cond_code,omitempty"`
	Pages      int    `json:"pages"`
	OutputPath string `json:"output_path,omitempty"`
	Excerpt    string `json:"output_excerpt,omitempty"`
	Screen     string `json:"screen_content,omitempty"`
}

var (
	jobSubmittedRe = regexp.MustCompile(`JOB\s+([A-Z0-9#@$]+)\s+SUBMITTED`)
	condCodeRe     = regexp.MustCompile(`COND CODE\s+(\d{4})`)
	jobIDSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
)

// SubmitJCL submits the named dataset from the command-ready prompt and
// extracts the assigned job id from the confirmation screen.
func (e *Engine) SubmitJCL(ctx context.Context, dataset string) SubmitResult {
	if !e.connected {
		return SubmitResult{Success: false, Message: "Not connected to mainframe"}
	}
	if !e.loggedIn {
		return SubmitResult{Success: false, Message: "Not logged in"}
	}

	ready, text := e.ensureReady(ctx, 3)
	if !ready {
		e.report("submit_jcl", "no_prompt")
		return SubmitResult{
			Success: false,
			Message: fmt.Sprintf("Could not reach %s prompt for submit", e.rules.ReadyPrompt),
			Screen:  text,
		}
	}

	e.exec(ctx, emulator.StringCommand(fmt.Sprintf("SUBMIT '%s'", dataset)))
	e.exec(ctx, emulator.CmdEnter)
	_, text, _ = e.stab.WaitUntilStable(ctx, e.timing.StabilizeWait, e.timing.PollInterval)

	if m := jobSubmittedRe.FindStringSubmatch(strings.ToUpper(text)); m != nil {
		jobID := m[1]
		slog.Info("jcl submitted", "dataset", dataset, "job_id", jobID)
		e.report("submit_jcl", "success")
		return SubmitResult{
			Success: true,
			Message: fmt.Sprintf("Job %s submitted", jobID),
			JobID:   jobID,
			Screen:  text,
		}
	}

	if screen.Classify(text, e.rules.JobSubmit) == screen.OutcomeFailure {
		e.report("submit_jcl", "failure")
		return SubmitResult{
			Success: false,
			Message: "Submit rejected by host",
			Screen:  text,
		}
	}

	// Neither confirmed nor denied: report unclear rather than guessing.
	e.report("submit_jcl", "unclear")
	return SubmitResult{
		Success: false,
		Unclear: true,
		Message: "Submission result unclear, no job id found on screen",
		Screen:  text,
	}
}

// CheckJobStatus polls the host for a job's queue state, up to maxAttempts
// queries spaced by wait. It stops early with success once the job reaches
// the output queue and stops immediately with failure when the host says the
// job does not exist. Exhausting the attempts is still a successful poll; it
// just reports ReachedOutputQueue=false with the last observed state.
func (e *Engine) CheckJobStatus(ctx context.Context, jobID string, maxAttempts int, wait time.Duration) JobStatusResult {
	if !e.connected {
		return JobStatusResult{Success: false, Message: "Not connected to mainframe", State: JobStateUnknown}
	}
	if !e.loggedIn {
		return JobStatusResult{Success: false, Message: "Not logged in", State: JobStateUnknown}
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	ready, text := e.ensureReady(ctx, 3)
	if !ready {
		e.report("job_status", "no_prompt")
		return JobStatusResult{
			Success: false,
			Message: fmt.Sprintf("Could not reach %s prompt for status query", e.rules.ReadyPrompt),
			JobID:   jobID,
			State:   JobStateUnknown,
			Screen:  text,
		}
	}

	lastState := JobStateUnknown
	var history []JobAttempt

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.exec(ctx, emulator.CmdClear)
		e.exec(ctx, emulator.StringCommand(fmt.Sprintf("STATUS %s", jobID)))
		e.exec(ctx, emulator.CmdEnter)
		_, text, _ = e.stab.WaitUntilStable(ctx, e.timing.StabilizeWait, e.timing.PollInterval)

		if e.rules.MatchesNotFound(text) {
			history = append(history, JobAttempt{Attempt: attempt, State: JobStateUnknown, Screen: text})
			e.report("job_status", "not_found")
			return JobStatusResult{
				Success:  false,
				Message:  fmt.Sprintf("Job %s not found", jobID),
				JobID:    jobID,
				State:    JobStateUnknown,
				Attempts: attempt,
				Screen:   text,
				History:  history,
			}
		}

		if s := e.rules.MatchJobState(text); s != "" {
			lastState = JobState(s)
		}
		history = append(history, JobAttempt{Attempt: attempt, State: lastState, Screen: text})

		if lastState == JobStateOutputQueue {
			e.report("job_status", "output_queue")
			return JobStatusResult{
				Success:            true,
				Message:            fmt.Sprintf("Job %s reached the output queue", jobID),
				JobID:              jobID,
				State:              lastState,
				Attempts:           attempt,
				ReachedOutputQueue: true,
				Screen:             text,
				History:            history,
			}
		}

		if attempt < maxAttempts {
			e.settle(ctx, wait)
		}
	}

	e.report("job_status", "exhausted")
	return JobStatusResult{
		Success:            true,
		Message:            fmt.Sprintf("Job %s did not reach the output queue after %d attempts", jobID, maxAttempts),
		JobID:              jobID,
		State:              lastState,
		Attempts:           maxAttempts,
		ReachedOutputQueue: false,
		Screen:             text,
		History:            history,
	}
}

// GetJobOutput retrieves a job's spooled output page by page, writes the
// concatenated text to a flat file under OutputDir, and extracts the
// condition code when one is visible.
func (e *Engine) GetJobOutput(ctx context.Context, jobID string, maxPages int) JobOutputResult {
	if !e.connected {
		return JobOutputResult{Success: false, Message: "Not connected to mainframe"}
	}
	if !e.loggedIn {
		return JobOutputResult{Success: false, Message: "Not logged in"}
	}
	if maxPages <= 0 {
		maxPages = 20
	}

	ready, text := e.ensureReady(ctx, 3)
	if !ready {
		e.report("job_output", "no_prompt")
		return JobOutputResult{
			Success: false,
			Message: fmt.Sprintf("Could not reach %s prompt for output retrieval", e.rules.ReadyPrompt),
			JobID:   jobID,
			Screen:  text,
		}
	}

	e.exec(ctx, emulator.StringCommand(fmt.Sprintf("OUTPUT %s KEEP", jobID)))
	e.exec(ctx, emulator.CmdEnter)
	_, text, _ = e.stab.WaitUntilStable(ctx, e.timing.StabilizeWait, e.timing.PollInterval)

	if e.rules.MatchesNotFound(text) {
		e.report("job_output", "not_found")
		return JobOutputResult{
			Success: false,
			Message: fmt.Sprintf("Job %s not found", jobID),
			JobID:   jobID,
			Screen:  text,
		}
	}

	var pages []string
	for page := 0; page < maxPages; page++ {
		pages = append(pages, text)

		// The prompt returning without further job output means the spool
		// has been walked to its end.
		upperText := strings.ToUpper(text)
		if page > 0 &&
			strings.Contains(upperText, strings.ToUpper(e.rules.ReadyPrompt)) &&
			!strings.Contains(upperText, strings.ToUpper(jobID)) {
			break
		}
		if page == maxPages-1 {
			break
		}

		e.exec(ctx, emulator.CmdEnter)
		_, text, _ = e.stab.WaitUntilStable(ctx, e.timing.StabilizeWait, e.timing.PollInterval)
	}

	combined := strings.Join(pages, "\n")

	condCode := ""
	if m := condCodeRe.FindStringSubmatch(strings.ToUpper(combined)); m != nil {
		condCode = m[1]
	}

	outputPath, err := e.writeJobOutput(jobID, combined)
	if err != nil {
		e.report("job_output", "write_failed")
		return JobOutputResult{
			Success:  false,
			Message:  fmt.Sprintf("Failed to persist job output: %v", err),
			JobID:    jobID,
			CondCode: condCode,
			Pages:    len(pages),
			Screen:   text,
		}
	}

	e.report("job_output", "success")
	return JobOutputResult{
		Success:    true,
		Message:    fmt.Sprintf("Retrieved %d page(s) of output for job %s", len(pages), jobID),
		JobID:      jobID,
		CondCode:   condCode,
		Pages:      len(pages),
		OutputPath: outputPath,
		Excerpt:    excerpt(combined, 1000),
		Screen:     text,
	}
}

// writeJobOutput persists the concatenated pages to
// OutputDir/<sanitized-jobid>_<timestamp>.txt and returns the path.
func (e *Engine) writeJobOutput(jobID, content string) (string, error) {
	if err := os.MkdirAll(e.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	name := jobIDSanitizer.ReplaceAllString(jobID, "_")
	if name == "" {
		name = "job"
	}
	path := filepath.Join(e.OutputDir, fmt.Sprintf("%s_%s.txt", name, time.Now().Format("20060102-150405")))

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return path, nil
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
