package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"tn3270d/internal/notify"
	"tn3270d/internal/registry"
	"tn3270d/internal/workflow"
)

func (s *Server) handleSubmitJCL(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Dataset   string `json:"jcl_dataset_name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Dataset == "" {
		errorJSON(w, http.StatusBadRequest, "session_id and jcl_dataset_name are required")
		return
	}

	sess, ok := s.session(w, req.SessionID)
	if !ok {
		return
	}

	sess.Lock()
	res := sess.Engine.SubmitJCL(r.Context(), req.Dataset)
	if res.Success {
		sess.LastJobID = res.JobID
	}
	sess.Unlock()

	switch {
	case res.Success:
		s.audit(func() error { return s.store.RecordSubmission(sess.ID, res.JobID, req.Dataset) })
		s.notify(r.Context(), notify.EventSubmit,
			fmt.Sprintf("Job %s submitted from %s", res.JobID, req.Dataset))
		s.countJob("success")
	case res.Unclear:
		s.countJob("unclear")
	default:
		s.notify(r.Context(), notify.EventFailure,
			fmt.Sprintf("Submit of %s rejected: %s", req.Dataset, res.Message))
		s.countJob("failure")
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		SessionID   string `json:"session_id"`
		JobID       string `json:"job_identifier"`
		MaxAttempts int    `json:"max_attempts"`
		WaitSeconds int    `json:"wait_seconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sess, ok := s.session(w, req.SessionID)
	if !ok {
		return
	}

	jobID, ok := s.resolveJobID(w, sess, req.JobID)
	if !ok {
		return
	}

	wait := 5 * time.Second
	if req.WaitSeconds > 0 {
		wait = time.Duration(req.WaitSeconds) * time.Second
	}

	sess.Lock()
	res := sess.Engine.CheckJobStatus(r.Context(), jobID, req.MaxAttempts, wait)
	sess.Unlock()

	if res.State != workflow.JobStateUnknown {
		s.audit(func() error { return s.store.RecordJobState(sess.ID, jobID, string(res.State)) })
	}
	if res.ReachedOutputQueue {
		s.notify(r.Context(), notify.EventOutputQueue,
			fmt.Sprintf("Job %s reached the output queue", jobID))
	} else if !res.Success {
		s.notify(r.Context(), notify.EventFailure,
			fmt.Sprintf("Job %s status check failed: %s", jobID, res.Message))
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleJobOutput(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		JobID     string `json:"job_identifier"`
		MaxPages  int    `json:"max_pages"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sess, ok := s.session(w, req.SessionID)
	if !ok {
		return
	}

	jobID, ok := s.resolveJobID(w, sess, req.JobID)
	if !ok {
		return
	}

	sess.Lock()
	res := sess.Engine.GetJobOutput(r.Context(), jobID, req.MaxPages)
	sess.Unlock()

	if res.Success {
		detail := res.OutputPath
		if res.CondCode != "" {
			detail = fmt.Sprintf("COND CODE %s, %s", res.CondCode, res.OutputPath)
		}
		s.audit(func() error { return s.store.RecordOutput(sess.ID, jobID, detail) })
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, workflow.TransferSend)
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, workflow.TransferReceive)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, dir workflow.TransferDirection) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		SessionID    string `json:"session_id"`
		LocalPath    string `json:"local_path"`
		Dataset      string `json:"mainframe_dataset"`
		TransferMode string `json:"transfer_mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LocalPath == "" || req.Dataset == "" {
		errorJSON(w, http.StatusBadRequest, "session_id, local_path, and mainframe_dataset are required")
		return
	}

	sess, ok := s.session(w, req.SessionID)
	if !ok {
		return
	}

	sess.Lock()
	res := sess.Engine.TransferFile(r.Context(), workflow.TransferRequest{
		Direction: dir,
		LocalPath: req.LocalPath,
		Dataset:   req.Dataset,
		Mode:      req.TransferMode,
	})
	sess.Unlock()

	status := "success"
	if !res.Success {
		status = "failure"
		s.notify(r.Context(), notify.EventFailure,
			fmt.Sprintf("Transfer (%s) of %s failed: %s", dir, req.Dataset, res.Message))
	}
	if s.metrics != nil {
		s.metrics.TransfersTotal.WithLabelValues(string(dir), status).Inc()
	}

	writeJSON(w, http.StatusOK, res)
}

// resolveJobID falls back to the session's last submitted job.
func (s *Server) resolveJobID(w http.ResponseWriter, sess *registry.Session, jobID string) (string, bool) {
	if jobID != "" {
		return jobID, true
	}
	sess.Lock()
	jobID = sess.LastJobID
	sess.Unlock()
	if jobID == "" {
		errorJSON(w, http.StatusBadRequest, "job_identifier is required (no job submitted on this session)")
		return "", false
	}
	return jobID, true
}

// audit runs a store write, logging failures instead of surfacing them; the
// audit trail never fails a workflow.
func (s *Server) audit(fn func() error) {
	if s.store == nil {
		return
	}
	if err := fn(); err != nil {
		slog.Error("audit store write failed", "error", err)
	}
}

// notify delivers best effort, same contract as audit.
func (s *Server) notify(ctx context.Context, eventType, message string) {
	if err := s.notifier.Notify(ctx, eventType, message); err != nil {
		slog.Error("notification failed", "event", eventType, "error", err)
	}
}

func (s *Server) countJob(outcome string) {
	if s.metrics != nil {
		s.metrics.JobsSubmitted.WithLabelValues(outcome).Inc()
	}
}
