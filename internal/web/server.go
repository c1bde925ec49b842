// Package web exposes the bridge over HTTP: session lifecycle, login,
// screen reads, commands, file transfer, batch job endpoints, health, and
// the Prometheus scrape target.
package web

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"tn3270d/internal/emulator"
	"tn3270d/internal/metrics"
	"tn3270d/internal/notify"
	"tn3270d/internal/registry"
	"tn3270d/internal/store"
	"tn3270d/internal/workflow"
)

// Server wires the registry and its collaborators behind the HTTP surface.
type Server struct {
	registry *registry.Registry
	metrics  *metrics.Metrics
	store    store.Store
	notifier notify.Notifier

	// S3270Path is the configured executable override, used by health.
	S3270Path string
	// StreamInterval paces websocket screen pushes.
	StreamInterval time.Duration
}

// NewServer builds the HTTP surface. store and notifier may be nil; the
// affected endpoints then skip persistence and notification.
func NewServer(reg *registry.Registry, m *metrics.Metrics, st store.Store, n notify.Notifier) *Server {
	if n == nil {
		n = notify.Nop{}
	}
	return &Server{
		registry:       reg,
		metrics:        m,
		store:          st,
		notifier:       n,
		StreamInterval: 2 * time.Second,
	}
}

// Handler returns the full route table wrapped in request instrumentation.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/connect", s.handleConnect)
	mux.HandleFunc("/api/login", s.handleLogin)
	mux.HandleFunc("/api/screen", s.handleScreen)
	mux.HandleFunc("/api/screen/stream", s.handleScreenStream)
	mux.HandleFunc("/api/command", s.handleCommand)
	mux.HandleFunc("/api/logout", s.handleLogout)
	mux.HandleFunc("/api/disconnect", s.handleDisconnect)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sendfile", s.handleSendFile)
	mux.HandleFunc("/api/getfile", s.handleGetFile)
	mux.HandleFunc("/api/submit_jcl", s.handleSubmitJCL)
	mux.HandleFunc("/api/job_status", s.handleJobStatus)
	mux.HandleFunc("/api/job_output", s.handleJobOutput)
	mux.HandleFunc("/api/cleanup", s.handleCleanup)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
		return s.metrics.RequestTrackingMiddleware(mux)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func errorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		errorJSON(w, http.StatusMethodNotAllowed, "Method not allowed")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		errorJSON(w, http.StatusBadRequest, "Invalid JSON body")
		return false
	}
	return true
}

// session resolves a session id, answering 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, id string) (*registry.Session, bool) {
	if id == "" {
		errorJSON(w, http.StatusBadRequest, "session_id is required")
		return nil, false
	}
	sess, ok := s.registry.Get(id)
	if !ok {
		errorJSON(w, http.StatusNotFound, "Invalid session")
		return nil, false
	}
	return sess, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"success":         true,
		"status":          "healthy",
		"s3270_available": emulator.Available(s.S3270Path),
		"active_sessions": s.registry.Count(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil {
			resp["rss_bytes"] = mem.RSS
		}
		if cpu, err := proc.CPUPercent(); err == nil {
			resp["cpu_percent"] = cpu
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Host == "" {
		errorJSON(w, http.StatusBadRequest, "Host is required")
		return
	}
	if req.Port == 0 {
		req.Port = 23
	}

	sess, err := s.registry.Create(req.Host, req.Port)
	if err != nil {
		slog.Error("connect failed", "host", req.Host, "port", req.Port, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": err.Error(),
			"host":    req.Host,
			"port":    req.Port,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"session_id": sess.ID,
		"message":    "Connected successfully",
		"host":       req.Host,
		"port":       req.Port,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Username  string `json:"username"`
		Password  string `json:"password"`
		LoginType string `json:"login_type"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		errorJSON(w, http.StatusBadRequest, "session_id, username, and password are required")
		return
	}

	sess, ok := s.session(w, req.SessionID)
	if !ok {
		return
	}

	sess.Lock()
	res := sess.Engine.Login(r.Context(), req.Username, req.Password, workflow.LoginVariant(req.LoginType))
	sess.Unlock()

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r.URL.Query().Get("session_id"))
	if !ok {
		return
	}

	sess.Lock()
	text, err := sess.Engine.GetScreen(r.Context())
	connected := sess.Engine.Connected()
	loggedIn := sess.Engine.LoggedIn()
	sess.Unlock()

	if err != nil {
		errorJSON(w, http.StatusOK, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"screen_content": text,
		"connected":      connected,
		"logged_in":      loggedIn,
	})
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Command   string `json:"command"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Command == "" {
		errorJSON(w, http.StatusBadRequest, "session_id and command are required")
		return
	}

	sess, ok := s.session(w, req.SessionID)
	if !ok {
		return
	}

	sess.Lock()
	var res workflow.CommandResult
	if emulator.IsKeyName(req.Command) {
		res = sess.Engine.SendFunctionKey(r.Context(), req.Command)
	} else {
		res = sess.Engine.SendCommand(r.Context(), req.Command)
	}
	sess.Unlock()

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sess, ok := s.session(w, req.SessionID)
	if !ok {
		return
	}

	sess.Lock()
	res := sess.Engine.Logout(r.Context())
	sess.Unlock()

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		errorJSON(w, http.StatusBadRequest, "session_id is required")
		return
	}

	// Unknown ids disconnect successfully; the call is idempotent.
	s.registry.Remove(req.SessionID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Disconnected successfully",
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"sessions": s.registry.List(),
	})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	count := s.registry.RemoveAll()
	slog.Info("cleanup removed all sessions", "count", count)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"message":       sessionCountMessage(count),
		"cleaned_count": count,
	})
}

func sessionCountMessage(n int) string {
	if n == 1 {
		return "Cleaned up 1 session"
	}
	return fmt.Sprintf("Cleaned up %d sessions", n)
}
