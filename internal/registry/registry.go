// Package registry owns the lifetime of terminal sessions: one emulator
// subprocess plus its workflow engine per session id, with idle expiry and
// orderly teardown.
package registry

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tn3270d/internal/emulator"
	"tn3270d/internal/screen"
	"tn3270d/internal/workflow"
)

// Session binds one emulator subprocess to one workflow engine. All workflow
// calls against a session must hold its lock; the emulator protocol cannot
// interleave commands.
type Session struct {
	ID   string
	Host string
	Port int

	CreatedAt time.Time

	Process *emulator.Process
	Channel *emulator.Channel
	Engine  *workflow.Engine

	// LastJobID remembers the most recent submission so status and output
	// requests can omit the job id.
	LastJobID string

	// mu serializes workflow calls and can be held for minutes during a
	// transfer. The idle clock lives behind its own lock so listing and
	// expiry sweeps never wait on another session's in-flight workflow.
	mu sync.Mutex

	usedMu   sync.Mutex
	lastUsed time.Time
}

// Lock serializes workflow access to this session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session for the next request.
func (s *Session) Unlock() { s.mu.Unlock() }

// Touch resets the idle clock.
func (s *Session) Touch() {
	s.usedMu.Lock()
	s.lastUsed = time.Now()
	s.usedMu.Unlock()
}

// Idle reports how long the session has been unused.
func (s *Session) Idle() time.Duration {
	s.usedMu.Lock()
	defer s.usedMu.Unlock()
	return time.Since(s.lastUsed)
}

// LastUsed returns the last activity timestamp.
func (s *Session) LastUsed() time.Time {
	s.usedMu.Lock()
	defer s.usedMu.Unlock()
	return s.lastUsed
}

// Info is the listing view of a session.
type Info struct {
	ID        string    `json:"session_id"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Connected bool      `json:"connected"`
	LoggedIn  bool      `json:"logged_in"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	LastJobID string    `json:"last_job_id,omitempty"`
}

// Options configures a Registry.
type Options struct {
	// TTL is the idle lifetime of a session; zero disables expiry.
	TTL time.Duration
	// SweepInterval spaces the background expiry sweeps.
	SweepInterval time.Duration
	// S3270Path overrides executable discovery when non-empty.
	S3270Path string
	// Rules overrides the embedded classification tables.
	Rules *screen.Rules
	// Timing overrides the default workflow pacing.
	Timing *workflow.Timing
	// OutputDir receives retrieved job output files.
	OutputDir string

	// OnActiveCount observes the session count after every change (gauge).
	OnActiveCount func(n int)
	// OnExpired observes each session removed by the sweeper.
	OnExpired func()
	// OnWorkflow is handed to every engine (workflow counters).
	OnWorkflow func(operation, outcome string)
	// OnCommand is handed to every channel (per-command counters).
	OnCommand func(status emulator.Status, elapsed time.Duration)
	// OnPoll is handed to every stabilizer (screen read counter).
	OnPoll func()
}

// Registry is the concurrent session table.
type Registry struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session

	sweepOnce sync.Once
	sweepStop chan struct{}
}

// New builds an empty registry.
func New(opts Options) *Registry {
	return &Registry{
		opts:      opts,
		sessions:  make(map[string]*Session),
		sweepStop: make(chan struct{}),
	}
}

// Create spawns an emulator subprocess for host:port and registers a new
// session around it. Expired sessions are swept first so a burst of connects
// cannot pile dead processes behind live ones.
func (r *Registry) Create(host string, port int) (*Session, error) {
	r.SweepExpired()

	executable, err := emulator.FindExecutable(r.opts.S3270Path)
	if err != nil {
		return nil, fmt.Errorf("locate s3270: %w", err)
	}

	proc, err := emulator.StartProcess(executable, host, port)
	if err != nil {
		return nil, fmt.Errorf("start emulator for %s:%d: %w", host, port, err)
	}

	ch := emulator.NewChannel(proc)
	ch.OnCommand = r.opts.OnCommand
	eng := workflow.NewEngine(ch, r.opts.Rules)
	eng.Stabilizer().OnPoll = r.opts.OnPoll
	if r.opts.Timing != nil {
		eng.SetTiming(*r.opts.Timing)
	}
	if r.opts.OutputDir != "" {
		eng.OutputDir = r.opts.OutputDir
	}
	eng.OnWorkflow = r.opts.OnWorkflow

	sess := &Session{
		ID:        uuid.NewString(),
		Host:      host,
		Port:      port,
		CreatedAt: time.Now(),
		Process:   proc,
		Channel:   ch,
		Engine:    eng,
		lastUsed:  time.Now(),
	}

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	n := len(r.sessions)
	r.mu.Unlock()

	r.reportCount(n)
	slog.Info("session created", "session_id", sess.ID, "host", host, "port", port)
	return sess, nil
}

// Get looks up a session and refreshes its idle clock. A session whose
// subprocess has died is reported as found but marked disconnected, so the
// caller returns a meaningful error instead of a stale success.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if !sess.Process.Running() && sess.Engine.Connected() {
		slog.Warn("emulator subprocess died", "session_id", id)
		sess.Engine.MarkDisconnected()
	}

	sess.Touch()
	return sess, true
}

// List snapshots every session.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		infos = append(infos, Info{
			ID:        s.ID,
			Host:      s.Host,
			Port:      s.Port,
			Connected: s.Engine.Connected() && s.Process.Running(),
			LoggedIn:  s.Engine.LoggedIn(),
			CreatedAt: s.CreatedAt,
			LastUsed:  s.LastUsed(),
			LastJobID: s.LastJobID,
		})
	}
	return infos
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove terminates a session's subprocess and drops it from the table. The
// process is always terminated before the entry disappears, so a crash
// between the two steps leaks a map entry, never a subprocess. Removing an
// unknown id reports false.
func (r *Registry) Remove(id string) bool {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	sess.Process.Terminate()
	sess.Engine.MarkDisconnected()

	r.mu.Lock()
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	r.reportCount(n)
	slog.Info("session removed", "session_id", id)
	return true
}

// RemoveAll tears down every session and returns how many were removed.
func (r *Registry) RemoveAll() int {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	removed := 0
	for _, id := range ids {
		if r.Remove(id) {
			removed++
		}
	}
	return removed
}

// SweepExpired removes sessions idle past the TTL and returns how many went.
func (r *Registry) SweepExpired() int {
	if r.opts.TTL <= 0 {
		return 0
	}

	r.mu.RLock()
	var expired []string
	for id, s := range r.sessions {
		if s.Idle() > r.opts.TTL {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range expired {
		slog.Info("session expired", "session_id", id, "ttl", r.opts.TTL)
		if r.Remove(id) && r.opts.OnExpired != nil {
			r.opts.OnExpired()
		}
	}
	return len(expired)
}

// StartSweeper launches the background expiry loop. Safe to call once;
// Close stops it.
func (r *Registry) StartSweeper() {
	interval := r.opts.SweepInterval
	if interval <= 0 || r.opts.TTL <= 0 {
		return
	}
	r.sweepOnce.Do(func() {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.SweepExpired()
				case <-r.sweepStop:
					return
				}
			}
		}()
	})
}

// Close stops the sweeper and tears down every session.
func (r *Registry) Close() {
	select {
	case <-r.sweepStop:
	default:
		close(r.sweepStop)
	}
	r.RemoveAll()
}

func (r *Registry) reportCount(n int) {
	if r.opts.OnActiveCount != nil {
		r.opts.OnActiveCount(n)
	}
}
