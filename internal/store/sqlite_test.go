package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	s, err := New(Config{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "audit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndJobHistory(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordSubmission("sess-1", "JOB00123", "HERC01.JCL(IEFBR14)"))
	require.NoError(t, s.RecordJobState("sess-1", "JOB00123", "EXECUTING"))
	require.NoError(t, s.RecordJobState("sess-1", "JOB00123", "OUTPUT_QUEUE"))
	require.NoError(t, s.RecordOutput("sess-1", "JOB00123", "COND CODE 0000"))
	require.NoError(t, s.RecordSubmission("sess-2", "JOB00999", "HERC02.JCL(OTHER)"))

	events, err := s.JobHistory("JOB00123", 10)
	require.NoError(t, err)
	require.Len(t, events, 4)

	// Newest first.
	assert.Equal(t, EventOutput, events[0].Event)
	assert.Equal(t, "COND CODE 0000", events[0].Detail)
	assert.Equal(t, EventSubmitted, events[3].Event)
	assert.Equal(t, "HERC01.JCL(IEFBR14)", events[3].Detail)
	for _, ev := range events {
		assert.Equal(t, "JOB00123", ev.JobID)
	}
}

func TestJobHistoryLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.RecordJobState("sess-1", "JOB00123", "EXECUTING"))
	}

	events, err := s.JobHistory("JOB00123", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestJobHistoryUnknownJobIsEmpty(t *testing.T) {
	s := newTestStore(t)

	events, err := s.JobHistory("JOB99999", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRecentEventsSpansJobs(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.RecordSubmission("sess-1", "JOB00001", "A.JCL"))
	require.NoError(t, s.RecordSubmission("sess-1", "JOB00002", "B.JCL"))

	events, err := s.RecentEvents(10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "JOB00002", events[0].JobID)
	assert.Equal(t, "JOB00001", events[1].JobID)
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := New(Config{Type: "cassandra"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store type")
}

func TestFactoryRequiresPostgresDSN(t *testing.T) {
	_, err := New(Config{Type: "postgres"})
	require.Error(t, err)
}
