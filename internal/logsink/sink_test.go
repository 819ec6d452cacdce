package logsink

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"story-generator/internal/storage"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSink(t *testing.T) (*Sink, *bytes.Buffer) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "logs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var buf bytes.Buffer
	logger := log.New()
	logger.SetOutput(&buf)
	logger.SetLevel(log.DebugLevel)
	return New(store, logger), &buf
}

func TestSink_LogPersistsAndWrites(t *testing.T) {
	sink, buf := setupSink(t)
	tick := time.Now()
	sink.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}

	sink.Log("error", "prompt p1: provider error")
	sink.Logf("warning", "prompt %s: %s", "p2", "credits exhausted")
	sink.Log("bogus", "fallback level")

	assert.Contains(t, buf.String(), "prompt p1: provider error")
	assert.Contains(t, buf.String(), "level=warning")

	entries, err := sink.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "fallback level", entries[0].Message)
	assert.Equal(t, "warning", entries[1].Level)
	assert.Equal(t, "error", entries[2].Level)
}

func TestSink_Purge(t *testing.T) {
	sink, _ := setupSink(t)
	now := time.Now()

	sink.now = func() time.Time { return now.AddDate(0, 0, -40) }
	sink.Log("info", "old")
	sink.now = func() time.Time { return now }
	sink.Log("info", "new")

	n, err := sink.Purge(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = sink.Purge(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	entries, err := sink.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Message)
}

func TestSink_WithoutStore(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New()
	logger.SetOutput(&buf)

	sink := New(nil, logger)
	sink.Log("info", "only logrus")

	assert.Contains(t, buf.String(), "only logrus")
	entries, err := sink.Recent(5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
