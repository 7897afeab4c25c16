package chatclient

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorage_RoundTripAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "client.yaml")

	s, err := OpenFileStorage(path)
	require.NoError(t, err)
	_, ok, err := s.Get(SessionKey)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(SessionKey, "abc"))

	reopened, err := OpenFileStorage(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(SessionKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestFileStorage_SessionSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")

	s1, err := OpenFileStorage(path)
	require.NoError(t, err)
	first := New(&fakeBackend{}, s1)

	s2, err := OpenFileStorage(path)
	require.NoError(t, err)
	second := New(&fakeBackend{}, s2)

	assert.Equal(t, first.SessionID(), second.SessionID())
}

func TestOpenFileStorage_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- not\n- a map\n"), 0o600))

	_, err := OpenFileStorage(path)
	assert.Error(t, err)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("no entropy") }

func TestNewSessionID(t *testing.T) {
	id := NewSessionID()
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(4), parsed.Version())
	assert.NotEqual(t, id, NewSessionID())
}

func TestNewSessionID_FallsBackToTimestamp(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	id := newSessionIDFrom(errReader{}, func() time.Time { return at })
	assert.Equal(t, "1700000000123", id)
}
