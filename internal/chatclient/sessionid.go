package chatclient

import (
	"crypto/rand"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// NewSessionID returns a random UUID read from crypto/rand.
func NewSessionID() string {
	return newSessionIDFrom(rand.Reader, time.Now)
}

// newSessionIDFrom falls back to a millisecond timestamp when r cannot
// produce random bytes.
func newSessionIDFrom(r io.Reader, now func() time.Time) string {
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return strconv.FormatInt(now().UnixMilli(), 10)
	}
	return id.String()
}
