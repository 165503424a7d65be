// Package security provides identifier generation and anti-forgery token
// utilities
package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDSource hands out ULIDs that sort in creation order, including ids
// minted within the same millisecond.
type IDSource struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
	now     func() time.Time
}

// NewIDSource builds a source stamped by now.
func NewIDSource(now func() time.Time) *IDSource {
	if now == nil {
		now = time.Now
	}
	return &IDSource{entropy: ulid.Monotonic(rand.Reader, 0), now: now}
}

// Next returns the next id.
func (s *IDSource) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, err := ulid.New(ulid.Timestamp(s.now()), s.entropy)
	if err != nil {
		// monotonic overflow inside one millisecond; order is lost, uniqueness is not
		return ulid.Make().String()
	}
	return id.String()
}

var visitorIDs = NewIDSource(time.Now)

// NewID mints a visitor or session id from the process-wide source.
func NewID() string {
	return visitorIDs.Next()
}

// RandomString returns n random bytes, base64url encoded without padding.
func RandomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read %d random bytes: %w", n, err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewSigningSecret returns a hex secret carrying n random bytes.
func NewSigningSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate signing secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
