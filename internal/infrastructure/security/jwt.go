package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/hkdf"
)

// csrfPurpose binds derived keys and token claims to anti-forgery use.
const csrfPurpose = "beacon-csrf"

// ErrBadToken is returned for anti-forgery tokens that are malformed,
// expired, signed with another key, or issued for another purpose.
var ErrBadToken = errors.New("invalid anti-forgery token")

// DeriveKey expands a configured secret into a 32-byte key dedicated to
// one purpose, so the same secret can back several signers.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, 32)
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(purpose))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", purpose, err)
	}
	return key, nil
}

// CSRFSigner issues and validates anti-forgery tokens as short-lived
// HS256 JWTs.
type CSRFSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// DefaultCSRFTTL is used when no positive lifetime is configured.
const DefaultCSRFTTL = 2 * time.Hour

// NewCSRFSigner derives the signing key from secret.
func NewCSRFSigner(secret string, ttl time.Duration) (*CSRFSigner, error) {
	key, err := DeriveKey(secret, csrfPurpose)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultCSRFTTL
	}
	return &CSRFSigner{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a fresh signed token.
func (s *CSRFSigner) Issue() (string, error) {
	nonce, err := RandomString(16)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	claims := jwt.MapClaims{
		"purpose": csrfPurpose,
		"jti":     nonce,
		"iat":     now.Unix(),
		"exp":     now.Add(s.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign anti-forgery token: %w", err)
	}
	return signed, nil
}

// Validate checks signature, expiry, and purpose.
func (s *CSRFSigner) Validate(tokenString string) error {
	if tokenString == "" {
		return ErrBadToken
	}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	token, err := parser.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid || claims["purpose"] != csrfPurpose {
		return ErrBadToken
	}
	return nil
}
