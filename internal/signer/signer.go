// Package signer issues and verifies HS256-signed, time-limited tokens
// carrying an arbitrary JSON payload.
package signer

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed means the input is not a token of the expected shape.
	ErrMalformed = errors.New("token malformed")
	// ErrBadSignature means the token was not produced with our key.
	ErrBadSignature = errors.New("token signature invalid")
	// ErrExpired means the token was genuine but is past its expiry.
	ErrExpired = errors.New("token expired")
)

const minSecretLen = 32

// Signer holds the HMAC key. Construct one per key; there is no global.
type Signer struct {
	secret   []byte
	issuer   string
	now      func() time.Time
	validate *validator.Validate
}

// Option customises a Signer.
type Option func(*Signer)

// WithClock overrides the time source, mainly for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// WithIssuer sets the iss claim written and required on verify.
func WithIssuer(issuer string) Option {
	return func(s *Signer) { s.issuer = issuer }
}

// New returns a Signer for secret, which must be at least 32 bytes.
func New(secret []byte, opts ...Option) (*Signer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretLen)
	}
	s := &Signer{
		secret:   append([]byte(nil), secret...),
		issuer:   "handoff",
		now:      time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type claims struct {
	jwt.RegisteredClaims
	Data json.RawMessage `json:"data"`
}

// Sign serialises payload into a token for audience valid for ttl.
// It returns the compact token and its expiry.
func (s *Signer) Sign(audience string, payload any, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be positive")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("encode payload: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Data: data,
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks token and decodes its payload into dst. Checks run as
// structure, then signature, then expiry, so the returned error tells the
// caller which one failed. dst is left untouched on any error.
//
// Struct payloads are validated with `validate` tags; a missing required
// field is reported as ErrMalformed.
func (s *Signer) Verify(token, audience string, dst any) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return errors.New("verify destination must be a non-nil pointer")
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(audience),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return classify(err)
	}

	if len(c.Data) == 0 || string(c.Data) == "null" {
		return ErrMalformed
	}

	target := reflect.New(rv.Type().Elem())
	if err := json.Unmarshal(c.Data, target.Interface()); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if isStruct(target.Elem()) {
		if err := s.validate.Struct(target.Interface()); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	rv.Elem().Set(target.Elem())
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		// Wrong audience/issuer, or a missing exp: a genuine token, but not
		// one meant for this use.
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func isStruct(v reflect.Value) bool {
	for v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v.Kind() == reflect.Struct
}
