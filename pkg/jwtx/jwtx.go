// Package jwtx signs and verifies the bearer tokens issued after PIN or
// password verification. Tokens are self-contained HS256 JWTs; access and
// refresh tokens share the same structure but carry a "kind" claim which
// every verification site must name explicitly, so one can never be replayed
// as the other.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind tags a token as an access or refresh credential.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// DefaultLeeway is the clock-skew tolerance applied to exp/nbf checks.
const DefaultLeeway = 30 * time.Second

var (
	// ErrExpired reports a token past its expiry (beyond leeway). Terminal;
	// the client must re-authenticate.
	ErrExpired = errors.New("jwtx: token expired")

	// ErrInvalid reports a malformed token, a bad signature, or claims that
	// fail validation. Terminal, never retried.
	ErrInvalid = errors.New("jwtx: invalid token")

	// ErrKindMismatch reports a structurally valid token presented where the
	// other kind was required.
	ErrKindMismatch = errors.New("jwtx: token kind mismatch")
)

// Claims are the token claims shared by both kinds.
type Claims struct {
	jwt.RegisteredClaims

	// Kind is "access" or "refresh"; checked by every verifier.
	Kind Kind `json:"kind"`

	// Name is the display name of the authenticated account.
	Name string `json:"name,omitempty"`
}

// NewClaims builds minimally-correct claims for the given subject.
func NewClaims(subject string, kind Kind, name string, ttl time.Duration, issuer string, now time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        newJTI(),
		},
		Kind: kind,
		Name: name,
	}
}

// newJTI returns a URL-safe random identifier for the "jti" claim.
func newJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Signer signs claims with the process-wide HMAC secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

func (s *Signer) Sign(c Claims) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("jwtx: signing secret not configured")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(s.secret)
}

// Verifier validates tokens signed with the same secret. Expired and
// cryptographically-invalid tokens surface as distinct errors.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewVerifier(secret []byte, issuer string, leeway time.Duration) *Verifier {
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{secret: secret, issuer: issuer, leeway: leeway}
}

// Verify parses and validates a token, enforcing the expected kind.
func (v *Verifier) Verify(raw string, want Kind) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if claims.Kind != want {
		return Claims{}, ErrKindMismatch
	}
	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalid)
	}

	return claims, nil
}
