package token

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Algorithm is the only JOSE alg license tokens are signed or accepted with.
const Algorithm = "EdDSA"

// Options tune issuance and verification.
type Options struct {
	Issuer    string
	TTL       time.Duration
	ClockSkew time.Duration // leeway for iat/nbf only, exp is strict
	Now       func() time.Time
}

// Codec mints and verifies license tokens. A codec built with NewVerifier can only verify.
type Codec struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	issuer     string
	ttl        time.Duration
	skew       time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// IssuedToken is a freshly minted token and its bookkeeping fields
type IssuedToken struct {
	Token     string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Claims    Claims
}

// NewCodec creates a codec from a PEM encoded Ed25519 private key.
// Any problem with the key is returned as a *SigningError.
func NewCodec(privateKeyPEM []byte, opts Options) (*Codec, error) {
	if len(privateKeyPEM) == 0 {
		return nil, &SigningError{Op: "load", Err: errors.New("no private key configured")}
	}
	priv, err := ParsePrivateKeyPEM(privateKeyPEM)
	if err != nil {
		return nil, &SigningError{Op: "parse", Err: err}
	}
	if opts.TTL <= 0 {
		return nil, &SigningError{Op: "configure", Err: fmt.Errorf("ttl must be positive")}
	}

	c := newCodec(opts)
	c.privateKey = priv
	c.publicKey = priv.Public().(ed25519.PublicKey)
	return c, nil
}

// NewVerifier creates a verify-only codec from a PEM encoded Ed25519 public key,
// the same way a desktop client checks tokens offline.
func NewVerifier(publicKeyPEM []byte, opts Options) (*Codec, error) {
	pub, err := ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return nil, err
	}
	c := newCodec(opts)
	c.publicKey = pub
	return c, nil
}

func newCodec(opts Options) *Codec {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{
		issuer: opts.Issuer,
		ttl:    opts.TTL,
		skew:   opts.ClockSkew,
		now:    now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{Algorithm}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// TTL returns the lifetime of issued tokens
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// PublicKey returns the verification key
func (c *Codec) PublicKey() ed25519.PublicKey {
	return c.publicKey
}

// CanIssue reports whether the codec holds a private key
func (c *Codec) CanIssue() bool {
	return len(c.privateKey) == ed25519.PrivateKeySize
}

// Issue signs claims with iat = now, exp = now + TTL and a fresh jti.
// Identity fields are validated before signing.
func (c *Codec) Issue(claims Claims) (*IssuedToken, error) {
	if !c.CanIssue() {
		return nil, &SigningError{Op: "sign", Err: errors.New("codec has no private key")}
	}
	if err := claims.validateIdentity(); err != nil {
		return nil, fmt.Errorf("invalid token claims: %w", err)
	}

	now := c.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(c.ttl)

	claims.ID = uuid.New().String()
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	claims.NotBefore = nil

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(c.privateKey)
	if err != nil {
		return nil, &SigningError{Op: "sign", Err: err}
	}

	return &IssuedToken{
		Token:     signed,
		ID:        claims.ID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Claims:    claims,
	}, nil
}

// Verify checks signature, structure and expiry. It never consults storage.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	claims, err := c.VerifyIgnoringExpiry(tokenString)
	if err != nil {
		return nil, err
	}
	if !c.now().Before(claims.ExpiresAt.Time) {
		return nil, &VerificationError{
			Kind:  ErrExpired,
			Cause: fmt.Errorf("expired at %s", claims.ExpiresAt.Time.UTC().Format(time.RFC3339)),
		}
	}
	return claims, nil
}

// VerifyIgnoringExpiry returns the claims of an authentic, well-formed token
// whether or not it has expired. Grace renewal is built on this.
func (c *Codec) VerifyIgnoringExpiry(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.publicKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if claims.ExpiresAt == nil {
		return nil, malformed("missing exp")
	}
	if claims.IssuedAt == nil {
		return nil, malformed("missing iat")
	}
	if claims.ID == "" {
		return nil, malformed("missing jti")
	}
	if err := claims.validateIdentity(); err != nil {
		return nil, malformed("invalid claims: %v", err)
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, malformed("unexpected issuer %q", claims.Issuer)
	}

	latest := c.now().Add(c.skew)
	if claims.IssuedAt.Time.After(latest) {
		return nil, malformed("issued in the future")
	}
	if claims.NotBefore != nil && claims.NotBefore.Time.After(latest) {
		return nil, malformed("not valid yet")
	}
	if !claims.IssuedAt.Time.Before(claims.ExpiresAt.Time) {
		return nil, malformed("exp precedes iat")
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &VerificationError{Kind: ErrBadSignature, Cause: err}
	default:
		return &VerificationError{Kind: ErrMalformed, Cause: err}
	}
}

// Classification returns a short label for a verification error, used in logs and metrics.
func Classification(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrBadSignature):
		return "bad_signature"
	case errors.Is(err, ErrMalformed):
		return "malformed"
	default:
		return "error"
	}
}
