package token

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ParsePrivateKeyPEM decodes a PKCS#8 PEM Ed25519 private key.
// Errors never include the key bytes.
func ParsePrivateKeyPEM(data []byte) (ed25519.PrivateKey, error) {
	key, err := jwt.ParseEdPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("not a PKCS#8 Ed25519 private key")
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("not an Ed25519 private key")
	}
	return priv, nil
}

// ParsePublicKeyPEM decodes a PKIX PEM Ed25519 public key.
func ParsePublicKeyPEM(data []byte) (ed25519.PublicKey, error) {
	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an Ed25519 public key")
	}
	return pub, nil
}

// GenerateKeyPair creates a new signing key pair as PEM blocks.
func GenerateKeyPair() (privatePEM, publicPEM []byte, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}

	privatePEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	publicPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privatePEM, publicPEM, nil
}

// PublicKeyPEM encodes the codec's verification key for embedding in clients.
func (c *Codec) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(c.publicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// SecretReader fetches the signing key from a secret store.
type SecretReader interface {
	ReadSigningKey(ctx context.Context) ([]byte, error)
}

// KeySource lists where the signing key may come from, in priority order:
// a secret store, an inline PEM, then a file path.
type KeySource struct {
	Vault SecretReader
	PEM   string
	Path  string
}

// Load returns the PEM bytes of the first configured source. A configured but
// unreadable source is an error, not a fallthrough.
func (s KeySource) Load(ctx context.Context) ([]byte, error) {
	switch {
	case s.Vault != nil:
		data, err := s.Vault.ReadSigningKey(ctx)
		if err != nil {
			return nil, &SigningError{Op: "load", Err: fmt.Errorf("secret store: %w", err)}
		}
		return data, nil
	case strings.TrimSpace(s.PEM) != "":
		// Env vars often carry PEMs with literal \n
		return []byte(strings.ReplaceAll(s.PEM, `\n`, "\n")), nil
	case s.Path != "":
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, &SigningError{Op: "load", Err: err}
		}
		return data, nil
	default:
		return nil, &SigningError{Op: "load", Err: errors.New("no signing key source configured")}
	}
}
