// Package entitysecret produces the entity secret ciphertext Circle
// requires on every mutating developer-controlled wallet request.
package entitysecret

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const entitySecretLength = 32

// Config holds entity secret configuration. Either a pre-registered
// ciphertext from the Circle dashboard, or the raw hex entity secret plus
// Circle's RSA entity public key for per-request encryption.
type Config struct {
	Ciphertext   string
	EntitySecret string
	PublicKeyPEM string
}

// Service generates entity secret ciphertexts
type Service struct {
	config Config
	logger *zap.Logger
}

// NewService creates a new entity secret service
func NewService(config Config, logger *zap.Logger) *Service {
	return &Service{
		config: config,
		logger: logger,
	}
}

// GenerateEntitySecretCiphertext returns the ciphertext for one request.
// A pre-registered ciphertext is returned as-is; otherwise a fresh
// RSA-OAEP encryption of the entity secret is produced so each request
// carries a unique ciphertext.
func (s *Service) GenerateEntitySecretCiphertext(_ context.Context) (string, error) {
	if ct := strings.TrimSpace(s.config.Ciphertext); ct != "" {
		return ct, nil
	}

	secret, err := hex.DecodeString(strings.TrimSpace(s.config.EntitySecret))
	if err != nil {
		return "", fmt.Errorf("entity secret is not valid hex: %w", err)
	}
	if len(secret) != entitySecretLength {
		return "", fmt.Errorf("entity secret must be %d bytes, got %d", entitySecretLength, len(secret))
	}

	publicKey, err := parsePublicKey(s.config.PublicKeyPEM)
	if err != nil {
		return "", err
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, secret, nil)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt entity secret: %w", err)
	}

	s.logger.Debug("Generated entity secret ciphertext")

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func parsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("entity public key is not valid PEM")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse entity public key: %w", err)
	}

	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("entity public key is not an RSA key")
	}

	return publicKey, nil
}
