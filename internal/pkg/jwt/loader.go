// internal/pkg/jwt/loader.go
package jwt

import (
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
)

// Config points at the identity service's signing key. Tokens are issued
// elsewhere; this service only verifies them.
type Config struct {
	PubPath  string
	Issuer   string
	Audience string
}

// LoadVerifier reads a PKIX, PKCS1 or certificate PEM from PubPath.
func LoadVerifier(cfg Config) (*Verifier, error) {
	raw, err := os.ReadFile(cfg.PubPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key %s: %w", cfg.PubPath, err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", cfg.PubPath, err)
	}
	return NewVerifier(pub, cfg.Issuer, cfg.Audience), nil
}
