// Package jwttest mints tokens signed with a throwaway key for tests.
package jwttest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	appjwt "billing-service/internal/pkg/jwt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	IssuerName   = "identity-test"
	AudienceName = "billing-test"
)

type Issuer struct {
	priv *rsa.PrivateKey
}

func NewIssuer(t testing.TB) *Issuer {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return &Issuer{priv: priv}
}

// Verifier accepts tokens from this issuer.
func (i *Issuer) Verifier() *appjwt.Verifier {
	return appjwt.NewVerifier(&i.priv.PublicKey, IssuerName, AudienceName)
}

// PublicPEM returns the verification key as a PKIX PEM block.
func (i *Issuer) PublicPEM(t testing.TB) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(&i.priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}

// Token signs an access token for account with roles.
func (i *Issuer) Token(t testing.TB, account uuid.UUID, roles ...string) string {
	t.Helper()
	now := time.Now()
	claims := &appjwt.Claims{
		AccountID: account.String(),
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    IssuerName,
			Subject:   account.String(),
			Audience:  []string{AudienceName},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.priv)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
