// internal/pkg/jwt/verifier.go
package jwt

import (
	"crypto/rsa"
	"errors"
	"time"

	xerrors "billing-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

const clockSkew = 30 * time.Second

// Verifier checks RS256 access tokens against the identity service's key.
type Verifier struct {
	pub    *rsa.PublicKey
	parser *jwt.Parser
}

// NewVerifier builds a verifier; empty issuer or audience skips that check.
func NewVerifier(pub *rsa.PublicKey, issuer, audience string) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{pub: pub, parser: jwt.NewParser(opts...)}
}

// Verify returns the claims of a valid token. Every failure is an
// unauthorized error.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if v.pub == nil {
		return nil, xerrors.New(xerrors.KindInternal, "jwt verifier has no public key")
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.pub, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, xerrors.Tag(xerrors.KindUnauthorized, err, "token expired")
	case err != nil:
		return nil, xerrors.Tag(xerrors.KindUnauthorized, err, "invalid token")
	}

	if _, err := claims.Account(); err != nil {
		return nil, xerrors.Tag(xerrors.KindUnauthorized, err, "invalid token")
	}
	return claims, nil
}
