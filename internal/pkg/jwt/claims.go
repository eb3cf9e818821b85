// internal/pkg/jwt/claims.go
package jwt

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims represents the JWT claims issued by the identity service.
type Claims struct {
	AccountID string   `json:"account_id"`
	Roles     []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Account returns the account id, falling back to the subject.
func (c *Claims) Account() (uuid.UUID, error) {
	raw := c.AccountID
	if raw == "" {
		raw = c.Subject
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid account id in token: %w", err)
	}
	return id, nil
}
