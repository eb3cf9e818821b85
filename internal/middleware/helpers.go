// internal/middleware/helpers.go
package middleware

import (
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetAccountID returns the authenticated account id.
func GetAccountID(c *gin.Context) (uuid.UUID, bool) {
	raw, exists := c.Get(ctxAccountID)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := raw.(uuid.UUID)
	return id, ok
}

// MustGetAccountID gets the account id from context or panics
func MustGetAccountID(c *gin.Context) uuid.UUID {
	id, ok := GetAccountID(c)
	if !ok {
		panic("account_id not found in context")
	}
	return id
}

// GetRoles gets user roles from context
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get(ctxRoles)
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

func HasRole(c *gin.Context, role string) bool {
	return slices.Contains(GetRoles(c), role)
}

// IsAdmin checks if user is an admin
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, "admin") || HasRole(c, "super_admin")
}
