package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/volunteer-hours-api/internal/authz"
	appErrors "github.com/noah-isme/volunteer-hours-api/pkg/errors"
	"github.com/noah-isme/volunteer-hours-api/pkg/response"
)

// RequireRoles rejects callers whose role is not listed. Ownership checks stay
// in the services; this only trims requests that can never succeed.
func RequireRoles(roles ...authz.Role) gin.HandlerFunc {
	allowed := make(map[authz.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		actor, ok := ActorFromContext(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[actor.Role]; ok {
			c.Next()
			return
		}
		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
