package middleware

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/loandesk/internal/auth"
	"github.com/charlesng35/loandesk/pkg/errors"
	"github.com/charlesng35/loandesk/pkg/response"
)

const (
	CtxClaimsKey   = "authClaims"
	CtxUserIDKey   = "userID"
	CtxUserNameKey = "userName"
)

// Auth enforces bearer JWT authentication and exposes the acting staff member to handlers.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := iauth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// every validation failure is a plain 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.Name != "" {
			c.Set(CtxUserNameKey, claims.Name)
		}

		c.Next()
	}
}
