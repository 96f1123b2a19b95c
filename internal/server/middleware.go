package server

import (
	"net/http"
	"time"

	model "aarath-auction/internal/models"
	"aarath-auction/services/bidding/helpers"
	"aarath-auction/utils"

	"github.com/gin-gonic/gin"
)

// TokenVerifier resolves a bearer token to its user
type TokenVerifier interface {
	Verify(token string) (*model.UserIdentity, error)
}

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if user := helpers.CurrentUser(c); user != nil {
		fields["user_id"] = user.UserID
	}
	utils.Info("HTTP Request", fields)
}

// AuthMiddleware stores the user of a valid Authorization header in the context.
// A missing header passes through; a bad one is rejected.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		user, err := verifier.Verify(header)
		if err != nil {
			utils.JSONError(c, http.StatusUnauthorized, err, "invalid credentials")
			utils.Warn("AuthMiddleware: token rejected", map[string]any{"path": c.Request.URL.Path, "error": err.Error()})
			c.Abort()
			return
		}
		c.Set(helpers.UserContextKey, user)
		c.Next()
	}
}

// RequireUser rejects requests that carry no authenticated user
func RequireUser(c *gin.Context) {
	if helpers.CurrentUser(c) == nil {
		utils.JSONError(c, http.StatusUnauthorized, errMissingCredentials, "authentication required")
		c.Abort()
		return
	}
	c.Next()
}
