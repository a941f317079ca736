package middleware

import (
	"context"
	"net/http"
	"strings"

	"enchant-server/shared/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContextKeyUserID is the gin context key the authenticated user id is
// stored under.
const ContextKeyUserID = "userID"

// TokenVerifier validates a bearer token and returns its claims.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, tokenString string) (*models.Claims, error)
}

// AuthMiddlewareForGin extracts and verifies the Authorization bearer token
// and stores the user id in the request context.
func AuthMiddlewareForGin(verifier TokenVerifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization header is missing"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authorization header format must be Bearer {token}"})
			return
		}

		claims, err := verifier.VerifyToken(c.Request.Context(), parts[1])
		if err != nil {
			log.Debug("Token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid or expired token"})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Next()
	}
}

// UserIDFromContext returns the authenticated user id stored by the auth
// middleware.
func UserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}
