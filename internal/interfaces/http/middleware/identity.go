package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/interfaces/http/dto"
)

const (
	// UserIDHeader carries the caller identity set by the upstream gateway
	UserIDHeader = "X-User-ID"
	// UserIDKey is the gin context key holding the parsed caller id
	UserIDKey = "user_id"
	// RequestIDKey is the gin context key set by logger.RequestID
	RequestIDKey = "request_id"
)

// RequireUser rejects requests without a valid X-User-ID header and stores
// the parsed id under UserIDKey.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized,
				"A valid "+UserIDHeader+" header is required",
				c.GetString(RequestIDKey),
			))
			return
		}
		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// OptionalUser stores the caller id when a valid header is present and lets
// anonymous requests through.
func OptionalUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := parseUserID(c); ok {
			c.Set(UserIDKey, userID)
		}
		c.Next()
	}
}

// GetUserID returns the caller id, uuid.Nil for anonymous requests
func GetUserID(c *gin.Context) uuid.UUID {
	if v, exists := c.Get(UserIDKey); exists {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func parseUserID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.GetHeader(UserIDHeader)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
