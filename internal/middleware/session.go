package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/talentgrid/assessment-backend/internal/response"
)

// ContextKeySessionID is the Gin context key for the parsed :session_id.
const ContextKeySessionID = "session_id"

// SessionIDParam parses the :session_id path parameter and rejects malformed IDs
// before any handler touches the session registry.
func SessionIDParam() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("session_id"))
		if err != nil {
			response.AbortFail(c, http.StatusBadRequest, response.ErrInvalidID)
			return
		}
		c.Set(ContextKeySessionID, id)
		c.Next()
	}
}

// GetSessionID returns the ID stored by SessionIDParam.
func GetSessionID(c *gin.Context) uuid.UUID {
	if v, ok := c.Get(ContextKeySessionID); ok {
		if id, ok := v.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}
