package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OwnerHeader carries the authenticated caller. It is set by the gateway in
// front of this service and trusted as is.
const OwnerHeader = "X-Owner-ID"

const ownerKey = "owner_id"

// RequireOwner rejects requests without an owner and stores it on the context.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(OwnerHeader))
		if owner == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: errOwnerRequired})
			return
		}
		c.Set(ownerKey, owner)
		c.Next()
	}
}

func ownerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}
