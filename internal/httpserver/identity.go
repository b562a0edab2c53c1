package httpserver

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity is established by the auth layer in front of this service and
// arrives as trusted headers.
const (
	headerUserID     = "X-User-ID"
	headerSellerID   = "X-Seller-ID"
	headerAdminToken = "X-Admin-Token"

	userKey   = "userID"
	sellerKey = "sellerProfileID"
)

func requireUser() gin.HandlerFunc {
	return requireHeader(headerUserID, userKey)
}

func requireSeller() gin.HandlerFunc {
	return requireHeader(headerSellerID, sellerKey)
}

func requireHeader(header, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v := strings.TrimSpace(c.GetHeader(header))
		if v == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": header + " header required"})
			return
		}
		c.Set(key, v)
		c.Next()
	}
}

// requireAdmin rejects every request when no admin token is configured.
func requireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(headerAdminToken)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetString(userKey)
}

func sellerID(c *gin.Context) string {
	return c.GetString(sellerKey)
}
