package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DriverIDKey is the gin context key holding the authenticated driver ID.
const DriverIDKey = "driver_id"

// invalidTokenMessage is the body agents recognise as an expired access token.
const invalidTokenMessage = "Token is invalid"

// TokenVerifier validates an access token and returns its subject.
type TokenVerifier interface {
	VerifyAccess(token string) (string, error)
}

// AuthMiddleware rejects requests without a valid bearer access token.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortInvalidToken(c)
			return
		}

		driverID, err := verifier.VerifyAccess(token)
		if err != nil {
			abortInvalidToken(c)
			return
		}

		c.Set(DriverIDKey, driverID)
		c.Next()
	}
}

// DriverID returns the driver authenticated by AuthMiddleware.
func DriverID(c *gin.Context) string {
	return c.GetString(DriverIDKey)
}

func abortInvalidToken(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": invalidTokenMessage})
}
