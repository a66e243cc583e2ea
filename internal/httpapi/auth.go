package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// claims is the JWT payload spiral-server issues and verifies. It
// carries no identity beyond a subject — the server has no user
// accounts, only callers authorized to submit documents — mirroring
// the teacher's bearer-token shape without its user/role fields.
type claims struct {
	jwt.RegisteredClaims
}

// IssueToken mints a bearer token for subject, valid for ttl, signed
// with secret via HS256.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(secret))
}

// RequireAuth validates a bearer JWT on every request, mirroring the
// teacher's auth middleware shape referenced by the specification's
// HTTP surface: a missing or malformed header is UNAUTHORIZED, an
// expired or otherwise invalid token is its own distinct APIError.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(ErrUnauthorized.HTTPStatus, ErrUnauthorized)
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		if err != nil {
			if strings.Contains(err.Error(), "expired") {
				c.AbortWithStatusJSON(ErrTokenExpired.HTTPStatus, ErrTokenExpired)
				return
			}
			c.AbortWithStatusJSON(ErrInvalidToken.HTTPStatus, ErrInvalidToken)
			return
		}
		if !parsed.Valid {
			c.AbortWithStatusJSON(ErrInvalidToken.HTTPStatus, ErrInvalidToken)
			return
		}
		c.Set("subject", parsed.Claims.(*claims).Subject)
		c.Next()
	}
}
