package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// OpsJWTClaims is the token payload for the guarded ops surface.
type OpsJWTClaims struct {
	Subject string `json:"sub_name"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

// OpsAuth guards the /ops surface: requests from whitelisted IPs pass
// directly, everything else needs a valid HS256 bearer token.
type OpsAuth struct {
	logger  *logrus.Logger
	ipGuard *LocalhostOnly
	secret  []byte
}

// NewOpsAuth creates the ops guard. ipGuard may be nil to force token auth
// for every caller.
func NewOpsAuth(logger *logrus.Logger, ipGuard *LocalhostOnly, secret string) *OpsAuth {
	return &OpsAuth{
		logger:  logger,
		ipGuard: ipGuard,
		secret:  []byte(secret),
	}
}

// Guard admits whitelisted IPs or valid bearer tokens.
func (a *OpsAuth) Guard() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.ipGuard != nil && a.ipGuard.AllowedRequest(c) {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.logger.WithFields(logrus.Fields{
				"client_ip": c.ClientIP(),
				"path":      c.Request.URL.Path,
			}).Warn("Ops auth failed - not whitelisted and no Authorization header")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authentication required",
				"code":    "MISSING_AUTH_HEADER",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid authorization format, need Bearer token",
				"code":    "INVALID_AUTH_FORMAT",
			})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := ValidateOpsToken(a.secret, tokenString)
		if err != nil {
			a.logger.WithFields(logrus.Fields{
				"client_ip": c.ClientIP(),
				"path":      c.Request.URL.Path,
				"error":     err.Error(),
			}).Warn("Ops auth failed - invalid token")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
				"code":    "INVALID_TOKEN",
			})
			return
		}

		c.Set("ops_subject", claims.Subject)
		c.Set("ops_role", claims.Role)
		c.Next()
	}
}

// IssueOpsToken signs an HS256 ops token. Used by cmd/gen-ops-token and tests.
func IssueOpsToken(secret []byte, subject string, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("empty ops JWT secret")
	}
	now := time.Now()
	claims := OpsJWTClaims{
		Subject: subject,
		Role:    "ops",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateOpsToken parses and verifies an ops token.
func ValidateOpsToken(secret []byte, tokenString string) (*OpsJWTClaims, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("ops JWT secret not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &OpsJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*OpsJWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
