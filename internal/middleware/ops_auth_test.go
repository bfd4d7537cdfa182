package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestIssueAndValidateOpsToken(t *testing.T) {
	secret := []byte("test-secret")

	token, err := IssueOpsToken(secret, "alice", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateOpsToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "ops", claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestValidateOpsTokenExpired(t *testing.T) {
	secret := []byte("test-secret")

	token, err := IssueOpsToken(secret, "alice", -time.Minute)
	require.NoError(t, err)

	_, err = ValidateOpsToken(secret, token)
	assert.Error(t, err)
}

func TestValidateOpsTokenWrongSecret(t *testing.T) {
	token, err := IssueOpsToken([]byte("secret-a"), "alice", time.Hour)
	require.NoError(t, err)

	_, err = ValidateOpsToken([]byte("secret-b"), token)
	assert.Error(t, err)
}

func TestValidateOpsTokenRejectsUnsignedAlgorithm(t *testing.T) {
	claims := OpsJWTClaims{
		Subject: "mallory",
		Role:    "ops",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ValidateOpsToken([]byte("test-secret"), unsigned)
	require.Error(t, err)
}

func TestOpsTokenEmptySecret(t *testing.T) {
	_, err := IssueOpsToken(nil, "alice", time.Hour)
	assert.Error(t, err)

	_, err = ValidateOpsToken(nil, "whatever")
	assert.Error(t, err)
}

// guardRouter mounts Guard in front of a probe handler that echoes the
// authenticated subject.
func guardRouter(ipGuard *LocalhostOnly, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	auth := NewOpsAuth(testLogger(), ipGuard, secret)
	router.GET("/ops/ping", auth.Guard(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": c.GetString("ops_subject")})
	})
	return router
}

func opsRequest(remoteAddr, authHeader string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/ops/ping", nil)
	req.RemoteAddr = remoteAddr
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	return req
}

func TestGuardRejectsMissingHeader(t *testing.T) {
	router := guardRouter(nil, "test-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, opsRequest("203.0.113.5:43210", ""))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "MISSING_AUTH_HEADER")
}

func TestGuardRejectsMalformedHeader(t *testing.T) {
	router := guardRouter(nil, "test-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, opsRequest("203.0.113.5:43210", "Token abc"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_AUTH_FORMAT")
}

func TestGuardRejectsInvalidToken(t *testing.T) {
	router := guardRouter(nil, "test-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, opsRequest("203.0.113.5:43210", "Bearer not-a-jwt"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestGuardAcceptsValidToken(t *testing.T) {
	router := guardRouter(nil, "test-secret")

	token, err := IssueOpsToken([]byte("test-secret"), "alice", time.Hour)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, opsRequest("203.0.113.5:43210", "Bearer "+token))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"subject":"alice"`)
}

func TestGuardAdmitsLoopbackWithoutToken(t *testing.T) {
	ipGuard := NewLocalhostOnly(testLogger(), nil)
	router := guardRouter(ipGuard, "test-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, opsRequest("127.0.0.1:50000", ""))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardAdmitsWhitelistedCIDRWithoutToken(t *testing.T) {
	ipGuard := NewLocalhostOnly(testLogger(), []string{"10.0.0.0/8"})
	router := guardRouter(ipGuard, "test-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, opsRequest("10.1.2.3:50000", ""))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardOutsideWhitelistStillNeedsToken(t *testing.T) {
	ipGuard := NewLocalhostOnly(testLogger(), []string{"10.0.0.0/8"})
	router := guardRouter(ipGuard, "test-secret")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, opsRequest("203.0.113.5:50000", ""))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := IssueOpsToken([]byte("test-secret"), "bob", time.Hour)
	require.NoError(t, err)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, opsRequest("203.0.113.5:50000", "Bearer "+token))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRestrictBlocksOutsideIPs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	guard := NewLocalhostOnly(testLogger(), []string{"192.168.1.10"})
	router.GET("/internal", guard.Restrict(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.RemoteAddr = "203.0.113.5:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "IP_NOT_ALLOWED")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.RemoteAddr = "192.168.1.10:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "exact whitelist entries pass")

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/internal", nil)
	req.RemoteAddr = "[::1]:1234"
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "loopback always passes")
}
