package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly restricts access to loopback plus a configured whitelist of
// IPs or CIDR ranges. The ops surface sits behind it.
type LocalhostOnly struct {
	logger     *logrus.Logger
	allowedIPs []string
}

// NewLocalhostOnly creates the IP restriction middleware. allowedIPs may mix
// plain addresses and CIDR ranges; loopback is always allowed.
func NewLocalhostOnly(logger *logrus.Logger, allowedIPs []string) *LocalhostOnly {
	return &LocalhostOnly{
		logger:     logger,
		allowedIPs: allowedIPs,
	}
}

// AllowedRequest reports whether the request origin passes the IP check.
// c.ClientIP() honours trusted proxies configured on the engine; when a
// proxy header lies but the direct connection is loopback, the direct
// connection wins.
func (l *LocalhostOnly) AllowedRequest(c *gin.Context) bool {
	clientIP := c.ClientIP()
	if l.isAllowedIP(clientIP) {
		return true
	}

	remoteIP, _, _ := net.SplitHostPort(c.Request.RemoteAddr)
	if remoteIP != clientIP && isLocalhost(remoteIP) {
		l.logger.WithFields(logrus.Fields{
			"client_ip": clientIP,
			"remote_ip": remoteIP,
			"path":      c.Request.URL.Path,
		}).Warn("ClientIP denied but direct connection is loopback, allowing")
		return true
	}
	return false
}

// Restrict rejects requests whose origin fails the IP check.
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.AllowedRequest(c) {
			l.logger.WithFields(logrus.Fields{
				"client_ip":  c.ClientIP(),
				"path":       c.Request.URL.Path,
				"method":     c.Request.Method,
				"user_agent": c.GetHeader("User-Agent"),
			}).Warn("Rejected non-whitelisted access to restricted API")

			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "This API is only accessible from allowed IP addresses",
				"code":    "IP_NOT_ALLOWED",
			})
			return
		}
		c.Next()
	}
}

// isLocalhost checks whether ip is a loopback address.
func isLocalhost(ip string) bool {
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return ip == "localhost"
	}
	return parsedIP.IsLoopback()
}

// isAllowedIP checks ip against loopback and the whitelist (exact or CIDR).
func (l *LocalhostOnly) isAllowedIP(ip string) bool {
	if isLocalhost(ip) {
		return true
	}
	if len(l.allowedIPs) == 0 {
		return false
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, allowed := range l.allowedIPs {
		allowed = strings.TrimSpace(allowed)
		if strings.Contains(allowed, "/") {
			_, ipNet, err := net.ParseCIDR(allowed)
			if err != nil {
				l.logger.WithFields(logrus.Fields{
					"allowed": allowed,
					"error":   err.Error(),
				}).Warn("Invalid CIDR in allowedIPs")
				continue
			}
			if ipNet.Contains(parsedIP) {
				return true
			}
		} else if allowedIP := net.ParseIP(allowed); allowedIP != nil && allowedIP.Equal(parsedIP) {
			return true
		}
	}

	l.logger.WithFields(logrus.Fields{
		"ip":         ip,
		"allowedIPs": l.allowedIPs,
	}).Debug("IP not found in whitelist")
	return false
}
