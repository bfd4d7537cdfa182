package router

import (
	"net/http"
	"os"
	"strings"

	"github.com/necko-moe/necko3-core/internal/config"
	"github.com/necko-moe/necko3-core/internal/handlers"
	"github.com/necko-moe/necko3-core/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware CORS middleware
// Priority: Environment Variable > Default (*)
func corsMiddleware() gin.HandlerFunc {
	allowedOrigins := []string{"*"}
	if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
		allowedOrigins = allowedOrigins[:0]
		for _, origin := range strings.Split(envOrigins, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				allowedOrigins = append(allowedOrigins, trimmed)
			}
		}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if allowed == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SetupRouter assembles the HTTP surface: open probes and metrics, plus the
// guarded /ops group and the event websocket.
func SetupRouter(
	logger *logrus.Logger,
	invoiceHandler *handlers.InvoiceHandler,
	chainHandler *handlers.ChainHandler,
	statsHandler *handlers.StatsHandler,
	wsHandler *handlers.WebSocketHandler,
) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())

	var allowedIPs []string
	jwtSecret := ""
	if config.AppConfig != nil {
		allowedIPs = config.AppConfig.Ops.AllowedIPs
		jwtSecret = config.AppConfig.Ops.JWTSecret
	}
	if len(allowedIPs) > 0 {
		logger.WithFields(logrus.Fields{
			"allowed_ips": allowedIPs,
			"count":       len(allowedIPs),
		}).Info("Ops API IP whitelist configured")
	} else {
		logger.Info("No ops.allowedIPs configured, whitelist is localhost-only")
	}

	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)
	opsAuth := middleware.NewOpsAuth(logger, localhostOnly, jwtSecret)

	// ============ Probes ============
	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", handlers.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ Guarded Ops API ============
	ops := r.Group("/ops", opsAuth.Guard())
	{
		ops.POST("/invoices", invoiceHandler.CreateInvoiceHandler)
		ops.GET("/invoices", invoiceHandler.ListInvoicesHandler)
		ops.GET("/invoices/:id", invoiceHandler.GetInvoiceHandler)

		ops.GET("/chains", chainHandler.ListChainsHandler)
		ops.PATCH("/chains/:name", chainHandler.UpdateChainPolicyHandler)

		ops.GET("/stats", statsHandler.GetStatsHandler)
	}

	// ============ Event Stream ============
	r.GET("/ws", opsAuth.Guard(), wsHandler.HandleConnection)

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message": "Endpoint not found",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}
