package handlers

import (
	"net/http"

	"github.com/necko-moe/necko3-core/internal/db"
	"github.com/necko-moe/necko3-core/internal/metrics"

	"github.com/gin-gonic/gin"
)

// PingHandler liveness probe
// GET /ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// HealthCheckHandler readiness probe, verifies the database connection
// GET /health
func HealthCheckHandler(c *gin.Context) {
	dbStatus := "ok"
	healthy := true

	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.Ping()
	}
	if err != nil {
		dbStatus = err.Error()
		healthy = false
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":   overall,
		"service":  "gateway-core",
		"database": dbStatus,
	})
}
