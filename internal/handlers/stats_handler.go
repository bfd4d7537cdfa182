// Stats Handler - guarded ops surface
package handlers

import (
	"net/http"

	"github.com/necko-moe/necko3-core/internal/dto"
	"github.com/necko-moe/necko3-core/internal/repository"
	"github.com/necko-moe/necko3-core/internal/services"

	"github.com/gin-gonic/gin"
)

// StatsHandler aggregates status counts for the ops dashboard.
type StatsHandler struct {
	invoiceRepo repository.InvoiceRepository
	paymentRepo repository.PaymentRepository
	webhookRepo repository.WebhookRepository
	pushService *services.WebSocketPushService
}

// NewStatsHandler creates a new StatsHandler instance
func NewStatsHandler(invoiceRepo repository.InvoiceRepository, paymentRepo repository.PaymentRepository, webhookRepo repository.WebhookRepository, pushService *services.WebSocketPushService) *StatsHandler {
	return &StatsHandler{
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		webhookRepo: webhookRepo,
		pushService: pushService,
	}
}

// GetStatsHandler returns invoice/payment/webhook counts grouped by status
// GET /ops/stats
func (h *StatsHandler) GetStatsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	invoiceCounts, err := h.invoiceRepo.CountsByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count invoices", "details": err.Error()})
		return
	}
	paymentCounts, err := h.paymentRepo.CountsByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count payments", "details": err.Error()})
		return
	}
	webhookCounts, err := h.webhookRepo.CountsByStatus(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count webhooks", "details": err.Error()})
		return
	}

	wsConnections := 0
	if h.pushService != nil {
		wsConnections = h.pushService.GetActiveConnections()
	}

	c.JSON(http.StatusOK, dto.StatsResponse{
		Invoices:      invoiceCounts,
		Payments:      paymentCounts,
		Webhooks:      webhookCounts,
		WSConnections: wsConnections,
	})
}
