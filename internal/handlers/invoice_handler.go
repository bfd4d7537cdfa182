// Invoice Handlers - guarded ops surface
// Issuance plus read access to invoices, their payments and webhook deliveries.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/necko-moe/necko3-core/internal/dto"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// InvoiceHandler handles invoice operations on the ops surface.
type InvoiceHandler struct {
	invoiceService *services.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler instance
func NewInvoiceHandler(invoiceService *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
	}
}

// CreateInvoiceHandler issues a new invoice with a freshly derived address
// POST /ops/invoices
func (h *InvoiceHandler) CreateInvoiceHandler(c *gin.Context) {
	var req dto.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), services.CreateInvoiceInput{
		ChainName:     req.ChainName,
		TokenSymbol:   req.TokenSymbol,
		AmountRaw:     req.AmountRaw,
		TTL:           time.Duration(req.TTLSeconds) * time.Second,
		WebhookURL:    req.WebhookURL,
		WebhookSecret: req.WebhookSecret,
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create invoice", "details": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"invoice": dto.NewInvoiceResponse(invoice),
	})
}

// GetInvoiceHandler returns one invoice with its payments and deliveries
// GET /ops/invoices/:id
func (h *InvoiceHandler) GetInvoiceHandler(c *gin.Context) {
	id := c.Param("id")

	invoice, payments, webhooks, err := h.invoiceService.GetInvoice(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Invoice not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch invoice", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"invoice":  dto.NewInvoiceResponse(invoice),
		"payments": payments,
		"webhooks": webhooks,
	})
}

// ListInvoicesHandler pages invoices, optionally filtered by chain and status
// GET /ops/invoices?chain=&status=&page=&page_size=
func (h *InvoiceHandler) ListInvoicesHandler(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	chainName := c.Query("chain")
	status := models.InvoiceStatus(c.Query("status"))

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), chainName, status, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list invoices", "details": err.Error()})
		return
	}

	responses := make([]dto.InvoiceResponse, 0, len(invoices))
	for _, invoice := range invoices {
		responses = append(responses, dto.NewInvoiceResponse(invoice))
	}

	c.JSON(http.StatusOK, gin.H{
		"invoices":  responses,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
