package dto

import (
	"time"

	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/utils"
)

// ==================== Ops surface DTOs ====================

// CreateInvoiceRequest is the issuance request body.
type CreateInvoiceRequest struct {
	ChainName     string `json:"chain_name" binding:"required"`              // registry name, e.g. "eth-main"
	TokenSymbol   string `json:"token_symbol"`                               // empty means the chain's native asset
	AmountRaw     string `json:"amount_raw" binding:"required"`              // smallest-unit integer string
	TTLSeconds    int64  `json:"ttl_seconds"`                                // 0 uses the default
	WebhookURL    string `json:"webhook_url" binding:"omitempty,url"`        // lifecycle notification endpoint
	WebhookSecret string `json:"webhook_secret" binding:"omitempty,max=128"` // HMAC key; derived when empty
}

// InvoiceResponse is the invoice shape returned by the ops surface.
// Display amounts are rendered alongside the raw integers.
type InvoiceResponse struct {
	ID            string    `json:"id"`
	Address       string    `json:"address"`
	AddressIndex  uint32    `json:"address_index"`
	ChainName     string    `json:"chain_name"`
	TokenSymbol   string    `json:"token_symbol"`
	Decimals      uint8     `json:"decimals"`
	AmountRaw     string    `json:"amount_raw"`
	Amount        string    `json:"amount"`
	PaidRaw       string    `json:"paid_raw"`
	Paid          string    `json:"paid"`
	Status        string    `json:"status"`
	WebhookURL    string    `json:"webhook_url,omitempty"`
	HasWebhookKey bool      `json:"has_webhook_key"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// UpdateChainPolicyRequest patches runtime chain policy. Pointer fields
// distinguish "leave unchanged" from explicit zero values.
type UpdateChainPolicyRequest struct {
	BlockLag *uint64 `json:"block_lag"` // required confirmation depth
	Enabled  *bool   `json:"enabled"`   // pause/resume the watcher's chain
}

// StatsResponse aggregates status counts for the dashboard.
type StatsResponse struct {
	Invoices      map[string]int64 `json:"invoices"`
	Payments      map[string]int64 `json:"payments"`
	Webhooks      map[string]int64 `json:"webhooks"`
	WSConnections int              `json:"ws_connections"`
}

// NewInvoiceResponse converts a model row, rendering display amounts.
func NewInvoiceResponse(invoice *models.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:            invoice.ID,
		Address:       invoice.Address,
		AddressIndex:  invoice.AddressIndex,
		ChainName:     invoice.ChainName,
		TokenSymbol:   invoice.TokenSymbol,
		Decimals:      invoice.Decimals,
		AmountRaw:     invoice.AmountRaw,
		Amount:        utils.FormatUnits(invoice.AmountRaw, invoice.Decimals),
		PaidRaw:       invoice.PaidRaw,
		Paid:          utils.FormatUnits(invoice.PaidRaw, invoice.Decimals),
		Status:        string(invoice.Status),
		WebhookURL:    invoice.WebhookURL,
		HasWebhookKey: invoice.WebhookSecret != "",
		CreatedAt:     invoice.CreatedAt,
		ExpiresAt:     invoice.ExpiresAt,
	}
}
