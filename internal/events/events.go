package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/necko-moe/necko3-core/internal/models"
)

// Stream configuration for the JetStream publisher.
const (
	StreamName     = "GATEWAY_EVENTS"
	SubjectPattern = "gateway.>"
)

// GatewayEvent is the wire form of every settlement/lifecycle notification.
// The same document is stored as the webhook payload snapshot, published to
// NATS and broadcast to websocket subscribers, so receivers on any channel can
// de-duplicate on (invoice_id, type, tx_hash).
type GatewayEvent struct {
	Type          string `json:"type"`
	Chain         string `json:"chain"`
	InvoiceID     string `json:"invoice_id"`
	TokenSymbol   string `json:"token_symbol,omitempty"`
	AmountRaw     string `json:"amount_raw,omitempty"`
	PaidRaw       string `json:"paid_raw,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	Confirmations uint64 `json:"confirmations,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

// Subject returns the NATS subject for the event, one token per chain so
// consumers can subscribe per chain or with gateway.> for everything.
func (e GatewayEvent) Subject() string {
	return fmt.Sprintf("gateway.%s.%s", e.Chain, e.Type)
}

// Marshal renders the payload snapshot stored on webhook rows.
func (e GatewayEvent) Marshal() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return string(data), nil
}

// NewInvoicePaid reports an invoice crossing its settlement threshold.
func NewInvoicePaid(inv *models.Invoice) GatewayEvent {
	return GatewayEvent{
		Type:        models.EventInvoicePaid,
		Chain:       inv.ChainName,
		InvoiceID:   inv.ID,
		TokenSymbol: inv.TokenSymbol,
		AmountRaw:   inv.AmountRaw,
		PaidRaw:     inv.PaidRaw,
		Timestamp:   time.Now().Unix(),
	}
}

// NewInvoiceExpired reports the janitor expiring an overdue invoice.
func NewInvoiceExpired(inv *models.Invoice) GatewayEvent {
	return GatewayEvent{
		Type:        models.EventInvoiceExpired,
		Chain:       inv.ChainName,
		InvoiceID:   inv.ID,
		TokenSymbol: inv.TokenSymbol,
		AmountRaw:   inv.AmountRaw,
		PaidRaw:     inv.PaidRaw,
		Timestamp:   time.Now().Unix(),
	}
}

// NewPaymentConfirmed reports a payment reaching confirmation depth without
// settling the invoice yet.
func NewPaymentConfirmed(inv *models.Invoice, p *models.Payment, confirmations uint64) GatewayEvent {
	return GatewayEvent{
		Type:          models.EventPaymentConfirmed,
		Chain:         p.Network,
		InvoiceID:     inv.ID,
		TokenSymbol:   p.TokenSymbol,
		AmountRaw:     p.AmountRaw,
		PaidRaw:       inv.PaidRaw,
		TxHash:        p.TxHash,
		Confirmations: confirmations,
		Timestamp:     time.Now().Unix(),
	}
}
