package services

import (
	"context"
	"fmt"
	"log"

	"github.com/necko-moe/necko3-core/internal/events"
	"github.com/necko-moe/necko3-core/internal/interfaces"
	"github.com/necko-moe/necko3-core/internal/metrics"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/repository"
	"github.com/necko-moe/necko3-core/internal/utils"
)

// SettlementService promotes payments that reached confirmation depth and
// settles the invoices they belong to. The database work happens inside a
// single repository transaction; this layer adds metrics and event fan-out
// on top of the committed result.
type SettlementService struct {
	invoiceRepo       repository.InvoiceRepository
	publisher         interfaces.EventPublisher
	pushService       *WebSocketPushService
	webhookMaxRetries int
}

// NewSettlementService wires the settlement pipeline. publisher and
// pushService may be nil when NATS or the ops websocket are disabled.
func NewSettlementService(invoiceRepo repository.InvoiceRepository, publisher interfaces.EventPublisher, pushService *WebSocketPushService, webhookMaxRetries int) *SettlementService {
	if webhookMaxRetries <= 0 {
		webhookMaxRetries = 8
	}
	return &SettlementService{
		invoiceRepo:       invoiceRepo,
		publisher:         publisher,
		pushService:       pushService,
		webhookMaxRetries: webhookMaxRetries,
	}
}

// ConfirmPayment flips one payment to Confirmed and recomputes its invoice.
// confirmations is the depth observed by the caller and only decorates the
// emitted event. Calling this twice for the same payment is harmless.
func (s *SettlementService) ConfirmPayment(ctx context.Context, paymentID string, confirmations uint64) (*repository.SettlementResult, error) {
	result, err := s.invoiceRepo.ApplyConfirmedPayment(ctx, paymentID, s.webhookMaxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to settle payment %s: %w", paymentID, err)
	}
	if result.AlreadyDone {
		return result, nil
	}

	metrics.PaymentsConfirmed.WithLabelValues(result.Payment.Network).Inc()
	log.Printf("✅ [%s] payment %s confirmed for invoice %s (%s %s)",
		result.Payment.Network, result.Payment.TxHash, result.Invoice.ID,
		utils.FormatUnits(result.Payment.AmountRaw, result.Payment.Decimals), result.Payment.TokenSymbol)

	s.emit(events.NewPaymentConfirmed(result.Invoice, result.Payment, confirmations))

	if result.BecamePaid {
		metrics.InvoicesPaid.WithLabelValues(result.Invoice.ChainName).Inc()
		if result.WebhookEnqueued {
			metrics.WebhooksEnqueued.WithLabelValues(models.EventInvoicePaid).Inc()
		}
		log.Printf("💰 [%s] invoice %s fully paid: %s/%s %s",
			result.Invoice.ChainName, result.Invoice.ID,
			utils.FormatUnits(result.Invoice.PaidRaw, result.Invoice.Decimals),
			utils.FormatUnits(result.Invoice.AmountRaw, result.Invoice.Decimals),
			result.Invoice.TokenSymbol)

		s.emit(events.NewInvoicePaid(result.Invoice))
	}

	return result, nil
}

// emit publishes to NATS and mirrors to attached dashboards. Both sinks are
// at-least-once decorations; the webhook queue is the durable notification.
func (s *SettlementService) emit(event events.GatewayEvent) {
	if s.publisher != nil {
		if err := s.publisher.Publish(event); err != nil {
			log.Printf("⚠️ Failed to publish %s event for invoice %s: %v", event.Type, event.InvoiceID, err)
		}
	}
	if s.pushService != nil {
		s.pushService.Broadcast(event)
	}
}
