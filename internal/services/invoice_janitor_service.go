package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/necko-moe/necko3-core/internal/events"
	"github.com/necko-moe/necko3-core/internal/interfaces"
	"github.com/necko-moe/necko3-core/internal/metrics"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/repository"
)

// InvoiceJanitorService periodically expires Pending invoices whose deadline
// passed. The flip and the invoice.expired webhook enqueue happen in one
// repository transaction; this loop only adds metrics and event fan-out.
// An invoice that settles concurrently wins: the expiry update is guarded
// on status = Pending.
type InvoiceJanitorService struct {
	invoiceRepo       repository.InvoiceRepository
	publisher         interfaces.EventPublisher
	pushService       *WebSocketPushService
	interval          time.Duration
	webhookMaxRetries int

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewInvoiceJanitorService wires the expiry sweeper. publisher and
// pushService may be nil.
func NewInvoiceJanitorService(invoiceRepo repository.InvoiceRepository, publisher interfaces.EventPublisher, pushService *WebSocketPushService, interval time.Duration, webhookMaxRetries int) *InvoiceJanitorService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if webhookMaxRetries <= 0 {
		webhookMaxRetries = 8
	}
	return &InvoiceJanitorService{
		invoiceRepo:       invoiceRepo,
		publisher:         publisher,
		pushService:       pushService,
		interval:          interval,
		webhookMaxRetries: webhookMaxRetries,
	}
}

// Start launches the sweep loop.
func (s *InvoiceJanitorService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()
	log.Printf("🚀 Invoice janitor started, sweep interval %s", s.interval)
}

// Stop terminates the loop and waits for an in-flight sweep.
func (s *InvoiceJanitorService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("🛑 Invoice janitor stopped")
}

func (s *InvoiceJanitorService) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(context.Background())
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(context.Background())
		}
	}
}

func (s *InvoiceJanitorService) sweep(ctx context.Context) {
	expired, err := s.invoiceRepo.ExpireDue(ctx, time.Now(), s.webhookMaxRetries)
	if err != nil {
		log.Printf("⚠️ Invoice expiry sweep failed: %v", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	metrics.InvoicesExpired.Add(float64(len(expired)))
	for i := range expired {
		invoice := &expired[i]
		if invoice.WebhookURL != "" {
			metrics.WebhooksEnqueued.WithLabelValues(models.EventInvoiceExpired).Inc()
		}
		log.Printf("⏰ [%s] invoice %s expired unpaid (%s/%s %s)",
			invoice.ChainName, invoice.ID, invoice.PaidRaw, invoice.AmountRaw, invoice.TokenSymbol)

		event := events.NewInvoiceExpired(invoice)
		if s.publisher != nil {
			if err := s.publisher.Publish(event); err != nil {
				log.Printf("⚠️ Failed to publish %s event for invoice %s: %v", event.Type, invoice.ID, err)
			}
		}
		if s.pushService != nil {
			s.pushService.Broadcast(event)
		}
	}
}
