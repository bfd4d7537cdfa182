package services

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/necko-moe/necko3-core/internal/interfaces"
	"github.com/necko-moe/necko3-core/internal/metrics"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/repository"
)

// WebhookDispatcherService drains the webhook queue with a small worker
// pool. Rows are claimed with SELECT ... FOR UPDATE SKIP LOCKED so several
// gateway instances can dispatch concurrently without double delivery; a
// claim that dies with its process is returned to Pending by the reclaim
// sweep once its lease expires.
type WebhookDispatcherService struct {
	webhookRepo repository.WebhookRepository
	invoiceRepo repository.InvoiceRepository
	sender      interfaces.WebhookSender

	workers         int
	batchSize       int
	pollInterval    time.Duration
	retryBase       time.Duration
	retryCap        time.Duration
	claimLease      time.Duration
	reclaimInterval time.Duration

	jobs    chan *models.Webhook
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// DispatcherOptions tunes the delivery loop. Zero values fall back to
// defaults suited to a single modest gateway instance.
type DispatcherOptions struct {
	Workers         int
	BatchSize       int
	PollInterval    time.Duration
	RetryBase       time.Duration
	RetryCap        time.Duration
	ClaimLease      time.Duration
	ReclaimInterval time.Duration
}

// NewWebhookDispatcherService wires the dispatcher. The invoice repository
// is needed to load each invoice's signing secret at delivery time.
func NewWebhookDispatcherService(webhookRepo repository.WebhookRepository, invoiceRepo repository.InvoiceRepository, sender interfaces.WebhookSender, opts DispatcherOptions) *WebhookDispatcherService {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 16
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 30 * time.Second
	}
	if opts.RetryCap <= 0 {
		opts.RetryCap = time.Hour
	}
	if opts.ClaimLease <= 0 {
		opts.ClaimLease = 5 * time.Minute
	}
	if opts.ReclaimInterval <= 0 {
		opts.ReclaimInterval = time.Minute
	}
	return &WebhookDispatcherService{
		webhookRepo:     webhookRepo,
		invoiceRepo:     invoiceRepo,
		sender:          sender,
		workers:         opts.Workers,
		batchSize:       opts.BatchSize,
		pollInterval:    opts.PollInterval,
		retryBase:       opts.RetryBase,
		retryCap:        opts.RetryCap,
		claimLease:      opts.ClaimLease,
		reclaimInterval: opts.ReclaimInterval,
	}
}

// Start launches the claim loop, the reclaim loop and the worker pool.
func (s *WebhookDispatcherService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.jobs = make(chan *models.Webhook)
	s.mu.Unlock()

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.claimLoop()
	s.wg.Add(1)
	go s.reclaimLoop()

	log.Printf("🚀 Webhook dispatcher started: %d workers, batch %d, poll %s", s.workers, s.batchSize, s.pollInterval)
}

// Stop terminates the loops and waits for in-flight deliveries.
func (s *WebhookDispatcherService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("🛑 Webhook dispatcher stopped")
}

func (s *WebhookDispatcherService) claimLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.claimAndDispatch(context.Background())
		}
	}
}

func (s *WebhookDispatcherService) claimAndDispatch(ctx context.Context) {
	claimed, err := s.webhookRepo.ClaimDue(ctx, s.batchSize, time.Now())
	if err != nil {
		log.Printf("⚠️ Webhook claim failed: %v", err)
		return
	}

	for _, webhook := range claimed {
		select {
		case s.jobs <- webhook:
		case <-s.stopCh:
			// claimed rows left Processing here come back via the
			// reclaim sweep after the lease expires
			return
		}
	}
}

func (s *WebhookDispatcherService) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case webhook := <-s.jobs:
			s.deliver(context.Background(), webhook)
		}
	}
}

// deliver sends one webhook and books the outcome.
func (s *WebhookDispatcherService) deliver(ctx context.Context, webhook *models.Webhook) {
	secret := ""
	if invoice, err := s.invoiceRepo.GetByID(ctx, webhook.InvoiceID); err == nil {
		secret = invoice.WebhookSecret
	} else {
		log.Printf("⚠️ Failed to load invoice %s for webhook %s, sending unsigned: %v", webhook.InvoiceID, webhook.ID, err)
	}

	start := time.Now()
	err := s.sender.Send(ctx, webhook.URL, []byte(webhook.Payload), secret)
	metrics.WebhookDeliveryDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.WebhookDeliveries.WithLabelValues("success").Inc()
		if dbErr := s.webhookRepo.MarkSent(ctx, webhook.ID); dbErr != nil {
			log.Printf("⚠️ Failed to mark webhook %s sent: %v", webhook.ID, dbErr)
			return
		}
		log.Printf("📨 Webhook %s (%s) delivered to %s", webhook.ID, webhook.EventType, webhook.URL)
		return
	}

	attempts := webhook.Attempts + 1
	terminal := attempts >= webhook.MaxRetries
	nextRetry := time.Now().Add(s.backoff(attempts))

	if terminal {
		metrics.WebhookDeliveries.WithLabelValues("failed").Inc()
		log.Printf("❌ Webhook %s (%s) failed permanently after %d attempts: %v", webhook.ID, webhook.EventType, attempts, err)
	} else {
		metrics.WebhookDeliveries.WithLabelValues("retry").Inc()
		log.Printf("⚠️ Webhook %s attempt %d/%d failed, retry at %s: %v",
			webhook.ID, attempts, webhook.MaxRetries, nextRetry.Format(time.RFC3339), err)
	}

	if dbErr := s.webhookRepo.RecordFailure(ctx, webhook.ID, attempts, terminal, nextRetry, err.Error()); dbErr != nil {
		log.Printf("⚠️ Failed to record webhook %s failure: %v", webhook.ID, dbErr)
	}
}

// backoff doubles from retryBase per prior attempt, capped at retryCap,
// plus up to 10% jitter so a burst of failures spreads back out.
func (s *WebhookDispatcherService) backoff(attempts int) time.Duration {
	delay := s.retryBase
	for i := 1; i < attempts && delay < s.retryCap; i++ {
		delay *= 2
	}
	if delay > s.retryCap {
		delay = s.retryCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

func (s *WebhookDispatcherService) reclaimLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			count, err := s.webhookRepo.ReclaimAbandoned(context.Background(), time.Now().Add(-s.claimLease))
			if err != nil {
				log.Printf("⚠️ Webhook reclaim sweep failed: %v", err)
				continue
			}
			if count > 0 {
				metrics.WebhooksReclaimed.Add(float64(count))
				log.Printf("♻️ Reclaimed %d abandoned webhook claims", count)
			}
		}
	}
}
