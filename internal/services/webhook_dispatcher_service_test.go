package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/necko-moe/necko3-core/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dispatcherFixture struct {
	webhooks *fakeWebhookRepo
	invoices *fakeInvoiceRepo
	sender   *fakeSender
	svc      *WebhookDispatcherService
}

func newDispatcherFixture(opts DispatcherOptions) *dispatcherFixture {
	payments := newFakePaymentRepo()
	fx := &dispatcherFixture{
		webhooks: newFakeWebhookRepo(),
		invoices: newFakeInvoiceRepo(payments),
		sender:   &fakeSender{},
	}
	fx.svc = NewWebhookDispatcherService(fx.webhooks, fx.invoices, fx.sender, opts)
	return fx
}

func (fx *dispatcherFixture) seedWebhook(id string, attempts, maxRetries int) *models.Webhook {
	webhook := models.Webhook{
		ID:         id,
		InvoiceID:  "inv-1",
		EventType:  models.EventInvoicePaid,
		URL:        "https://merchant.example/hook",
		Payload:    fmt.Sprintf(`{"type":"invoice.paid","invoice_id":"inv-1","webhook":%q}`, id),
		Status:     models.WebhookStatusPending,
		Attempts:   attempts,
		MaxRetries: maxRetries,
		NextRetry:  time.Now().Add(-time.Second),
	}
	fx.webhooks.addWebhook(webhook)
	return &webhook
}

func TestDeliverSignsWithInvoiceSecret(t *testing.T) {
	fx := newDispatcherFixture(DispatcherOptions{})
	fx.invoices.addInvoice(models.Invoice{
		ID: "inv-1", ChainName: "testnet", WebhookSecret: "s3cret",
	})
	webhook := fx.seedWebhook("wh-1", 0, 8)

	fx.svc.deliver(context.Background(), webhook)

	sent := fx.sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "https://merchant.example/hook", sent[0].url)
	assert.Equal(t, webhook.Payload, sent[0].payload)
	assert.Equal(t, "s3cret", sent[0].secret)

	stored := fx.webhooks.get("wh-1")
	assert.Equal(t, models.WebhookStatusSent, stored.Status)
	assert.Nil(t, stored.ClaimedAt)
	assert.Empty(t, stored.LastError)
}

func TestDeliverUnsignedWhenInvoiceIsGone(t *testing.T) {
	fx := newDispatcherFixture(DispatcherOptions{})
	webhook := fx.seedWebhook("wh-1", 0, 8)

	fx.svc.deliver(context.Background(), webhook)

	sent := fx.sender.sent()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].secret, "a lost invoice downgrades to unsigned, not undelivered")
	assert.Equal(t, models.WebhookStatusSent, fx.webhooks.get("wh-1").Status)
}

func TestDeliverFailureSchedulesRetry(t *testing.T) {
	fx := newDispatcherFixture(DispatcherOptions{RetryBase: 30 * time.Second, RetryCap: time.Hour})
	fx.sender.err = errors.New("connect: connection refused")
	webhook := fx.seedWebhook("wh-1", 0, 8)

	before := time.Now()
	fx.svc.deliver(context.Background(), webhook)

	stored := fx.webhooks.get("wh-1")
	assert.Equal(t, models.WebhookStatusPending, stored.Status, "back to Pending for the next claim")
	assert.Equal(t, 1, stored.Attempts)
	assert.Nil(t, stored.ClaimedAt)
	assert.Contains(t, stored.LastError, "connection refused")

	assert.True(t, stored.NextRetry.After(before.Add(29*time.Second)),
		"first retry waits at least the base delay, got %s", stored.NextRetry.Sub(before))
	assert.True(t, stored.NextRetry.Before(before.Add(35*time.Second)),
		"first retry is base plus at most 10%% jitter, got %s", stored.NextRetry.Sub(before))
}

func TestDeliverFailureExhaustsRetries(t *testing.T) {
	fx := newDispatcherFixture(DispatcherOptions{})
	fx.sender.err = errors.New("410 Gone")
	webhook := fx.seedWebhook("wh-1", 7, 8)

	fx.svc.deliver(context.Background(), webhook)

	stored := fx.webhooks.get("wh-1")
	assert.Equal(t, models.WebhookStatusFailed, stored.Status)
	assert.Equal(t, 8, stored.Attempts)
	assert.True(t, stored.Exhausted())
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	fx := newDispatcherFixture(DispatcherOptions{RetryBase: 30 * time.Second, RetryCap: time.Hour})

	cases := []struct {
		attempts int
		base     time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{8, time.Hour}, // 30s doubled seven times overshoots the cap
	}

	for _, tc := range cases {
		delay := fx.svc.backoff(tc.attempts)
		assert.GreaterOrEqual(t, delay, tc.base, "attempt %d", tc.attempts)
		assert.LessOrEqual(t, delay, tc.base+tc.base/10+time.Nanosecond, "attempt %d", tc.attempts)
	}
}

func TestDispatcherDrainsQueue(t *testing.T) {
	fx := newDispatcherFixture(DispatcherOptions{
		Workers:         2,
		BatchSize:       4,
		PollInterval:    10 * time.Millisecond,
		ReclaimInterval: time.Hour,
	})
	fx.invoices.addInvoice(models.Invoice{ID: "inv-1", ChainName: "testnet", WebhookSecret: "k"})
	fx.seedWebhook("wh-1", 0, 8)
	fx.seedWebhook("wh-2", 0, 8)

	// not due yet, must survive the drain untouched
	future := models.Webhook{
		ID: "wh-later", InvoiceID: "inv-1", EventType: models.EventInvoiceExpired,
		URL: "https://merchant.example/hook", Payload: "{}",
		Status: models.WebhookStatusPending, MaxRetries: 8,
		NextRetry: time.Now().Add(time.Hour),
	}
	fx.webhooks.addWebhook(future)

	fx.svc.Start()
	defer fx.svc.Stop()

	require.Eventually(t, func() bool {
		return fx.webhooks.get("wh-1").Status == models.WebhookStatusSent &&
			fx.webhooks.get("wh-2").Status == models.WebhookStatusSent
	}, 2*time.Second, 10*time.Millisecond)

	assert.Len(t, fx.sender.sent(), 2)
	assert.Equal(t, models.WebhookStatusPending, fx.webhooks.get("wh-later").Status)
}

func TestDispatcherReclaimsAbandonedClaims(t *testing.T) {
	fx := newDispatcherFixture(DispatcherOptions{
		Workers:         1,
		BatchSize:       4,
		PollInterval:    10 * time.Millisecond,
		ClaimLease:      time.Minute,
		ReclaimInterval: 10 * time.Millisecond,
	})

	// claimed by an instance that died ten minutes ago
	stale := time.Now().Add(-10 * time.Minute)
	fx.webhooks.addWebhook(models.Webhook{
		ID: "wh-orphan", InvoiceID: "inv-1", EventType: models.EventInvoicePaid,
		URL: "https://merchant.example/hook", Payload: "{}",
		Status: models.WebhookStatusProcessing, ClaimedAt: &stale,
		MaxRetries: 8, NextRetry: stale,
	})

	fx.svc.Start()
	defer fx.svc.Stop()

	require.Eventually(t, func() bool {
		return fx.webhooks.get("wh-orphan").Status == models.WebhookStatusSent
	}, 2*time.Second, 10*time.Millisecond, "expired lease returns the row to Pending and it gets delivered")
}

func TestDispatcherStartStopIdempotent(t *testing.T) {
	fx := newDispatcherFixture(DispatcherOptions{PollInterval: time.Hour, ReclaimInterval: time.Hour})

	fx.svc.Start()
	fx.svc.Start()
	fx.svc.Stop()
	fx.svc.Stop()
}
