package repository

import (
	"context"
	"time"

	"github.com/necko-moe/necko3-core/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookRepository defines the interface for the webhook delivery queue
type WebhookRepository interface {
	Enqueue(ctx context.Context, webhook *models.Webhook) error
	GetByID(ctx context.Context, id string) (*models.Webhook, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*models.Webhook, error)
	CountsByStatus(ctx context.Context) (map[string]int64, error)

	// Claim lifecycle. ClaimDue moves due Pending rows to Processing and
	// stamps claimed_at; SKIP LOCKED keeps concurrent dispatchers from
	// claiming the same rows.
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]*models.Webhook, error)
	MarkSent(ctx context.Context, id string) error
	RecordFailure(ctx context.Context, id string, attempts int, terminal bool, nextRetry time.Time, lastError string) error
	ReclaimAbandoned(ctx context.Context, olderThan time.Time) (int64, error)
}

// webhookRepository implements WebhookRepository
type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new WebhookRepository instance
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

// Enqueue persists a webhook for delivery
func (r *webhookRepository) Enqueue(ctx context.Context, webhook *models.Webhook) error {
	return r.db.WithContext(ctx).Create(webhook).Error
}

// GetByID retrieves a webhook by ID
func (r *webhookRepository) GetByID(ctx context.Context, id string) (*models.Webhook, error) {
	var webhook models.Webhook
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&webhook).Error
	if err != nil {
		return nil, err
	}
	return &webhook, nil
}

// ListByInvoice retrieves all webhooks recorded for an invoice
func (r *webhookRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*models.Webhook, error) {
	var webhooks []*models.Webhook
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at").
		Find(&webhooks).Error
	return webhooks, err
}

// CountsByStatus returns webhook counts grouped by status
func (r *webhookRepository) CountsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Webhook{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ClaimDue claims up to limit due webhooks for delivery
func (r *webhookRepository) ClaimDue(ctx context.Context, limit int, now time.Time) ([]*models.Webhook, error) {
	var claimed []*models.Webhook

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []*models.Webhook
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_retry <= ?", models.WebhookStatusPending, now).
			Order("next_retry").
			Limit(limit).
			Find(&due).Error; err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		ids := make([]string, len(due))
		for i, w := range due {
			ids[i] = w.ID
		}
		if err := tx.Model(&models.Webhook{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     models.WebhookStatusProcessing,
				"claimed_at": now,
			}).Error; err != nil {
			return err
		}

		claimTime := now
		for _, w := range due {
			w.Status = models.WebhookStatusProcessing
			w.ClaimedAt = &claimTime
		}
		claimed = due
		return nil
	})
	if err != nil {
		return nil, err
	}

	return claimed, nil
}

// MarkSent finalizes a delivered webhook
func (r *webhookRepository) MarkSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&models.Webhook{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.WebhookStatusSent,
			"claimed_at": nil,
			"last_error": "",
		}).Error
}

// RecordFailure books a failed attempt: terminal failures park the row as
// Failed, the rest go back to Pending with the next retry time
func (r *webhookRepository) RecordFailure(ctx context.Context, id string, attempts int, terminal bool, nextRetry time.Time, lastError string) error {
	status := models.WebhookStatusPending
	if terminal {
		status = models.WebhookStatusFailed
	}

	return r.db.WithContext(ctx).
		Model(&models.Webhook{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"attempts":   attempts,
			"next_retry": nextRetry,
			"claimed_at": nil,
			"last_error": lastError,
		}).Error
}

// ReclaimAbandoned returns Processing rows with a stale claim to Pending.
// A worker that died mid-delivery holds its claim only until the lease runs
// out; the delivery is then retried, which is the at-least-once contract.
func (r *webhookRepository) ReclaimAbandoned(ctx context.Context, olderThan time.Time) (int64, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Webhook{}).
		Where("status = ? AND claimed_at IS NOT NULL AND claimed_at <= ?",
			models.WebhookStatusProcessing, olderThan).
		Updates(map[string]interface{}{
			"status":     models.WebhookStatusPending,
			"claimed_at": nil,
		})
	if tx.Error != nil {
		return 0, tx.Error
	}
	return tx.RowsAffected, nil
}
