package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/necko-moe/necko3-core/internal/events"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SettlementResult reports what one confirmed payment did to its invoice.
type SettlementResult struct {
	Invoice         *models.Invoice
	Payment         *models.Payment
	BecamePaid      bool // this payment crossed the threshold and flipped the invoice
	AlreadyDone     bool // payment was already Confirmed, nothing written
	WebhookEnqueued bool
}

// InvoiceRepository defines the interface for invoice data access
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *models.Invoice) error
	GetByID(ctx context.Context, id string) (*models.Invoice, error)
	List(ctx context.Context, chainName string, status models.InvoiceStatus, page, pageSize int) ([]*models.Invoice, int64, error)
	CountsByStatus(ctx context.Context) (map[string]int64, error)

	// Address derivation bookkeeping
	NextAddressIndex(ctx context.Context, chainName string) (uint32, error)

	// Watcher support
	WatchSet(ctx context.Context, chainName string) (map[string]*models.Invoice, error)

	// Settlement and expiry. Both bundle their webhook enqueue into the
	// same transaction as the status flip.
	ApplyConfirmedPayment(ctx context.Context, paymentID string, webhookMaxRetries int) (*SettlementResult, error)
	ExpireDue(ctx context.Context, now time.Time, webhookMaxRetries int) ([]models.Invoice, error)
}

// invoiceRepository implements InvoiceRepository
type invoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new InvoiceRepository instance
func NewInvoiceRepository(db *gorm.DB) InvoiceRepository {
	return &invoiceRepository{db: db}
}

// Create persists a new invoice
func (r *invoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

// GetByID retrieves an invoice by ID
func (r *invoiceRepository) GetByID(ctx context.Context, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// List retrieves paginated invoices, optionally filtered by chain and status
func (r *invoiceRepository) List(ctx context.Context, chainName string, status models.InvoiceStatus, page, pageSize int) ([]*models.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Invoice{})
	if chainName != "" {
		query = query.Where("chain_name = ?", chainName)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoices []*models.Invoice
	offset := (page - 1) * pageSize
	err := query.
		Offset(offset).
		Limit(pageSize).
		Order("created_at DESC").
		Find(&invoices).Error

	return invoices, total, err
}

// CountsByStatus returns invoice counts grouped by status
func (r *invoiceRepository) CountsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
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

// NextAddressIndex returns the next unused derivation index for a chain.
// Indexes are never reused: the unique (chain_name, address_index) constraint
// rejects the loser if two creations race, and the caller retries.
func (r *invoiceRepository) NextAddressIndex(ctx context.Context, chainName string) (uint32, error) {
	var max sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("chain_name = ?", chainName).
		Select("MAX(address_index)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return uint32(max.Int64) + 1, nil
}

// WatchSet returns the open deposit addresses for one chain, keyed by
// lowercase address
func (r *invoiceRepository) WatchSet(ctx context.Context, chainName string) (map[string]*models.Invoice, error) {
	var invoices []*models.Invoice
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND status = ?", chainName, models.InvoiceStatusPending).
		Find(&invoices).Error
	if err != nil {
		return nil, err
	}

	watch := make(map[string]*models.Invoice, len(invoices))
	for _, inv := range invoices {
		watch[strings.ToLower(inv.Address)] = inv
	}
	return watch, nil
}

// ApplyConfirmedPayment promotes one payment to Confirmed and settles its
// invoice inside a single transaction: recompute paid_raw as the sum of all
// confirmed payments, flip Pending -> Paid when the sum reaches amount_raw,
// and enqueue the paid webhook on the flip. The invoice row lock serializes
// concurrent promotions, so the flip and its webhook happen exactly once.
//
// Terminal invoices still get the paid_raw bookkeeping (a late payment on an
// Expired invoice is recorded) but their status never changes.
func (r *invoiceRepository) ApplyConfirmedPayment(ctx context.Context, paymentID string, webhookMaxRetries int) (*SettlementResult, error) {
	result := &SettlementResult{}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var payment models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", paymentID).
			First(&payment).Error; err != nil {
			return err
		}

		var invoice models.Invoice
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", payment.InvoiceID).
			First(&invoice).Error; err != nil {
			return err
		}

		result.Payment = &payment
		result.Invoice = &invoice

		if payment.Status == models.PaymentStatusConfirmed {
			result.AlreadyDone = true
			return nil
		}

		if err := tx.Model(&models.Payment{}).
			Where("id = ?", payment.ID).
			Update("status", models.PaymentStatusConfirmed).Error; err != nil {
			return err
		}
		payment.Status = models.PaymentStatusConfirmed

		var confirmedSum string
		if err := tx.Model(&models.Payment{}).
			Where("invoice_id = ? AND status = ?", invoice.ID, models.PaymentStatusConfirmed).
			Select("COALESCE(SUM(amount_raw), 0)::text").
			Scan(&confirmedSum).Error; err != nil {
			return err
		}

		reached, err := utils.CmpRaw(confirmedSum, invoice.AmountRaw)
		if err != nil {
			return err
		}

		if invoice.Status == models.InvoiceStatusPending && reached >= 0 {
			flip := tx.Model(&models.Invoice{}).
				Where("id = ? AND status = ?", invoice.ID, models.InvoiceStatusPending).
				Updates(map[string]interface{}{
					"status":   models.InvoiceStatusPaid,
					"paid_raw": confirmedSum,
				})
			if flip.Error != nil {
				return flip.Error
			}
			if flip.RowsAffected == 0 {
				// Lost a race we should not be able to lose under the row
				// lock; treat as bookkeeping-only.
				return tx.Model(&models.Invoice{}).
					Where("id = ?", invoice.ID).
					Update("paid_raw", confirmedSum).Error
			}

			invoice.Status = models.InvoiceStatusPaid
			invoice.PaidRaw = confirmedSum
			result.BecamePaid = true

			if invoice.WebhookURL != "" {
				payload, err := events.NewInvoicePaid(&invoice).Marshal()
				if err != nil {
					return err
				}
				webhook := &models.Webhook{
					ID:         uuid.New().String(),
					InvoiceID:  invoice.ID,
					EventType:  models.EventInvoicePaid,
					URL:        invoice.WebhookURL,
					Payload:    payload,
					Status:     models.WebhookStatusPending,
					MaxRetries: webhookMaxRetries,
				}
				if err := tx.Create(webhook).Error; err != nil {
					return err
				}
				result.WebhookEnqueued = true
			}
			return nil
		}

		if err := tx.Model(&models.Invoice{}).
			Where("id = ?", invoice.ID).
			Update("paid_raw", confirmedSum).Error; err != nil {
			return err
		}
		invoice.PaidRaw = confirmedSum
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ExpireDue flips every overdue Pending invoice to Expired and enqueues the
// expiry webhooks in the same transaction. The status guard in the WHERE
// clause is the compare-and-set against a concurrent settlement: an invoice
// paid in the same instant is not expired.
func (r *invoiceRepository) ExpireDue(ctx context.Context, now time.Time, webhookMaxRetries int) ([]models.Invoice, error) {
	var expired []models.Invoice

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&expired).
			Clauses(clause.Returning{}).
			Where("status = ? AND expires_at <= ?", models.InvoiceStatusPending, now).
			Update("status", models.InvoiceStatusExpired).Error; err != nil {
			return err
		}

		for i := range expired {
			if expired[i].WebhookURL == "" {
				continue
			}
			payload, err := events.NewInvoiceExpired(&expired[i]).Marshal()
			if err != nil {
				return err
			}
			webhook := &models.Webhook{
				ID:         uuid.New().String(),
				InvoiceID:  expired[i].ID,
				EventType:  models.EventInvoiceExpired,
				URL:        expired[i].WebhookURL,
				Payload:    payload,
				Status:     models.WebhookStatusPending,
				MaxRetries: webhookMaxRetries,
			}
			if err := tx.Create(webhook).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return expired, nil
}
