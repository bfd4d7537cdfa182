package repository

import (
	"context"

	"github.com/necko-moe/necko3-core/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository defines the interface for payment ledger access
type PaymentRepository interface {
	// UpsertObserved inserts an observed transfer, ignoring duplicates on
	// (network, tx_hash, log_index). Returns true when the row was created.
	UpsertObserved(ctx context.Context, payment *models.Payment) (bool, error)

	GetByID(ctx context.Context, id string) (*models.Payment, error)
	ListByInvoice(ctx context.Context, invoiceID string) ([]*models.Payment, error)
	CountsByStatus(ctx context.Context) (map[string]int64, error)

	// Promotion support
	ListRipe(ctx context.Context, chainName string, maxBlock uint64) ([]*models.Payment, error)
	UpdateBlockNumber(ctx context.Context, id string, blockNumber uint64) error
	Retract(ctx context.Context, id string) (bool, error)
}

// paymentRepository implements PaymentRepository
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new PaymentRepository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

// UpsertObserved records a transfer once, no matter how many times its block
// is rescanned
func (r *paymentRepository) UpsertObserved(ctx context.Context, payment *models.Payment) (bool, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "network"},
			{Name: "tx_hash"},
			{Name: "log_index"},
		},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

// GetByID retrieves a payment by ID
func (r *paymentRepository) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListByInvoice retrieves all payments recorded for an invoice
func (r *paymentRepository) ListByInvoice(ctx context.Context, invoiceID string) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("block_number, created_at").
		Find(&payments).Error
	return payments, err
}

// CountsByStatus returns payment counts grouped by status
func (r *paymentRepository) CountsByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Payment{}).
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

// ListRipe returns Confirming payments on a chain that have reached the
// required depth, oldest block first
func (r *paymentRepository) ListRipe(ctx context.Context, chainName string, maxBlock uint64) ([]*models.Payment, error) {
	var payments []*models.Payment
	err := r.db.WithContext(ctx).
		Where("network = ? AND status = ? AND block_number <= ?",
			chainName, models.PaymentStatusConfirming, maxBlock).
		Order("block_number, created_at").
		Find(&payments).Error
	return payments, err
}

// UpdateBlockNumber rebinds a Confirming payment to the block its transaction
// landed in after a reorg moved it
func (r *paymentRepository) UpdateBlockNumber(ctx context.Context, id string, blockNumber uint64) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentStatusConfirming).
		Update("block_number", blockNumber).Error
}

// Retract deletes a Confirming payment whose transaction disappeared in a
// reorg. The status guard makes Confirmed payments unretractable; returns
// false when nothing was deleted.
func (r *paymentRepository) Retract(ctx context.Context, id string) (bool, error) {
	tx := r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.PaymentStatusConfirming).
		Delete(&models.Payment{})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}
