// Package repository provides data access interfaces and implementations
package repository

import (
	"context"

	"github.com/necko-moe/necko3-core/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChainRepository defines the interface for chain registry access
type ChainRepository interface {
	// Registry sync and lookup
	UpsertFromConfig(ctx context.Context, chain *models.Chain, tokens []models.Token) error
	GetByName(ctx context.Context, name string) (*models.Chain, error)
	List(ctx context.Context) ([]*models.Chain, error)
	ListEnabled(ctx context.Context) ([]*models.Chain, error)

	// Watcher state and operator policy
	AdvanceWatermark(ctx context.Context, name string, height uint64) error
	UpdatePolicy(ctx context.Context, name string, blockLag *uint64, enabled *bool) (*models.Chain, error)

	// Token registry
	GetToken(ctx context.Context, chainName, symbol string) (*models.Token, error)
	GetTokenByContract(ctx context.Context, chainName, contract string) (*models.Token, error)
	TokensByChain(ctx context.Context, chainName string) ([]*models.Token, error)
}

// chainRepository implements ChainRepository
type chainRepository struct {
	db *gorm.DB
}

// NewChainRepository creates a new ChainRepository instance
func NewChainRepository(db *gorm.DB) ChainRepository {
	return &chainRepository{db: db}
}

// UpsertFromConfig writes the configured policy for a chain and its tokens.
// last_processed_block is never touched here: the watermark belongs to the
// watcher and must survive config reloads.
func (r *chainRepository) UpsertFromConfig(ctx context.Context, chain *models.Chain, tokens []models.Token) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"family",
				"rpc_url",
				"master_public_key",
				"native_symbol",
				"native_decimals",
				"block_lag",
				"enabled",
				"updated_at",
			}),
		}).Create(chain).Error; err != nil {
			return err
		}

		for i := range tokens {
			if tokens[i].ID == "" {
				tokens[i].ID = uuid.New().String()
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "chain_name"}, {Name: "symbol"}},
				DoUpdates: clause.AssignmentColumns([]string{"contract", "decimals"}),
			}).Create(&tokens[i]).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

// GetByName retrieves a chain by name
func (r *chainRepository) GetByName(ctx context.Context, name string) (*models.Chain, error) {
	var chain models.Chain
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&chain).Error
	if err != nil {
		return nil, err
	}
	return &chain, nil
}

// List retrieves all registered chains
func (r *chainRepository) List(ctx context.Context) ([]*models.Chain, error) {
	var chains []*models.Chain
	err := r.db.WithContext(ctx).Order("name").Find(&chains).Error
	return chains, err
}

// ListEnabled retrieves chains the watchers should run for
func (r *chainRepository) ListEnabled(ctx context.Context) ([]*models.Chain, error) {
	var chains []*models.Chain
	err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("name").Find(&chains).Error
	return chains, err
}

// AdvanceWatermark moves last_processed_block forward. The guard keeps the
// watermark monotone when watcher replicas race; a stale advance is a no-op.
func (r *chainRepository) AdvanceWatermark(ctx context.Context, name string, height uint64) error {
	return r.db.WithContext(ctx).
		Model(&models.Chain{}).
		Where("name = ? AND last_processed_block < ?", name, height).
		Update("last_processed_block", height).Error
}

// UpdatePolicy applies an operator policy change and returns the updated row
func (r *chainRepository) UpdatePolicy(ctx context.Context, name string, blockLag *uint64, enabled *bool) (*models.Chain, error) {
	updates := map[string]interface{}{}
	if blockLag != nil {
		updates["block_lag"] = *blockLag
	}
	if enabled != nil {
		updates["enabled"] = *enabled
	}

	if len(updates) > 0 {
		result := r.db.WithContext(ctx).
			Model(&models.Chain{}).
			Where("name = ?", name).
			Updates(updates)
		if result.Error != nil {
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}

	return r.GetByName(ctx, name)
}

// GetToken retrieves a token by chain and symbol
func (r *chainRepository) GetToken(ctx context.Context, chainName, symbol string) (*models.Token, error) {
	var token models.Token
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND symbol = ?", chainName, symbol).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// GetTokenByContract retrieves a token by chain and contract address
func (r *chainRepository) GetTokenByContract(ctx context.Context, chainName, contract string) (*models.Token, error) {
	var token models.Token
	err := r.db.WithContext(ctx).
		Where("chain_name = ? AND contract = ?", chainName, contract).
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// TokensByChain retrieves all tokens registered on a chain
func (r *chainRepository) TokensByChain(ctx context.Context, chainName string) ([]*models.Token, error) {
	var tokens []*models.Token
	err := r.db.WithContext(ctx).
		Where("chain_name = ?", chainName).
		Order("symbol").
		Find(&tokens).Error
	return tokens, err
}
