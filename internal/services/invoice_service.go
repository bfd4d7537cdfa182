package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/necko-moe/necko3-core/internal/interfaces"
	"github.com/necko-moe/necko3-core/internal/metrics"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/repository"
	"github.com/necko-moe/necko3-core/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	defaultInvoiceTTL = 15 * time.Minute
	minInvoiceTTL     = time.Minute
	maxInvoiceTTL     = 24 * time.Hour

	// issuance retries when another instance grabs the same address index
	indexRaceRetries = 3
)

// ErrValidation marks issuance failures caused by the request itself.
// Handlers map it to a 400 instead of a 500.
var ErrValidation = errors.New("invalid invoice request")

// CreateInvoiceInput is the issuance request after transport decoding.
type CreateInvoiceInput struct {
	ChainName     string
	TokenSymbol   string
	AmountRaw     string
	TTL           time.Duration // zero means defaultInvoiceTTL
	WebhookURL    string
	WebhookSecret string // derived from the secret seed when empty
}

// InvoiceService issues invoices: it allocates the next derivation index for
// the chain, derives the deposit address from the chain's master public key
// and persists the invoice. The gateway never holds private keys, so an
// issued address can receive funds but the core can never move them.
type InvoiceService struct {
	chainRepo   repository.ChainRepository
	invoiceRepo repository.InvoiceRepository
	paymentRepo repository.PaymentRepository
	webhookRepo repository.WebhookRepository
	deriver     interfaces.AddressDeriver
	secretSeed  string
}

// NewInvoiceService wires invoice issuance and the ops read paths.
// secretSeed feeds per-invoice webhook secret derivation; when empty,
// invoices without a caller-supplied secret get unsigned deliveries.
func NewInvoiceService(
	chainRepo repository.ChainRepository,
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	webhookRepo repository.WebhookRepository,
	deriver interfaces.AddressDeriver,
	secretSeed string,
) *InvoiceService {
	return &InvoiceService{
		chainRepo:   chainRepo,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		webhookRepo: webhookRepo,
		deriver:     deriver,
		secretSeed:  secretSeed,
	}
}

// CreateInvoice validates the request, allocates an address and persists the
// invoice as Pending. Address indexes are never reused: when two instances
// race for the same index the unique (chain_name, address_index) constraint
// rejects the loser, which re-allocates and retries.
func (s *InvoiceService) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*models.Invoice, error) {
	chain, err := s.chainRepo.GetByName(ctx, input.ChainName)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown chain %q", ErrValidation, input.ChainName)
	}
	if !chain.Enabled {
		return nil, fmt.Errorf("%w: chain %q is disabled", ErrValidation, input.ChainName)
	}

	family, err := utils.GetFamily(chain.Family)
	if err != nil {
		return nil, err
	}
	if !family.Derivable {
		return nil, fmt.Errorf("%w: address derivation not supported for %s chains", ErrValidation, chain.Family)
	}

	symbol := strings.ToUpper(strings.TrimSpace(input.TokenSymbol))
	if symbol == "" {
		symbol = chain.NativeSymbol
	}
	decimals := chain.NativeDecimals
	if symbol != chain.NativeSymbol {
		token, err := s.chainRepo.GetToken(ctx, chain.Name, symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: token %q not registered on chain %q", ErrValidation, symbol, chain.Name)
		}
		decimals = token.Decimals
	}

	amount, err := utils.ParseRawAmount(input.AmountRaw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}

	ttl := input.TTL
	if ttl == 0 {
		ttl = defaultInvoiceTTL
	}
	if ttl < minInvoiceTTL || ttl > maxInvoiceTTL {
		return nil, fmt.Errorf("%w: ttl must be between %s and %s", ErrValidation, minInvoiceTTL, maxInvoiceTTL)
	}

	for attempt := 0; attempt < indexRaceRetries; attempt++ {
		index, err := s.invoiceRepo.NextAddressIndex(ctx, chain.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate address index: %w", err)
		}

		address, err := s.deriver.Derive(chain.MasterPublicKey, index)
		if err != nil {
			return nil, fmt.Errorf("failed to derive address at index %d: %w", index, err)
		}

		invoiceID := uuid.New().String()
		secret := input.WebhookSecret
		if secret == "" && input.WebhookURL != "" && s.secretSeed != "" {
			secret, err = s.deriveWebhookSecret(invoiceID)
			if err != nil {
				return nil, err
			}
		}

		invoice := &models.Invoice{
			ID:            invoiceID,
			Address:       address,
			AddressIndex:  index,
			ChainName:     chain.Name,
			TokenSymbol:   symbol,
			Decimals:      decimals,
			AmountRaw:     amount.String(),
			PaidRaw:       "0",
			Status:        models.InvoiceStatusPending,
			WebhookURL:    input.WebhookURL,
			WebhookSecret: secret,
			ExpiresAt:     time.Now().Add(ttl),
		}

		err = s.invoiceRepo.Create(ctx, invoice)
		if err == nil {
			metrics.InvoicesCreated.WithLabelValues(chain.Name).Inc()
			log.Printf("🧾 [%s] invoice %s issued: %s %s to %s (index %d, expires %s)",
				chain.Name, invoice.ID, utils.FormatUnits(invoice.AmountRaw, decimals), symbol,
				address, index, invoice.ExpiresAt.Format(time.RFC3339))
			return invoice, nil
		}
		if strings.Contains(err.Error(), "duplicate key") {
			log.Printf("⚠️ [%s] address index %d taken, re-allocating", chain.Name, index)
			continue
		}
		return nil, fmt.Errorf("failed to persist invoice: %w", err)
	}

	return nil, fmt.Errorf("failed to allocate a free address index after %d attempts", indexRaceRetries)
}

// GetInvoice loads one invoice with its payments and webhook deliveries.
func (s *InvoiceService) GetInvoice(ctx context.Context, id string) (*models.Invoice, []*models.Payment, []*models.Webhook, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	payments, err := s.paymentRepo.ListByInvoice(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	webhooks, err := s.webhookRepo.ListByInvoice(ctx, id)
	if err != nil {
		return nil, nil, nil, err
	}
	return invoice, payments, webhooks, nil
}

// ListInvoices pages through invoices, optionally filtered by chain and status.
func (s *InvoiceService) ListInvoices(ctx context.Context, chainName string, status models.InvoiceStatus, page, pageSize int) ([]*models.Invoice, int64, error) {
	return s.invoiceRepo.List(ctx, chainName, status, page, pageSize)
}

// deriveWebhookSecret expands the gateway seed into a per-invoice signing
// key. Deterministic, so a re-issued secret for the same invoice matches.
func (s *InvoiceService) deriveWebhookSecret(invoiceID string) (string, error) {
	reader := hkdf.New(sha256.New, []byte(s.secretSeed), []byte(invoiceID), []byte("webhook-secret"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return "", fmt.Errorf("failed to derive webhook secret: %w", err)
	}
	return hex.EncodeToString(key), nil
}
