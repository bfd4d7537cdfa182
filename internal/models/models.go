package models

import (
	"time"
)

// ChainFamily groups chains by their ledger shape. Account-style chains carry
// balances on addresses (EVM and friends); UTXO-style chains spend outputs.
type ChainFamily string

const (
	ChainFamilyAccount ChainFamily = "account"
	ChainFamilyUTXO    ChainFamily = "utxo"
)

// InvoiceStatus lifecycle: Pending -> Paid | Expired. Paid and Expired are terminal.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "Pending" // waiting for confirmed payments to reach amount_raw
	InvoiceStatusPaid    InvoiceStatus = "Paid"    // confirmed sum reached amount_raw (terminal)
	InvoiceStatusExpired InvoiceStatus = "Expired" // deadline passed while still pending (terminal)
)

// Terminal reports whether no further status transition is allowed.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusExpired
}

// CanTransitionTo enforces the closed invoice state machine.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if s.Terminal() {
		return false
	}
	return next == InvoiceStatusPaid || next == InvoiceStatusExpired
}

// PaymentStatus lifecycle: Confirming -> Confirmed. A Confirming payment may be
// retracted (deleted) on reorg; a Confirmed payment never moves back.
type PaymentStatus string

const (
	PaymentStatusConfirming PaymentStatus = "Confirming" // observed, below required depth
	PaymentStatusConfirmed  PaymentStatus = "Confirmed"  // depth reached, counted toward paid_raw
)

// WebhookStatus lifecycle: Pending -> Processing -> Sent | Failed | Pending (retry).
type WebhookStatus string

const (
	WebhookStatusPending    WebhookStatus = "Pending"    // due for delivery once next_retry passes
	WebhookStatusProcessing WebhookStatus = "Processing" // claimed by a dispatcher worker (lease via claimed_at)
	WebhookStatusSent       WebhookStatus = "Sent"       // delivered, 2xx response (terminal)
	WebhookStatusFailed     WebhookStatus = "Failed"     // retries exhausted (terminal)
)

// Webhook event types carried in the payload and the event_type column.
const (
	EventInvoicePaid      = "invoice.paid"
	EventInvoiceExpired   = "invoice.expired"
	EventPaymentConfirmed = "payment.confirmed"
)

// Chain is the registry row for one watched blockchain. Policy fields follow the
// config file; last_processed_block is mutated only by the chain's own watcher.
type Chain struct {
	Name               string      `json:"name" gorm:"primaryKey"`
	Family             ChainFamily `json:"family" gorm:"not null;default:'account'"`
	RPCURL             string      `json:"rpc_url" gorm:"not null"`
	MasterPublicKey    string      `json:"-" gorm:"not null"` // hex: 33-byte compressed point || 32-byte chain code
	NativeSymbol       string      `json:"native_symbol" gorm:"not null"`
	NativeDecimals     uint8       `json:"native_decimals" gorm:"not null;default:18"`
	LastProcessedBlock uint64      `json:"last_processed_block" gorm:"not null;default:0"`
	BlockLag           uint64      `json:"block_lag" gorm:"not null;default:12"` // required confirmations, >= 0
	Enabled            bool        `json:"enabled" gorm:"not null;default:true"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// Token is a transferable asset watched on one chain. (chain_name, symbol) is unique.
type Token struct {
	ID        string    `json:"id" gorm:"primaryKey"` // UUID
	ChainName string    `json:"chain_name" gorm:"not null;uniqueIndex:idx_tokens_chain_symbol"`
	Symbol    string    `json:"symbol" gorm:"not null;uniqueIndex:idx_tokens_chain_symbol"`
	Contract  string    `json:"contract"` // empty for the native asset
	Decimals  uint8     `json:"decimals" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`

	Chain Chain `json:"-" gorm:"foreignKey:ChainName;references:Name;constraint:OnDelete:RESTRICT"`
}

// Invoice is a request for payment of a fixed token amount on a chain.
// paid_raw only increases; once Paid or Expired the status never changes again.
type Invoice struct {
	ID            string        `json:"id" gorm:"primaryKey"` // UUID
	Address       string        `json:"address" gorm:"not null;index:idx_invoices_chain_address"`
	AddressIndex  uint32        `json:"address_index" gorm:"not null;uniqueIndex:idx_invoices_chain_addridx"` // never reused per chain
	ChainName     string        `json:"chain_name" gorm:"not null;index:idx_invoices_chain_address;uniqueIndex:idx_invoices_chain_addridx"`
	TokenSymbol   string        `json:"token_symbol" gorm:"not null"`
	Decimals      uint8         `json:"decimals" gorm:"not null"`
	AmountRaw     string        `json:"amount_raw" gorm:"type:numeric(78,0);not null"` // smallest-unit integer
	PaidRaw       string        `json:"paid_raw" gorm:"type:numeric(78,0);not null;default:0"`
	Status        InvoiceStatus `json:"status" gorm:"not null;default:'Pending';index"`
	WebhookURL    string        `json:"webhook_url"`
	WebhookSecret string        `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
	ExpiresAt     time.Time     `json:"expires_at" gorm:"not null;index"`
	UpdatedAt     time.Time     `json:"updated_at"`

	Chain Chain `json:"-" gorm:"foreignKey:ChainName;references:Name;constraint:OnDelete:RESTRICT"`
}

// Payment is one observed on-chain transfer toward an invoice address.
// (tx_hash, log_index, network) is the idempotency key: re-ingestion of the
// same transfer is a no-op regardless of how often a block is reprocessed.
type Payment struct {
	ID          string        `json:"id" gorm:"primaryKey"` // UUID
	InvoiceID   string        `json:"invoice_id" gorm:"not null;index"`
	Network     string        `json:"network" gorm:"not null;uniqueIndex:idx_payments_tx_log_network"` // chain name
	TxHash      string        `json:"tx_hash" gorm:"not null;uniqueIndex:idx_payments_tx_log_network"`
	LogIndex    int           `json:"log_index" gorm:"not null;default:-1;uniqueIndex:idx_payments_tx_log_network"` // -1 when the chain has no sub-tx ordering
	FromAddress string        `json:"from_address"`
	ToAddress   string        `json:"to_address" gorm:"not null;index"`
	TokenSymbol string        `json:"token_symbol" gorm:"not null"`
	AmountRaw   string        `json:"amount_raw" gorm:"type:numeric(78,0);not null"`
	Decimals    uint8         `json:"decimals" gorm:"not null"`
	BlockNumber uint64        `json:"block_number" gorm:"not null"`
	Status      PaymentStatus `json:"status" gorm:"not null;default:'Confirming';index"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	Invoice Invoice `json:"-" gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// Webhook is one queued delivery of a lifecycle event to a merchant endpoint.
// Delivery is at-least-once: the payload snapshot carries the invoice id and
// event type so receivers can de-duplicate.
type Webhook struct {
	ID         string        `json:"id" gorm:"primaryKey"` // UUID
	InvoiceID  string        `json:"invoice_id" gorm:"not null;index"`
	EventType  string        `json:"event_type" gorm:"not null"`
	URL        string        `json:"url" gorm:"not null"`
	Payload    string        `json:"payload" gorm:"type:jsonb;not null"`
	Status     WebhookStatus `json:"status" gorm:"not null;default:'Pending';index:idx_webhooks_status_retry"`
	Attempts   int           `json:"attempts" gorm:"not null;default:0"`
	MaxRetries int           `json:"max_retries" gorm:"not null;default:10"`
	NextRetry  time.Time     `json:"next_retry" gorm:"not null;index:idx_webhooks_status_retry"`
	ClaimedAt  *time.Time    `json:"claimed_at"` // claim lease; reclaim sweep resets stale Processing rows
	LastError  string        `json:"last_error" gorm:"type:text"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	Invoice Invoice `json:"-" gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE"`
}

// Exhausted reports whether the attempt budget is spent.
func (w *Webhook) Exhausted() bool {
	return w.Attempts >= w.MaxRetries
}

// Hot-path indexes beyond the tag-declared ones:
// - payments: idx_payments_tx_log_network (idempotent ingestion upsert target)
// - payments: (status, network) scans by the promotion pass (covered by status index + network filter)
// - webhooks: idx_webhooks_status_retry (claim query: status = Pending AND next_retry <= now)
// - invoices: idx_invoices_chain_address (watch-set lookup per chain)
