package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/necko-moe/necko3-core/internal/events"
	"github.com/necko-moe/necko3-core/internal/interfaces"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/repository"

	"gorm.io/gorm"
)

// ---------------------------------------------------------------------------
// Fake repositories. In-memory equivalents of the GORM implementations with
// the same transactional semantics the services rely on.
// ---------------------------------------------------------------------------

// fakeChainRepo implements repository.ChainRepository.
type fakeChainRepo struct {
	mu     sync.Mutex
	chains map[string]*models.Chain
	tokens map[string][]*models.Token

	advanced   []uint64 // AdvanceWatermark call log
	advanceErr error
	listErr    error
}

func newFakeChainRepo() *fakeChainRepo {
	return &fakeChainRepo{
		chains: make(map[string]*models.Chain),
		tokens: make(map[string][]*models.Token),
	}
}

func (f *fakeChainRepo) addChain(chain models.Chain) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chains[chain.Name] = &chain
}

func (f *fakeChainRepo) addToken(token models.Token) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token.ChainName] = append(f.tokens[token.ChainName], &token)
}

func (f *fakeChainRepo) watermark(name string) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chains[name].LastProcessedBlock
}

func (f *fakeChainRepo) setWatermark(name string, height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chains[name].LastProcessedBlock = height
}

func (f *fakeChainRepo) UpsertFromConfig(_ context.Context, chain *models.Chain, tokens []models.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *chain
	f.chains[chain.Name] = &copied
	f.tokens[chain.Name] = nil
	for i := range tokens {
		token := tokens[i]
		f.tokens[chain.Name] = append(f.tokens[chain.Name], &token)
	}
	return nil
}

func (f *fakeChainRepo) GetByName(_ context.Context, name string) (*models.Chain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chain, ok := f.chains[name]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *chain
	return &copied, nil
}

func (f *fakeChainRepo) List(_ context.Context) ([]*models.Chain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Chain, 0, len(f.chains))
	for _, chain := range f.chains {
		copied := *chain
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeChainRepo) ListEnabled(_ context.Context) ([]*models.Chain, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	all, _ := f.List(context.Background())
	out := make([]*models.Chain, 0, len(all))
	for _, chain := range all {
		if chain.Enabled {
			out = append(out, chain)
		}
	}
	return out, nil
}

func (f *fakeChainRepo) AdvanceWatermark(_ context.Context, name string, height uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advanceErr != nil {
		return f.advanceErr
	}
	f.advanced = append(f.advanced, height)
	if chain, ok := f.chains[name]; ok && chain.LastProcessedBlock < height {
		chain.LastProcessedBlock = height
	}
	return nil
}

func (f *fakeChainRepo) UpdatePolicy(_ context.Context, name string, blockLag *uint64, enabled *bool) (*models.Chain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	chain, ok := f.chains[name]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if blockLag != nil {
		chain.BlockLag = *blockLag
	}
	if enabled != nil {
		chain.Enabled = *enabled
	}
	copied := *chain
	return &copied, nil
}

func (f *fakeChainRepo) GetToken(_ context.Context, chainName, symbol string) (*models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.tokens[chainName] {
		if token.Symbol == symbol {
			copied := *token
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeChainRepo) GetTokenByContract(_ context.Context, chainName, contract string) (*models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, token := range f.tokens[chainName] {
		if strings.EqualFold(token.Contract, contract) {
			copied := *token
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeChainRepo) TokensByChain(_ context.Context, chainName string) ([]*models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Token, 0, len(f.tokens[chainName]))
	for _, token := range f.tokens[chainName] {
		copied := *token
		out = append(out, &copied)
	}
	return out, nil
}

// fakePaymentRepo implements repository.PaymentRepository.
type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
	seen     map[string]string // dedupe key -> payment id

	upsertErr error
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{
		payments: make(map[string]*models.Payment),
		seen:     make(map[string]string),
	}
}

func dedupeKey(network, txHash string, logIndex int) string {
	return fmt.Sprintf("%s|%s|%d", network, txHash, logIndex)
}

func (f *fakePaymentRepo) addPayment(payment models.Payment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[payment.ID] = &payment
	f.seen[dedupeKey(payment.Network, payment.TxHash, payment.LogIndex)] = payment.ID
}

func (f *fakePaymentRepo) get(id string) *models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[id]
	if !ok {
		return nil
	}
	copied := *payment
	return &copied
}

func (f *fakePaymentRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

func (f *fakePaymentRepo) all() []*models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Payment, 0, len(f.payments))
	for _, payment := range f.payments {
		copied := *payment
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out
}

func (f *fakePaymentRepo) UpsertObserved(_ context.Context, payment *models.Payment) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	key := dedupeKey(payment.Network, payment.TxHash, payment.LogIndex)
	if _, dup := f.seen[key]; dup {
		return false, nil
	}
	copied := *payment
	f.payments[payment.ID] = &copied
	f.seen[key] = payment.ID
	return true, nil
}

func (f *fakePaymentRepo) GetByID(_ context.Context, id string) (*models.Payment, error) {
	if payment := f.get(id); payment != nil {
		return payment, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePaymentRepo) ListByInvoice(_ context.Context, invoiceID string) ([]*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Payment
	for _, payment := range f.payments {
		if payment.InvoiceID == invoiceID {
			copied := *payment
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out, nil
}

func (f *fakePaymentRepo) CountsByStatus(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, payment := range f.payments {
		counts[string(payment.Status)]++
	}
	return counts, nil
}

func (f *fakePaymentRepo) ListRipe(_ context.Context, chainName string, maxBlock uint64) ([]*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Payment
	for _, payment := range f.payments {
		if payment.Network == chainName && payment.Status == models.PaymentStatusConfirming && payment.BlockNumber <= maxBlock {
			copied := *payment
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out, nil
}

func (f *fakePaymentRepo) UpdateBlockNumber(_ context.Context, id string, blockNumber uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if payment, ok := f.payments[id]; ok && payment.Status == models.PaymentStatusConfirming {
		payment.BlockNumber = blockNumber
	}
	return nil
}

func (f *fakePaymentRepo) Retract(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[id]
	if !ok || payment.Status != models.PaymentStatusConfirming {
		return false, nil
	}
	delete(f.seen, dedupeKey(payment.Network, payment.TxHash, payment.LogIndex))
	delete(f.payments, id)
	return true, nil
}

// fakeInvoiceRepo implements repository.InvoiceRepository. Settlement and
// expiry mirror the row-locked transactions of the real implementation.
type fakeInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[string]*models.Invoice
	payments *fakePaymentRepo // settlement flips payment rows too
	enqueued []*models.Webhook

	createErrs []error // scripted Create outcomes, consumed in order
	applyErr   error
	expireErr  error
	nextIdxErr error
}

func newFakeInvoiceRepo(payments *fakePaymentRepo) *fakeInvoiceRepo {
	return &fakeInvoiceRepo{
		invoices: make(map[string]*models.Invoice),
		payments: payments,
	}
}

func (f *fakeInvoiceRepo) addInvoice(invoice models.Invoice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoices[invoice.ID] = &invoice
}

func (f *fakeInvoiceRepo) get(id string) *models.Invoice {
	f.mu.Lock()
	defer f.mu.Unlock()
	invoice, ok := f.invoices[id]
	if !ok {
		return nil
	}
	copied := *invoice
	return &copied
}

func (f *fakeInvoiceRepo) Create(_ context.Context, invoice *models.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return err
		}
	}
	for _, existing := range f.invoices {
		if existing.ChainName == invoice.ChainName && existing.AddressIndex == invoice.AddressIndex {
			return errors.New(`duplicate key value violates unique constraint "idx_invoices_chain_addridx"`)
		}
	}
	copied := *invoice
	f.invoices[invoice.ID] = &copied
	return nil
}

func (f *fakeInvoiceRepo) GetByID(_ context.Context, id string) (*models.Invoice, error) {
	if invoice := f.get(id); invoice != nil {
		return invoice, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeInvoiceRepo) List(_ context.Context, chainName string, status models.InvoiceStatus, page, pageSize int) ([]*models.Invoice, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*models.Invoice
	for _, invoice := range f.invoices {
		if chainName != "" && invoice.ChainName != chainName {
			continue
		}
		if status != "" && invoice.Status != status {
			continue
		}
		copied := *invoice
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))

	start := (page - 1) * pageSize
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (f *fakeInvoiceRepo) CountsByStatus(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, invoice := range f.invoices {
		counts[string(invoice.Status)]++
	}
	return counts, nil
}

func (f *fakeInvoiceRepo) NextAddressIndex(_ context.Context, chainName string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nextIdxErr != nil {
		return 0, f.nextIdxErr
	}
	next := uint32(0)
	found := false
	for _, invoice := range f.invoices {
		if invoice.ChainName != chainName {
			continue
		}
		if !found || invoice.AddressIndex >= next {
			next = invoice.AddressIndex + 1
			found = true
		}
	}
	return next, nil
}

func (f *fakeInvoiceRepo) WatchSet(_ context.Context, chainName string) (map[string]*models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	watch := make(map[string]*models.Invoice)
	for _, invoice := range f.invoices {
		if invoice.ChainName == chainName && invoice.Status == models.InvoiceStatusPending {
			copied := *invoice
			watch[strings.ToLower(invoice.Address)] = &copied
		}
	}
	return watch, nil
}

func (f *fakeInvoiceRepo) ApplyConfirmedPayment(_ context.Context, paymentID string, webhookMaxRetries int) (*repository.SettlementResult, error) {
	if f.applyErr != nil {
		return nil, f.applyErr
	}

	f.payments.mu.Lock()
	payment, ok := f.payments.payments[paymentID]
	if !ok {
		f.payments.mu.Unlock()
		return nil, gorm.ErrRecordNotFound
	}
	paymentCopy := *payment
	f.payments.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	invoice, ok := f.invoices[paymentCopy.InvoiceID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}

	result := &repository.SettlementResult{}

	if paymentCopy.Status == models.PaymentStatusConfirmed {
		invoiceCopy := *invoice
		result.Invoice = &invoiceCopy
		result.Payment = &paymentCopy
		result.AlreadyDone = true
		return result, nil
	}

	f.payments.mu.Lock()
	f.payments.payments[paymentID].Status = models.PaymentStatusConfirmed
	paymentCopy.Status = models.PaymentStatusConfirmed

	sum := new(big.Int)
	for _, p := range f.payments.payments {
		if p.InvoiceID == invoice.ID && p.Status == models.PaymentStatusConfirmed {
			v, _ := new(big.Int).SetString(p.AmountRaw, 10)
			sum.Add(sum, v)
		}
	}
	f.payments.mu.Unlock()

	target, _ := new(big.Int).SetString(invoice.AmountRaw, 10)
	invoice.PaidRaw = sum.String()

	if invoice.Status == models.InvoiceStatusPending && sum.Cmp(target) >= 0 {
		invoice.Status = models.InvoiceStatusPaid
		result.BecamePaid = true
		if invoice.WebhookURL != "" {
			payload, _ := events.NewInvoicePaid(invoice).Marshal()
			f.enqueued = append(f.enqueued, &models.Webhook{
				InvoiceID:  invoice.ID,
				EventType:  models.EventInvoicePaid,
				URL:        invoice.WebhookURL,
				Payload:    payload,
				Status:     models.WebhookStatusPending,
				MaxRetries: webhookMaxRetries,
			})
			result.WebhookEnqueued = true
		}
	}

	invoiceCopy := *invoice
	result.Invoice = &invoiceCopy
	result.Payment = &paymentCopy
	return result, nil
}

func (f *fakeInvoiceRepo) ExpireDue(_ context.Context, now time.Time, webhookMaxRetries int) ([]models.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expireErr != nil {
		return nil, f.expireErr
	}

	var expired []models.Invoice
	for _, invoice := range f.invoices {
		if invoice.Status != models.InvoiceStatusPending || invoice.ExpiresAt.After(now) {
			continue
		}
		invoice.Status = models.InvoiceStatusExpired
		expired = append(expired, *invoice)
		if invoice.WebhookURL != "" {
			payload, _ := events.NewInvoiceExpired(invoice).Marshal()
			f.enqueued = append(f.enqueued, &models.Webhook{
				InvoiceID:  invoice.ID,
				EventType:  models.EventInvoiceExpired,
				URL:        invoice.WebhookURL,
				Payload:    payload,
				Status:     models.WebhookStatusPending,
				MaxRetries: webhookMaxRetries,
			})
		}
	}
	return expired, nil
}

// fakeWebhookRepo implements repository.WebhookRepository.
type fakeWebhookRepo struct {
	mu       sync.Mutex
	webhooks map[string]*models.Webhook

	claimErr error
}

func newFakeWebhookRepo() *fakeWebhookRepo {
	return &fakeWebhookRepo{webhooks: make(map[string]*models.Webhook)}
}

func (f *fakeWebhookRepo) addWebhook(webhook models.Webhook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks[webhook.ID] = &webhook
}

func (f *fakeWebhookRepo) get(id string) *models.Webhook {
	f.mu.Lock()
	defer f.mu.Unlock()
	webhook, ok := f.webhooks[id]
	if !ok {
		return nil
	}
	copied := *webhook
	return &copied
}

func (f *fakeWebhookRepo) Enqueue(_ context.Context, webhook *models.Webhook) error {
	f.addWebhook(*webhook)
	return nil
}

func (f *fakeWebhookRepo) GetByID(_ context.Context, id string) (*models.Webhook, error) {
	if webhook := f.get(id); webhook != nil {
		return webhook, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeWebhookRepo) ListByInvoice(_ context.Context, invoiceID string) ([]*models.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Webhook
	for _, webhook := range f.webhooks {
		if webhook.InvoiceID == invoiceID {
			copied := *webhook
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeWebhookRepo) CountsByStatus(_ context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, webhook := range f.webhooks {
		counts[string(webhook.Status)]++
	}
	return counts, nil
}

func (f *fakeWebhookRepo) ClaimDue(_ context.Context, limit int, now time.Time) ([]*models.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return nil, f.claimErr
	}

	var due []*models.Webhook
	for _, webhook := range f.webhooks {
		if webhook.Status == models.WebhookStatusPending && !webhook.NextRetry.After(now) {
			due = append(due, webhook)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetry.Before(due[j].NextRetry) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.Webhook, 0, len(due))
	for _, webhook := range due {
		claimTime := now
		webhook.Status = models.WebhookStatusProcessing
		webhook.ClaimedAt = &claimTime
		copied := *webhook
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (f *fakeWebhookRepo) MarkSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if webhook, ok := f.webhooks[id]; ok {
		webhook.Status = models.WebhookStatusSent
		webhook.ClaimedAt = nil
		webhook.LastError = ""
	}
	return nil
}

func (f *fakeWebhookRepo) RecordFailure(_ context.Context, id string, attempts int, terminal bool, nextRetry time.Time, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	webhook, ok := f.webhooks[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if terminal {
		webhook.Status = models.WebhookStatusFailed
	} else {
		webhook.Status = models.WebhookStatusPending
	}
	webhook.Attempts = attempts
	webhook.NextRetry = nextRetry
	webhook.ClaimedAt = nil
	webhook.LastError = lastError
	return nil
}

func (f *fakeWebhookRepo) ReclaimAbandoned(_ context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var reclaimed int64
	for _, webhook := range f.webhooks {
		if webhook.Status == models.WebhookStatusProcessing && webhook.ClaimedAt != nil && !webhook.ClaimedAt.After(olderThan) {
			webhook.Status = models.WebhookStatusPending
			webhook.ClaimedAt = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

// ---------------------------------------------------------------------------
// Fake clients
// ---------------------------------------------------------------------------

// fakeLedgerReader implements interfaces.LedgerReader with scripted blocks.
type fakeLedgerReader struct {
	mu sync.Mutex

	tip    uint64
	tipErr error

	blocks    map[uint64][]interfaces.Transfer
	blockErrs map[uint64]error
	scanned   []uint64

	txBlocks map[string]uint64 // canonical block per tx hash
	txGone   map[string]bool
	txErrs   map[string]error
}

func newFakeLedgerReader(tip uint64) *fakeLedgerReader {
	return &fakeLedgerReader{
		tip:       tip,
		blocks:    make(map[uint64][]interfaces.Transfer),
		blockErrs: make(map[uint64]error),
		txBlocks:  make(map[string]uint64),
		txGone:    make(map[string]bool),
		txErrs:    make(map[string]error),
	}
}

func (f *fakeLedgerReader) addTransfer(height uint64, transfer interfaces.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	transfer.BlockNumber = height
	f.blocks[height] = append(f.blocks[height], transfer)
	if !f.txGone[transfer.TxHash] {
		f.txBlocks[transfer.TxHash] = height
	}
}

func (f *fakeLedgerReader) scannedBlocks() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint64, len(f.scanned))
	copy(out, f.scanned)
	return out
}

func (f *fakeLedgerReader) setTip(tip uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tip = tip
}

func (f *fakeLedgerReader) setTxBlock(txHash string, height uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txBlocks[txHash] = height
}

func (f *fakeLedgerReader) markTxGone(txHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txGone[txHash] = true
	delete(f.txBlocks, txHash)
}

func (f *fakeLedgerReader) failBlock(height uint64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.blockErrs, height)
		return
	}
	f.blockErrs[height] = err
}

func (f *fakeLedgerReader) TipHeight(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tipErr != nil {
		return 0, f.tipErr
	}
	return f.tip, nil
}

func (f *fakeLedgerReader) TransfersInBlock(_ context.Context, height uint64, watch interfaces.WatchList) ([]interfaces.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.blockErrs[height]; err != nil {
		return nil, err
	}
	f.scanned = append(f.scanned, height)

	var matched []interfaces.Transfer
	for _, transfer := range f.blocks[height] {
		if watch.HasAddress(transfer.ToAddress) {
			matched = append(matched, transfer)
		}
	}
	return matched, nil
}

func (f *fakeLedgerReader) TransactionBlock(_ context.Context, txHash string) (uint64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.txErrs[txHash]; err != nil {
		return 0, false, err
	}
	if f.txGone[txHash] {
		return 0, false, nil
	}
	block, ok := f.txBlocks[txHash]
	return block, ok, nil
}

func (f *fakeLedgerReader) Close() {}

// fakePublisher implements interfaces.EventPublisher.
type fakePublisher struct {
	mu         sync.Mutex
	events     []events.GatewayEvent
	publishErr error
}

func (f *fakePublisher) Publish(event events.GatewayEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() {}

func (f *fakePublisher) published() []events.GatewayEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]events.GatewayEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fakeDeriver implements interfaces.AddressDeriver.
type fakeDeriver struct {
	err error
}

func (f *fakeDeriver) Derive(_ string, index uint32) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("0x%040d", index), nil
}

// fakeSender implements interfaces.WebhookSender.
type fakeSender struct {
	mu    sync.Mutex
	calls []sentWebhook
	err   error
}

type sentWebhook struct {
	url     string
	payload string
	secret  string
}

func (f *fakeSender) Send(_ context.Context, url string, payload []byte, secret string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sentWebhook{url: url, payload: string(payload), secret: secret})
	return f.err
}

func (f *fakeSender) sent() []sentWebhook {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentWebhook, len(f.calls))
	copy(out, f.calls)
	return out
}
