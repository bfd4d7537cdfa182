package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/necko-moe/necko3-core/internal/interfaces"
	"github.com/necko-moe/necko3-core/internal/metrics"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/repository"

	"github.com/google/uuid"
)

// ChainWatcherService runs one polling loop per enabled chain. Each cycle
// has two independent phases:
//
//  1. ingestion: scan (last_processed_block, tip] block by block for
//     transfers to watched invoice addresses and record them as Confirming.
//     The watermark advances only after every payment in a block is durable,
//     so a crash replays the block and the idempotent upsert absorbs it.
//  2. promotion: re-verify Confirming payments that reached confirmation
//     depth against the node (reorg check), then hand them to settlement.
//
// Promotion runs even when ingestion fails mid-range: payments already in
// the ledger must not wait for RPC recovery.
type ChainWatcherService struct {
	chainRepo   repository.ChainRepository
	invoiceRepo repository.InvoiceRepository
	paymentRepo repository.PaymentRepository
	settlement  *SettlementService
	readers     map[string]interfaces.LedgerReader
	intervals   map[string]time.Duration

	defaultInterval   time.Duration
	maxBlocksPerCycle uint64

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewChainWatcherService wires a watcher over the given ledger readers,
// keyed by chain name. intervals overrides the default poll interval per
// chain; pass nil to poll every chain at defaultInterval.
func NewChainWatcherService(
	chainRepo repository.ChainRepository,
	invoiceRepo repository.InvoiceRepository,
	paymentRepo repository.PaymentRepository,
	settlement *SettlementService,
	readers map[string]interfaces.LedgerReader,
	intervals map[string]time.Duration,
	defaultInterval time.Duration,
	maxBlocksPerCycle int,
) *ChainWatcherService {
	if defaultInterval <= 0 {
		defaultInterval = 15 * time.Second
	}
	if maxBlocksPerCycle <= 0 {
		maxBlocksPerCycle = 200
	}
	return &ChainWatcherService{
		chainRepo:         chainRepo,
		invoiceRepo:       invoiceRepo,
		paymentRepo:       paymentRepo,
		settlement:        settlement,
		readers:           readers,
		intervals:         intervals,
		defaultInterval:   defaultInterval,
		maxBlocksPerCycle: uint64(maxBlocksPerCycle),
	}
}

// Start launches one goroutine per enabled chain that has a reader.
func (s *ChainWatcherService) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	chains, err := s.chainRepo.ListEnabled(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list enabled chains: %w", err)
	}

	started := 0
	for _, chain := range chains {
		if _, ok := s.readers[chain.Name]; !ok {
			log.Printf("⚠️ No ledger reader for chain %s, not watching it", chain.Name)
			continue
		}
		interval := s.defaultInterval
		if iv, ok := s.intervals[chain.Name]; ok && iv > 0 {
			interval = iv
		}
		s.wg.Add(1)
		go s.watchChain(chain.Name, interval)
		started++
	}

	log.Printf("🚀 Chain watcher started: %d chains", started)
	return nil
}

// Stop terminates every chain loop and waits for in-flight cycles.
func (s *ChainWatcherService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	log.Println("🛑 Chain watcher stopped")
}

func (s *ChainWatcherService) watchChain(chainName string, interval time.Duration) {
	defer s.wg.Done()

	log.Printf("🔗 [%s] watching, poll interval %s", chainName, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runCycle(chainName)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runCycle(chainName)
		}
	}
}

func (s *ChainWatcherService) runCycle(chainName string) {
	ctx := context.Background()

	chain, err := s.chainRepo.GetByName(ctx, chainName)
	if err != nil {
		log.Printf("⚠️ [%s] failed to load chain row: %v", chainName, err)
		return
	}
	if !chain.Enabled {
		return
	}

	reader := s.readers[chainName]
	tip, err := reader.TipHeight(ctx)
	if err != nil {
		metrics.RPCErrors.WithLabelValues(chainName).Inc()
		log.Printf("⚠️ [%s] failed to read tip height: %v", chainName, err)
		return
	}
	metrics.WatcherTipHeight.WithLabelValues(chainName).Set(float64(tip))

	if err := s.ingestRange(ctx, chain, tip); err != nil {
		log.Printf("⚠️ [%s] ingestion stopped at block %d: %v", chainName, chain.LastProcessedBlock+1, err)
	}

	if err := s.promoteRipe(ctx, chain, tip); err != nil {
		log.Printf("⚠️ [%s] promotion pass failed: %v", chainName, err)
	}
}

// ingestRange scans (chain.LastProcessedBlock, tip] capped at
// maxBlocksPerCycle blocks, advancing the watermark after each block.
// Any error aborts before the watermark moves past the failed height, so
// no block is ever skipped. chain.LastProcessedBlock is updated in place
// as the range progresses.
func (s *ChainWatcherService) ingestRange(ctx context.Context, chain *models.Chain, tip uint64) error {
	if tip <= chain.LastProcessedBlock {
		return nil
	}

	watched, err := s.invoiceRepo.WatchSet(ctx, chain.Name)
	if err != nil {
		return fmt.Errorf("failed to load watch set: %w", err)
	}

	tokens, err := s.chainRepo.TokensByChain(ctx, chain.Name)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}
	byContract := make(map[string]*models.Token, len(tokens))
	for _, token := range tokens {
		if token.Contract != "" {
			byContract[strings.ToLower(token.Contract)] = token
		}
	}

	watch := interfaces.WatchList{
		Addresses:      make(map[string]struct{}, len(watched)),
		TokenContracts: make([]string, 0, len(byContract)),
	}
	for address := range watched {
		watch.Addresses[address] = struct{}{}
	}
	for contract := range byContract {
		watch.TokenContracts = append(watch.TokenContracts, contract)
	}

	reader := s.readers[chain.Name]
	from := chain.LastProcessedBlock + 1
	to := tip
	if to-from+1 > s.maxBlocksPerCycle {
		to = from + s.maxBlocksPerCycle - 1
	}

	for height := from; height <= to; height++ {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		// With no pending invoices nothing in the block can match, but the
		// watermark still moves: invoices only collect transfers that land
		// after their creation.
		var transfers []interfaces.Transfer
		if !watch.Empty() {
			transfers, err = reader.TransfersInBlock(ctx, height, watch)
			if err != nil {
				metrics.RPCErrors.WithLabelValues(chain.Name).Inc()
				return fmt.Errorf("failed to scan block %d: %w", height, err)
			}
		}

		for _, transfer := range transfers {
			if err := s.ingestTransfer(ctx, chain, watched, byContract, transfer); err != nil {
				return err
			}
		}

		if err := s.chainRepo.AdvanceWatermark(ctx, chain.Name, height); err != nil {
			return fmt.Errorf("failed to advance watermark to %d: %w", height, err)
		}
		chain.LastProcessedBlock = height
		metrics.WatcherWatermark.WithLabelValues(chain.Name).Set(float64(height))
		metrics.BlocksProcessed.WithLabelValues(chain.Name).Inc()
	}

	return nil
}

// ingestTransfer records one observed transfer as a Confirming payment.
// Transfers to unknown addresses, in unknown tokens, or in a different
// asset than the invoice was issued for are dropped.
func (s *ChainWatcherService) ingestTransfer(ctx context.Context, chain *models.Chain, watched map[string]*models.Invoice, byContract map[string]*models.Token, transfer interfaces.Transfer) error {
	invoice := watched[transfer.ToAddress]
	if invoice == nil {
		return nil
	}

	symbol := chain.NativeSymbol
	decimals := chain.NativeDecimals
	if transfer.TokenContract != "" {
		token := byContract[transfer.TokenContract]
		if token == nil {
			return nil
		}
		symbol = token.Symbol
		decimals = token.Decimals
	}
	if symbol != invoice.TokenSymbol {
		return nil
	}

	payment := &models.Payment{
		ID:          uuid.New().String(),
		InvoiceID:   invoice.ID,
		Network:     chain.Name,
		TxHash:      transfer.TxHash,
		LogIndex:    transfer.LogIndex,
		FromAddress: transfer.FromAddress,
		ToAddress:   transfer.ToAddress,
		TokenSymbol: symbol,
		AmountRaw:   transfer.AmountRaw.String(),
		Decimals:    decimals,
		BlockNumber: transfer.BlockNumber,
		Status:      models.PaymentStatusConfirming,
	}

	created, err := s.paymentRepo.UpsertObserved(ctx, payment)
	if err != nil {
		return fmt.Errorf("failed to record payment %s: %w", transfer.TxHash, err)
	}
	if created {
		metrics.PaymentsObserved.WithLabelValues(chain.Name).Inc()
		log.Printf("👀 [%s] observed %s %s to invoice %s (tx %s, block %d)",
			chain.Name, payment.AmountRaw, symbol, invoice.ID, transfer.TxHash, transfer.BlockNumber)
	}
	return nil
}

// promoteRipe settles Confirming payments whose block is at least BlockLag
// behind the tip. Each payment is re-verified against the node first: a
// transaction that vanished in a reorg is retracted, one that moved blocks
// is rebound and waits for depth at its new position.
func (s *ChainWatcherService) promoteRipe(ctx context.Context, chain *models.Chain, tip uint64) error {
	if tip < chain.BlockLag {
		return nil
	}
	cutoff := tip - chain.BlockLag

	ripe, err := s.paymentRepo.ListRipe(ctx, chain.Name, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list ripe payments: %w", err)
	}

	reader := s.readers[chain.Name]
	for _, payment := range ripe {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		blockNumber, found, err := reader.TransactionBlock(ctx, payment.TxHash)
		if err != nil {
			metrics.RPCErrors.WithLabelValues(chain.Name).Inc()
			return fmt.Errorf("failed to verify tx %s: %w", payment.TxHash, err)
		}

		if !found {
			retracted, err := s.paymentRepo.Retract(ctx, payment.ID)
			if err != nil {
				return fmt.Errorf("failed to retract payment %s: %w", payment.ID, err)
			}
			if retracted {
				metrics.PaymentsRetracted.WithLabelValues(chain.Name).Inc()
				log.Printf("↩️ [%s] retracted payment %s: tx gone after reorg", chain.Name, payment.TxHash)
			}
			continue
		}

		if blockNumber != payment.BlockNumber {
			if err := s.paymentRepo.UpdateBlockNumber(ctx, payment.ID, blockNumber); err != nil {
				return fmt.Errorf("failed to rebind payment %s: %w", payment.ID, err)
			}
			log.Printf("🔀 [%s] payment %s moved to block %d", chain.Name, payment.TxHash, blockNumber)
			if blockNumber > cutoff {
				continue
			}
		}

		if _, err := s.settlement.ConfirmPayment(ctx, payment.ID, tip-blockNumber); err != nil {
			return err
		}
	}

	return nil
}
