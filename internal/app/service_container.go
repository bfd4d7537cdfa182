package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/necko-moe/necko3-core/internal/clients"
	"github.com/necko-moe/necko3-core/internal/config"
	"github.com/necko-moe/necko3-core/internal/db"
	"github.com/necko-moe/necko3-core/internal/interfaces"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/repository"
	"github.com/necko-moe/necko3-core/internal/services"
	"github.com/necko-moe/necko3-core/internal/utils"

	"gorm.io/gorm"
)

// ServiceContainer wires repositories, clients and services once at startup.
type ServiceContainer struct {
	// Database
	DB *gorm.DB

	// Repositories
	ChainRepo   repository.ChainRepository
	InvoiceRepo repository.InvoiceRepository
	PaymentRepo repository.PaymentRepository
	WebhookRepo repository.WebhookRepository

	// Clients
	NATSClient *clients.NATSClient
	Readers    map[string]interfaces.LedgerReader

	// Core Services
	AddressDeriver           interfaces.AddressDeriver
	WebSocketPushService     *services.WebSocketPushService
	InvoiceService           *services.InvoiceService
	SettlementService        *services.SettlementService
	ChainWatcherService      *services.ChainWatcherService
	InvoiceJanitorService    *services.InvoiceJanitorService
	WebhookDispatcherService *services.WebhookDispatcherService

	natsOnce sync.Once
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the container once. Chains whose RPC endpoint
// cannot be reached are skipped with a warning; the rest of the gateway
// still comes up.
func InitializeContainer() (*ServiceContainer, error) {
	var initErr error

	containerOnce.Do(func() {
		log.Println("🚀 Initializing Service Container...")

		container := &ServiceContainer{
			DB:      db.DB,
			Readers: make(map[string]interfaces.LedgerReader),
		}

		// 1. Initialize Repositories
		container.initRepositories()

		// 2. Initialize Clients (ledger readers are per-chain, NATS optional)
		if err := container.initClients(); err != nil {
			initErr = fmt.Errorf("failed to initialize clients: %w", err)
			return
		}

		// 3. Initialize Core Services
		container.initCoreServices()

		Container = container
		log.Println("✅ Service Container initialized successfully")
	})

	return Container, initErr
}

func (c *ServiceContainer) initRepositories() {
	log.Println("📦 Initializing Repositories...")

	c.ChainRepo = repository.NewChainRepository(c.DB)
	c.InvoiceRepo = repository.NewInvoiceRepository(c.DB)
	c.PaymentRepo = repository.NewPaymentRepository(c.DB)
	c.WebhookRepo = repository.NewWebhookRepository(c.DB)

	log.Println("✅ Repositories initialized")
}

// initClients dials one ledger reader per enabled chain and, when
// configured, the NATS event publisher.
func (c *ServiceContainer) initClients() error {
	log.Println("🔌 Initializing Clients...")

	cfg := config.AppConfig
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	for _, chainCfg := range cfg.Chains {
		if !chainCfg.Enabled {
			continue
		}

		family, err := utils.GetFamily(models.ChainFamily(chainCfg.Family))
		if err != nil {
			return fmt.Errorf("chain %s: %w", chainCfg.Name, err)
		}
		if !family.WatcherSupport {
			log.Printf("⚠️ [%s] family %s has no ledger reader yet, chain will not be watched", chainCfg.Name, chainCfg.Family)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		reader, err := clients.NewEVMClient(ctx, chainCfg.RPCURL)
		cancel()
		if err != nil {
			log.Printf("⚠️ [%s] failed to connect to RPC endpoint: %v", chainCfg.Name, err)
			log.Printf("   → The chain stays unwatched until the gateway restarts with a reachable endpoint")
			continue
		}
		c.Readers[chainCfg.Name] = reader
		log.Printf("✅ [%s] ledger reader connected", chainCfg.Name)
	}

	if cfg.NATS.Enabled && cfg.NATS.URL != "" {
		if err := c.InitNATSClient(); err != nil {
			log.Printf("⚠️ NATS initialization failed, events will not be published: %v", err)
		}
	} else {
		log.Println("📡 NATS disabled, lifecycle events go to webhooks and the ops websocket only")
	}

	return nil
}

func (c *ServiceContainer) initCoreServices() {
	log.Println("🔧 Initializing Core Services...")

	cfg := config.AppConfig

	c.AddressDeriver = utils.NewAccountAddressDeriver()
	c.WebSocketPushService = services.NewWebSocketPushService()

	// nil interface, not a typed-nil NATS client, when NATS is off
	var publisher interfaces.EventPublisher
	if c.NATSClient != nil {
		publisher = c.NATSClient
	}

	c.InvoiceService = services.NewInvoiceService(
		c.ChainRepo,
		c.InvoiceRepo,
		c.PaymentRepo,
		c.WebhookRepo,
		c.AddressDeriver,
		cfg.Webhook.SecretSeed,
	)

	c.SettlementService = services.NewSettlementService(
		c.InvoiceRepo,
		publisher,
		c.WebSocketPushService,
		cfg.Webhook.MaxRetries,
	)

	intervals := make(map[string]time.Duration)
	for _, chainCfg := range cfg.Chains {
		if chainCfg.PollInterval > 0 {
			intervals[chainCfg.Name] = time.Duration(chainCfg.PollInterval) * time.Second
		}
	}
	c.ChainWatcherService = services.NewChainWatcherService(
		c.ChainRepo,
		c.InvoiceRepo,
		c.PaymentRepo,
		c.SettlementService,
		c.Readers,
		intervals,
		time.Duration(cfg.Watcher.PollInterval)*time.Second,
		cfg.Watcher.MaxBlocksPerCycle,
	)

	c.InvoiceJanitorService = services.NewInvoiceJanitorService(
		c.InvoiceRepo,
		publisher,
		c.WebSocketPushService,
		time.Duration(cfg.Janitor.Interval)*time.Second,
		cfg.Webhook.MaxRetries,
	)

	sender := clients.NewWebhookClient(time.Duration(cfg.Webhook.DeliveryTimeout) * time.Second)
	c.WebhookDispatcherService = services.NewWebhookDispatcherService(
		c.WebhookRepo,
		c.InvoiceRepo,
		sender,
		services.DispatcherOptions{
			Workers:         cfg.Webhook.Workers,
			BatchSize:       cfg.Webhook.BatchSize,
			PollInterval:    time.Duration(cfg.Webhook.PollInterval) * time.Second,
			RetryBase:       time.Duration(cfg.Webhook.RetryBase) * time.Second,
			RetryCap:        time.Duration(cfg.Webhook.RetryCap) * time.Second,
			ClaimLease:      time.Duration(cfg.Webhook.ClaimLease) * time.Second,
			ReclaimInterval: time.Duration(cfg.Webhook.ReclaimInterval) * time.Second,
		},
	)

	log.Println("✅ Core Services initialized")
}

// InitNATSClient connects the JetStream publisher.
func (c *ServiceContainer) InitNATSClient() error {
	var initErr error

	c.natsOnce.Do(func() {
		log.Println("🔌 Connecting to NATS...")

		natsClient, err := clients.NewNATSClient(config.AppConfig.NATS.URL)
		if err != nil {
			initErr = fmt.Errorf("failed to create NATS client: %w", err)
			return
		}

		c.NATSClient = natsClient
		log.Printf("✅ NATS client connected: %s", config.AppConfig.NATS.URL)
	})

	return initErr
}

// StartServices launches the background loops: chain watchers, the invoice
// janitor and the webhook dispatcher.
func (c *ServiceContainer) StartServices() error {
	if err := c.ChainWatcherService.Start(); err != nil {
		return fmt.Errorf("failed to start chain watcher: %w", err)
	}
	c.InvoiceJanitorService.Start()
	c.WebhookDispatcherService.Start()
	return nil
}

// Cleanup stops background services and closes external connections.
func (c *ServiceContainer) Cleanup() {
	log.Println("🧹 Cleaning up Service Container...")

	if c.ChainWatcherService != nil {
		c.ChainWatcherService.Stop()
	}
	if c.InvoiceJanitorService != nil {
		c.InvoiceJanitorService.Stop()
	}
	if c.WebhookDispatcherService != nil {
		c.WebhookDispatcherService.Stop()
	}

	for name, reader := range c.Readers {
		reader.Close()
		log.Printf("🔌 [%s] ledger reader closed", name)
	}

	if c.NATSClient != nil {
		c.NATSClient.Close()
	}

	log.Println("✅ Service Container cleaned up")
}
