package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/necko-moe/necko3-core/internal/app"
	"github.com/necko-moe/necko3-core/internal/config"
	"github.com/necko-moe/necko3-core/internal/db"
	"github.com/necko-moe/necko3-core/internal/handlers"
	"github.com/necko-moe/necko3-core/internal/models"
	"github.com/necko-moe/necko3-core/internal/repository"
	"github.com/necko-moe/necko3-core/internal/router"
	"github.com/necko-moe/necko3-core/internal/utils"

	"github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "", "config file path (default config.yaml, config.local.yaml preferred)")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	logger := setupLogger(config.AppConfig.Log)

	db.InitDB()

	if err := seedChainRegistry(); err != nil {
		log.Fatalf("❌ Failed to seed chain registry: %v", err)
	}

	container, err := app.InitializeContainer()
	if err != nil {
		log.Fatalf("❌ Failed to initialize service container: %v", err)
	}

	if err := container.StartServices(); err != nil {
		log.Fatalf("❌ Failed to start services: %v", err)
	}

	invoiceHandler := handlers.NewInvoiceHandler(container.InvoiceService)
	chainHandler := handlers.NewChainHandler(container.ChainRepo)
	statsHandler := handlers.NewStatsHandler(container.InvoiceRepo, container.PaymentRepo, container.WebhookRepo, container.WebSocketPushService)
	wsHandler := handlers.NewWebSocketHandler(container.WebSocketPushService)

	r := router.SetupRouter(logger, invoiceHandler, chainHandler, statsHandler, wsHandler)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("🚀 Gateway core listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP server shutdown: %v", err)
	}

	container.Cleanup()
	log.Println("👋 Gateway stopped")
}

// setupLogger configures the logrus instance handed to middleware and the
// router. Background services log through the standard logger.
func setupLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}

// seedChainRegistry pushes the configured chains and tokens into the
// registry table. Policy columns follow the config on every boot;
// last_processed_block is owned by the watchers and never touched here.
func seedChainRegistry() error {
	chainRepo := repository.NewChainRepository(db.DB)
	deriver := utils.NewAccountAddressDeriver()
	ctx := context.Background()

	for _, chainCfg := range config.AppConfig.Chains {
		family := models.ChainFamily(chainCfg.Family)
		familyInfo, err := utils.GetFamily(family)
		if err != nil {
			return fmt.Errorf("chain %s: %w", chainCfg.Name, err)
		}
		if chainCfg.BlockLag < 0 {
			return fmt.Errorf("chain %s: blockLag must not be negative", chainCfg.Name)
		}

		// a bad master key should fail at boot, not at first issuance
		if familyInfo.Derivable && chainCfg.Enabled {
			if _, err := deriver.Derive(chainCfg.MasterPublicKey, 0); err != nil {
				return fmt.Errorf("chain %s: master public key rejected: %w", chainCfg.Name, err)
			}
		}

		chain := &models.Chain{
			Name:            chainCfg.Name,
			Family:          family,
			RPCURL:          chainCfg.RPCURL,
			MasterPublicKey: chainCfg.MasterPublicKey,
			NativeSymbol:    chainCfg.NativeSymbol,
			NativeDecimals:  chainCfg.NativeDecimals,
			BlockLag:        uint64(chainCfg.BlockLag),
			Enabled:         chainCfg.Enabled,
		}

		tokens := make([]models.Token, 0, len(chainCfg.Tokens))
		for _, tokenCfg := range chainCfg.Tokens {
			contract, err := utils.NormalizeAddress(family, tokenCfg.Contract)
			if err != nil {
				return fmt.Errorf("chain %s token %s: %w", chainCfg.Name, tokenCfg.Symbol, err)
			}
			tokens = append(tokens, models.Token{
				ChainName: chainCfg.Name,
				Symbol:    tokenCfg.Symbol,
				Contract:  contract,
				Decimals:  tokenCfg.Decimals,
			})
		}

		if err := chainRepo.UpsertFromConfig(ctx, chain, tokens); err != nil {
			return fmt.Errorf("chain %s: %w", chainCfg.Name, err)
		}
		log.Printf("⛓️ Registered chain %s (%s, lag %d, %d tokens, enabled=%v)",
			chain.Name, chain.Family, chain.BlockLag, len(tokens), chain.Enabled)
	}

	return nil
}
