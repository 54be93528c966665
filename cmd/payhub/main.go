// ====================================
// File: cmd/payhub/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	solclient "github.com/solpayhub/payhub/internal/blockchain/solana"
	"github.com/solpayhub/payhub/internal/config"
	"github.com/solpayhub/payhub/internal/insight"
	"github.com/solpayhub/payhub/internal/logger"
	"github.com/solpayhub/payhub/internal/market"
	"github.com/solpayhub/payhub/internal/notify"
	"github.com/solpayhub/payhub/internal/pay"
	"github.com/solpayhub/payhub/internal/server"
	"github.com/solpayhub/payhub/internal/settle"
	"github.com/solpayhub/payhub/internal/storage"
	"github.com/solpayhub/payhub/internal/storage/memory"
	"github.com/solpayhub/payhub/internal/storage/postgres"
	"github.com/solpayhub/payhub/internal/wallet"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.DebugLogging)
	defer log.Sync()
	log.Info("Starting payhub",
		zap.String("recipient", cfg.RecipientWallet),
		zap.Float64("payment_amount_sol", cfg.PaymentAmountSOL),
		zap.Float64("profit_threshold", cfg.ProfitThreshold))

	var store storage.Storage
	if cfg.PostgresURL != "" {
		store, err = postgres.NewStorage(cfg.PostgresURL, log)
		if err != nil {
			log.Fatal("Failed to connect to storage", zap.Error(err))
		}
	} else {
		log.Warn("No postgres_url configured, using in-memory storage")
		store = memory.NewStorage()
	}
	if err := store.RunMigrations(); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	chain, err := solclient.NewClient(cfg.RPCList, rpc.CommitmentType(cfg.Commitment), log)
	if err != nil {
		log.Fatal("Failed to create Solana client", zap.Error(err))
	}

	recipient, err := solana.PublicKeyFromBase58(cfg.RecipientWallet)
	if err != nil {
		log.Fatal("Invalid recipient wallet", zap.Error(err))
	}

	trader, err := wallet.New(cfg.TraderPrivateKey)
	if err != nil {
		log.Fatal("Failed to load trader wallet", zap.Error(err))
	}

	prices, err := market.NewPriceClient(cfg.BirdeyeURL, cfg.BirdeyeAPIKey, log)
	if err != nil {
		log.Fatal("Failed to create price client", zap.Error(err))
	}

	jupiter := market.NewJupiterClient(cfg.JupiterURL, log)
	executor := market.NewExecutor(jupiter, chain, trader, cfg.SlippageBps, log)
	telegram := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID, log)

	payments := pay.NewService(&pay.ServiceConfig{
		Store:     store,
		Resolver:  pay.NewReferenceResolver(chain, log),
		Verifier:  pay.NewTransferVerifier(chain, log),
		Insights:  insight.NewGenerator(time.Now().UnixNano()),
		Notifier:  telegram,
		Recipient: recipient,
		AmountSOL: cfg.PaymentAmountSOL,
		Label:     cfg.PaymentLabel,
		Message:   cfg.PaymentMessage,
		Logger:    log,
	})

	settlement := settle.NewEngine(&settle.EngineConfig{
		Store:     store,
		Prices:    prices,
		Swaps:     executor,
		Notifier:  telegram,
		Threshold: cfg.ProfitThreshold,
		Workers:   cfg.Workers,
		Logger:    log,
	})

	srv := server.New(payments, settlement, server.NewPositionIntake(store, log), cfg.ListenAddr, log)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-shutdownCh
		log.Info("Signal received, shutting down", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Shutdown error", zap.Error(err))
		}
	}()

	if err := srv.Run(); err != nil {
		log.Fatal("HTTP server error", zap.Error(err))
	}
	log.Info("payhub stopped")
}
