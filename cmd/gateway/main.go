package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainproof/nftgate/pkg/chain"
	"github.com/chainproof/nftgate/pkg/config"
	"github.com/chainproof/nftgate/pkg/facilitator"
	"github.com/chainproof/nftgate/pkg/replay"
	"github.com/chainproof/nftgate/pkg/server"
	"github.com/chainproof/nftgate/pkg/verify"
	"github.com/chainproof/nftgate/pkg/watcher"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	listenAddr := flag.String("listen", ":8080", "Listen address")
	ethRPC := flag.String("eth-rpc", "", "Ethereum RPC endpoint")
	ethWS := flag.String("eth-ws", "", "Ethereum WebSocket endpoint for the transfer watcher")
	tokenContract := flag.String("token-contract", "", "Token contract address (ERC-721 or ERC-1155)")

	facilitatorURL := flag.String("facilitator-url", "", "Payment facilitator verify endpoint")
	facilitatorKey := flag.String("facilitator-key", "", "Bearer token for the facilitator API")

	payoutAddr := flag.String("payout-address", "", "Settlement address in payment descriptors")
	paymentAsset := flag.String("payment-asset", "", "ERC-20 asset address for payments")
	paymentAmount := flag.String("payment-amount", "", "Required payment in atomic units")
	paymentNetwork := flag.String("payment-network", "", "Payment network name (e.g. base-sepolia)")
	resourceURL := flag.String("resource-url", "", "URL of the gated resource")

	redisAddr := flag.String("redis-addr", "", "Redis address for a shared replay store (empty = in-memory)")

	callTimeout := flag.Duration("call-timeout", 10*time.Second, "Timeout per external call")
	cacheTTL := flag.Duration("balance-cache-ttl", time.Minute, "Balance check cache TTL")
	corsOrigin := flag.String("cors-origin", "", "Allowed CORS origin (e.g. https://app.example.com)")

	flag.Parse()

	// Load config
	var cfg *config.Config
	if *configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Override with flags
	if *listenAddr != ":8080" || cfg.ListenAddr == "" {
		cfg.ListenAddr = *listenAddr
	}
	if *ethRPC != "" {
		cfg.EthereumRPC = *ethRPC
	}
	if *ethWS != "" {
		cfg.EthereumWS = *ethWS
	}
	if *tokenContract != "" {
		cfg.TokenContract = *tokenContract
	}
	if *facilitatorURL != "" {
		cfg.FacilitatorURL = *facilitatorURL
	}
	if *facilitatorKey != "" {
		cfg.FacilitatorKey = *facilitatorKey
	}
	if *payoutAddr != "" {
		cfg.PayoutAddress = *payoutAddr
	}
	if *paymentAsset != "" {
		cfg.PaymentAsset = *paymentAsset
	}
	if *paymentAmount != "" {
		cfg.PaymentAmount = *paymentAmount
	}
	if *paymentNetwork != "" {
		cfg.PaymentNetwork = *paymentNetwork
	}
	if *resourceURL != "" {
		cfg.ResourceURL = *resourceURL
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	if *callTimeout != 10*time.Second {
		cfg.CallTimeout = *callTimeout
	}
	if *cacheTTL != time.Minute {
		cfg.BalanceCacheTTL = *cacheTTL
	}
	if *corsOrigin != "" {
		cfg.CORSOrigin = *corsOrigin
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Replay store: Redis when configured, otherwise process-local
	var store replay.Store
	if cfg.RedisAddr != "" {
		rs := replay.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, 0)
		defer rs.Close()
		store = rs
		log.Printf("Replay store: redis at %s", cfg.RedisAddr)
	} else {
		store = replay.NewMemoryStore()
		log.Printf("Replay store: in-memory (single instance only)")
	}

	// Chain reader
	reader, err := chain.Dial(cfg.EthereumRPC, cfg.TokenContract, cfg.CallTimeout, cfg.BalanceCacheTTL)
	if err != nil {
		log.Fatalf("Failed to create chain reader: %v", err)
	}
	defer reader.Close()

	// Payment facilitator client
	payments := facilitator.NewClient(facilitator.Config{
		URL:         cfg.FacilitatorURL,
		APIKey:      cfg.FacilitatorKey,
		HTTPTimeout: cfg.CallTimeout,
	})

	verifier := verify.New(store, payments, reader)
	srv := server.New(cfg, verifier)

	if cfg.CORSOrigin != "" {
		log.Printf("CORS enabled for origin: %s", cfg.CORSOrigin)
	}

	// Start transfer watcher if a WebSocket endpoint is configured
	if cfg.EthereumWS != "" {
		w, err := watcher.NewWatcher(cfg.EthereumWS, reader.Contract(), reader)
		if err != nil {
			log.Printf("Warning: failed to start transfer watcher: %v", err)
		} else {
			go w.Start(context.Background())
			defer w.Stop()
			log.Printf("Transfer watcher started on %s", cfg.TokenContract)
		}
	}

	log.Printf("Ownership verification gateway starting")
	log.Printf("  Ethereum RPC:  %s", cfg.EthereumRPC)
	log.Printf("  Contract:      %s", cfg.TokenContract)
	log.Printf("  Facilitator:   %s", cfg.FacilitatorURL)
	log.Printf("  Payout:        %s", cfg.PayoutAddress)
	log.Printf("  Network:       %s", cfg.PaymentNetwork)

	// Graceful shutdown
	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Gateway listening on %s", cfg.ListenAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v, shutting down...", sig)
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Gateway stopped")
}
