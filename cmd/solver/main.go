package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"intentledger/internal/config"
	"intentledger/internal/identity"
	"intentledger/internal/logger"
	"intentledger/internal/payout"
	"intentledger/internal/solver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	lg := logger.NewStdLogger(cfg.Service.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var payClient payout.Client = payout.FakeClient{}
	if cfg.Chain.PrivateKey != "" {
		ethClient, err := payout.NewEthClient(ctx, payout.EthClientConfig{
			RPCURL:         cfg.Chain.RPCURL,
			PrivateKeyHex:  cfg.Chain.PrivateKey,
			ChainID:        cfg.Chain.ChainID,
			ChainName:      cfg.Chain.Name,
			NativeAsset:    cfg.Chain.NativeAsset,
			ReceiptTimeout: cfg.Chain.ReceiptTimeout,
		})
		if err != nil {
			log.Fatalf("payout client error: %v", err)
		}
		defer ethClient.Close()
		payClient = ethClient
	} else {
		lg.Notice("CHAIN_PRIVATE_KEY not set, using fake payouts")
	}

	if hc, ok := payClient.(payout.HealthChecker); ok {
		if err := hc.Ping(ctx); err != nil {
			log.Fatalf("payout backend unreachable: %v", err)
		}
	}

	client := solver.NewClient(cfg.Solver.RegistryURL, identity.Identity(cfg.Solver.CallerID), cfg.Solver.Secret, lg.Named("registry"))
	s := solver.New(client, payClient, solver.Options{
		Interval: cfg.Solver.PollInterval,
		Retry:    cfg.Retry,
		DLQPath:  cfg.Solver.DLQPath,
		Chains:   cfg.Solver.Chains,
	}, lg.Named("solver"))

	if cfg.Solver.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", s.MetricsHandler())
		metricsServer := &http.Server{
			Addr:              cfg.Solver.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 15 * time.Second,
		}
		go func() {
			lg.Notice("Solver metrics listening on %s", cfg.Solver.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Error("metrics server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		lg.Error("solver stopped: %v", err)
	}
}
