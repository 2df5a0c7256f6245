package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"intentledger/internal/config"
	"intentledger/internal/ledger"
	"intentledger/internal/logger"
	"intentledger/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	lg := logger.NewStdLogger(cfg.Service.LogLevel)

	store, closeStore, err := ledger.Open(context.Background(), ledger.Options{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		DSN:     cfg.Storage.DSN,
		Name:    cfg.Storage.Name,
	})
	if err != nil {
		log.Fatalf("storage error: %v", err)
	}
	defer closeStore()
	lg.Info("storage backend %s ready", cfg.Storage.Backend)

	apiServer := server.NewServer(cfg, store, lg.Named("api"))

	go func() {
		if err := apiServer.Start(); err != nil {
			lg.Error("server stopped: %v", err)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer cancel()
	_ = apiServer.Shutdown(ctx)
}
