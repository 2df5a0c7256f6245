package main

import (
	"context"
	"log"

	restate "github.com/restatedev/sdk-go"
	"github.com/restatedev/sdk-go/server"

	"intentledger/internal/config"
	"intentledger/internal/logger"
	"intentledger/internal/restatehost"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	lg := logger.NewStdLogger(cfg.Service.LogLevel).Named("restatehost")

	restateServer := server.NewRestate()
	if err := restateServer.Bind(restate.Reflect(restatehost.IntentRegistry{})); err != nil {
		log.Fatalf("bind IntentRegistry: %v", err)
	}

	lg.Notice("Starting IntentRegistry virtual object on %s", cfg.Service.RestateAddr)
	lg.Info("exclusive handlers: Initialize, CreateIntent, MarkFulfilled; shared: ListOpenIntents, GetIntent")

	if err := restateServer.Start(context.Background(), cfg.Service.RestateAddr); err != nil {
		log.Fatalf("restate server error: %v", err)
	}
}
