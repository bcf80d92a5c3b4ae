package main

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/caarlos0/env/v6"
	"go.uber.org/zap"

	"campus-ranked/internal/directory"
	"campus-ranked/internal/ranked"
	"campus-ranked/internal/server"
	"campus-ranked/internal/storage"
)

func main() {
	rand.Seed(time.Now().UnixNano())

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("zap.NewDevelopment: %v", err)
	}
	defer logger.Sync()

	sugar := logger.Sugar()
	sugar.Info("Application is starting")

	serverCfg := server.EnvConfig{}
	if err := env.Parse(&serverCfg); err != nil {
		sugar.Fatalf("Cannot parse env config: %v", err)
	}

	storageCfg := storage.Config{}
	if err := env.Parse(&storageCfg); err != nil {
		sugar.Fatalf("Cannot parse storage config: %v", err)
	}

	store, err := storage.New(sugar, storageCfg, storage.ConnectionTimeout(30*time.Second))
	if err != nil {
		sugar.Fatalf("Cannot create Store instance: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		sugar.Fatalf("Cannot apply schema: %v", err)
	}

	service := ranked.NewService(sugar, store, directory.New(store))

	srv, err := server.NewServer(sugar, service,
		server.WithEnvConfig(serverCfg),
		server.ReadTimeout(5*time.Second),
		server.RegisterAfterShutdown(store.Close),
	)
	if err != nil {
		sugar.Fatalf("Cannot create Server instance: %v", err)
	}

	if err := srv.Start(); err != nil {
		sugar.Fatalf("Cannot start http srv: %v", err)
	}
}
