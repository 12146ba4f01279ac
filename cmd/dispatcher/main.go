package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/docflowlabs/docflow-service/internal/config"
	"github.com/docflowlabs/docflow-service/internal/logger"
	"github.com/docflowlabs/docflow-service/internal/outbox"
	"github.com/docflowlabs/docflow-service/internal/repo"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	pub := outbox.NewKafkaPublisher(cfg.Kafka.Brokers)
	defer pub.Close()

	repository := repo.NewRepository(gdb, log)
	dispatcher := outbox.NewDispatcher(repository, pub, log)

	if cfg.Server.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				log.Errorf("metrics listener: %v", err)
			}
		}()
	}

	log.Info("docflow-dispatcher started")
	dispatcher.Run(context.Background(), 1*time.Second)
}
