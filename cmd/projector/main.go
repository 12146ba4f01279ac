package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/docflowlabs/docflow-service/internal/config"
	"github.com/docflowlabs/docflow-service/internal/eav"
	"github.com/docflowlabs/docflow-service/internal/logger"
	"github.com/docflowlabs/docflow-service/internal/projection"
	"github.com/docflowlabs/docflow-service/internal/repo"

	"github.com/go-redis/redis/v8"
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

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	repository := repo.NewRepository(gdb, log)
	objects := eav.NewStore(repository, log)
	manager := projection.NewManager(repository, objects, projection.NewRedisStore(rdb), log)
	consumer := projection.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, manager, log)
	defer consumer.Close()

	if cfg.Server.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
			if err := http.ListenAndServe(addr, promhttp.Handler()); err != nil {
				log.Errorf("metrics listener: %v", err)
			}
		}()
	}

	log.Info("docflow-projector started")
	if err := consumer.Run(context.Background()); err != nil {
		log.Fatalf("consumer: %v", err)
	}
}
