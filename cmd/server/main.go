package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/docflowlabs/docflow-service/internal/config"
	"github.com/docflowlabs/docflow-service/internal/eav"
	"github.com/docflowlabs/docflow-service/internal/engine"
	"github.com/docflowlabs/docflow-service/internal/logger"
	"github.com/docflowlabs/docflow-service/internal/model"
	"github.com/docflowlabs/docflow-service/internal/projection"
	"github.com/docflowlabs/docflow-service/internal/repo"
	"github.com/docflowlabs/docflow-service/internal/service"
	httptransport "github.com/docflowlabs/docflow-service/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true, TranslateError: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Document{}, &model.DocumentLine{}, &model.Partner{},
		&model.OutboxEntry{}, &model.CommandLog{},
		&model.ObjectDefinition{}, &model.ObjectField{},
		&model.ObjectRecord{}, &model.RecordAttribute{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis (read store)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. repo, engine, services
	repository := repo.NewRepository(gdb, log)
	eng := engine.New(gdb, log, cfg.Server.ExposeErrors)
	documents := service.NewDocumentService(repository, eng, log)
	partners := service.NewPartnerService(repository, eng, cfg.Retry, log)
	objects := eav.NewStore(repository, log)
	views := projection.NewManager(repository, objects, projection.NewRedisStore(rdb), log)

	// 6. gin router
	router := httptransport.NewRouter(httptransport.Services{
		Documents:    documents,
		Partners:     partners,
		Objects:      objects,
		Views:        views,
		ExposeErrors: cfg.Server.ExposeErrors,
	}, cfg.RateLimit, log)

	// 7. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("docflow-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
