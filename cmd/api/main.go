package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/meridalabs/storefront/internal/config"
	"github.com/meridalabs/storefront/internal/httpx"
	kafkax "github.com/meridalabs/storefront/internal/kafka"
	"github.com/meridalabs/storefront/internal/postgres"
	"github.com/meridalabs/storefront/internal/redisx"
	"github.com/meridalabs/storefront/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(ctx, cfg.PostgresDSN); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per lifecycle topic
	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, store.TopicPurchaseCreated, 1024)
	pCreated.Start(ctx)
	pUpdated := kafkax.NewProducer(cfg.KafkaBrokers, store.TopicPurchaseUpdated, 1024)
	pUpdated.Start(ctx)
	pCancelled := kafkax.NewProducer(cfg.KafkaBrokers, store.TopicPurchaseCancelled, 1024)
	pCancelled.Start(ctx)

	// Handlers
	router := httpx.NewRouter()
	ph := &httpx.PurchasesHandler{
		Engine:    &store.Engine{DB: db},
		Redis:     rdb,
		Created:   pCreated,
		Updated:   pUpdated,
		Cancelled: pCancelled,
		Service:   cfg.ServiceName,
	}
	ph.Register(router)
	(&httpx.ProductsHandler{Catalog: &store.Catalog{DB: db}}).Register(router)
	(&httpx.UsersHandler{Users: &store.Users{DB: db}}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop producer loops; they flush their inboxes on the way out
	pCreated.WaitClosed()
	pUpdated.WaitClosed()
	pCancelled.WaitClosed()
}
