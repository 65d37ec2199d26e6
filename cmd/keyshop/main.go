package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-keyshop/internal/cart"
	cartdb "ms-keyshop/internal/cart/db"
	"ms-keyshop/internal/config"
	"ms-keyshop/internal/database/migrations"
	"ms-keyshop/internal/kafka"
	"ms-keyshop/internal/logger"
	"ms-keyshop/internal/payment"
	paymentdb "ms-keyshop/internal/payment/db"
	"ms-keyshop/internal/reservation"
	reservationdb "ms-keyshop/internal/reservation/db"
	"ms-keyshop/internal/stock"
	stockdb "ms-keyshop/internal/stock/db"
)

func main() {
	_ = godotenv.Load()

	log := logger.NewLogger()
	defer log.Close()

	cfg := config.Load()

	// --- PostgreSQL ---
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres connection: %v", err))
	}
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	runner := migrations.NewRunner(bunDB, migrations.DefaultOptions())
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	// --- Redis ---
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}
	stockCache := stock.NewRedisCache(redisClient, 10*time.Minute)

	// --- Kafka ---
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		topics := []string{
			cfg.Kafka.Topics.OrderCancelled,
			cfg.Kafka.Topics.ReservationReleased,
			cfg.Kafka.Topics.StockChanged,
		}
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, topics); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic bootstrap failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		defer producer.Close()
	}

	// --- Stripe gateway ---
	gateway, err := payment.NewStripeGateway(log)
	if err != nil {
		log.Fatal("STRIPE", fmt.Sprintf("Gateway init failed: %v", err))
	}

	// --- Engine wiring ---
	cartService := cart.NewService(&cartdb.DB{Bun: bunDB}, cfg.Engine.GuestCartTTL, cfg.Engine.UserCartTTL, log)
	cleanup := cart.NewCleanupScheduler(cartService.DB, cfg.Engine.CleanupInterval,
		cfg.Engine.GuestCartTTL, cfg.Engine.UserCartTTL, cfg.Engine.ExpiredCartGrace, log)

	var stockEvents stock.EventPublisher
	var reservationEvents reservation.EventPublisher
	var orderEvents payment.EventPublisher
	if producer != nil {
		stockEvents = producer
		reservationEvents = producer
		orderEvents = producer
	}

	recalculator := stock.NewRecalculator(&stockdb.DB{Bun: bunDB}, stockCache, stockEvents, log)
	reservations := reservation.NewService(&reservationdb.DB{Bun: bunDB}, recalculator, reservationEvents, log)
	reconciler := payment.NewReconciler(&paymentdb.DB{Bun: bunDB}, cartService, reservations, gateway,
		orderEvents, cfg.Engine.ReconcileInterval, cfg.Engine.PaymentTimeout, cfg.Engine.CartLockTimeout, log)

	// --- Background loops ---
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		cleanup.Run(ctx)
	}()

	// --- Ops endpoints ---
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if err := sqldb.PingContext(req.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Ops server running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received, stopping loops...")

	cancel()
	wg.Wait()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "Exited gracefully")
}
