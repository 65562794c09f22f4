package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"regdesk/internal/catalog"
	"regdesk/internal/config"
	"regdesk/internal/membership"
	"regdesk/internal/order"
	"regdesk/internal/order/api"
	"regdesk/internal/order/db"
	"regdesk/internal/order/kafka"
	rediswrap "regdesk/internal/order/redis"
	"regdesk/internal/receipt"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := config.Load()

	// --- PostgreSQL Setup ---
	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}

	bunDB := bun.NewDB(sqldb, pgdialect.New())
	db.Migrate(bunDB)

	// --- Redis Setup ---
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	// --- Kafka Setup ---
	var producer order.KafkaPublisher
	var kafkaProd *kafka.Producer
	if cfg.Kafka.Enabled {
		kafkaProd = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topics)
		producer = kafkaProd
	}

	// --- Initialize Dependencies ---
	dbLayer := &db.DB{Bun: bunDB}
	catalogStore := &catalog.Store{Bun: bunDB}
	attendanceLock := rediswrap.NewRedis(redisClient, cfg.Redis.LockTTL)
	charger := order.NewStripeCharger(cfg.Stripe.ChargeTimeout)
	mailer := receipt.NewMailer(cfg.Email)
	memberships := membership.NewService(dbLayer)

	log.Println("Initializing Order Service...")
	service := order.NewOrderService(
		dbLayer,
		catalogStore,
		attendanceLock,
		producer,
		charger,
		mailer,
		memberships,
		cfg.Builder,
	)
	handler := api.NewHandler(service)

	// --- Setup Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	handler.Routes(r)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Printf("Order Service running on %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutdown signal received. Cleaning up...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	if kafkaProd != nil {
		if err := kafkaProd.Close(); err != nil {
			log.Printf("Kafka producer close: %v", err)
		}
	}

	log.Println("Server exited gracefully")
}
