package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/kravings/internal/adapter/events"
	"github.com/rl1809/kravings/internal/adapter/storage"
	"github.com/rl1809/kravings/internal/app"
	"github.com/rl1809/kravings/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	store := storage.NewSQLStore(db, storage.DialectMySQL)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		PoolSize: 100,
	})
	cache := storage.NewRedisAdapter(rdb, cfg.IdempotencyTTL, cfg.CartTTL)
	if err := cache.Ping(ctx); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")

	publisher := events.New(cfg.KafkaBrokers, cfg.KafkaOrderTopic)
	if len(cfg.KafkaBrokers) == 0 {
		log.Println("KAFKA_BROKERS not set, order events disabled")
	} else {
		log.Printf("publishing order events to %s", cfg.KafkaOrderTopic)
	}

	if cfg.PlatformAccountID != "" {
		if err := store.CreateAccount(ctx, cfg.PlatformAccountID); err == nil {
			log.Printf("created platform account %s", cfg.PlatformAccountID)
		}
	}

	a := app.New(cfg, store, cache, publisher)

	// Start gRPC server
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := a.GRPC.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.HTTP,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	log.Println("HTTP server stopped")

	a.GRPC.GracefulStop()
	log.Println("gRPC server stopped")

	if err := publisher.Close(); err != nil {
		log.Printf("closing kafka writer: %v", err)
	}
	rdb.Close()
	db.Close()
	log.Println("connections closed")
}
