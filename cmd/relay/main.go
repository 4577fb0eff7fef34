package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medilink/vitals-relay/internal/batch"
	"github.com/medilink/vitals-relay/internal/config"
	"github.com/medilink/vitals-relay/internal/database"
	"github.com/medilink/vitals-relay/internal/device"
	"github.com/medilink/vitals-relay/internal/hub"
	"github.com/medilink/vitals-relay/internal/relay"
	"github.com/medilink/vitals-relay/internal/server"
	"github.com/medilink/vitals-relay/internal/session"
	"github.com/medilink/vitals-relay/internal/store"
)

func main() {
	log.Printf("[INFO] Starting vitals relay...")

	cfg := config.Load()
	log.Printf("[INFO] Configuration loaded: http_port=%s db=%s@%s:%s flush_interval=%s",
		cfg.HTTPPort, cfg.DBName, cfg.DBHost, cfg.DBPort, cfg.FlushInterval)

	db, err := database.Open(cfg.MySQLDSN())
	if err != nil {
		log.Fatalf("[FATAL] Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	if cfg.RunMigrations {
		if err := database.Migrate(db); err != nil {
			log.Fatalf("[FATAL] %v", err)
		}
	}

	// Redis-кэш сессий опционален: без REDIS_ADDR каталог ходит сразу в MySQL
	var cache session.CacheStore
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("[WARN] Redis unavailable, session cache disabled: %v", err)
		} else {
			cache = session.NewRedisStore(redisClient, cfg.SessionTTL)
			log.Printf("[INFO] Session cache enabled at %s", cfg.RedisAddr)
		}
		cancel()
	}

	directory := session.NewDirectory(session.NewMySQLRepository(db), cache)
	gateway := store.NewGateway(db)
	aggregator := batch.NewAggregator(cfg.FlushInterval, gateway)

	wsHub := hub.NewHub()
	service := relay.NewService(directory, wsHub, aggregator, gateway)
	wsHub.SetController(service)

	link := device.NewLink(cfg.SerialBaud, cfg.ConnectTimeout, service)
	service.SetLink(link)

	// Один проход по кандидатам; без устройства relay продолжает работать
	if err := link.OpenFirst(cfg.SerialPorts); err != nil {
		log.Printf("[WARN] %v — running without device", err)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: server.NewServer(service, wsHub).Router(),
	}

	serverErrChan := make(chan error, 1)
	go func() {
		log.Printf("[INFO] HTTP/WebSocket server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		log.Printf("[ERROR] Server error: %v", err)

	case sig := <-shutdownChan:
		log.Printf("[INFO] Received signal %v, starting graceful shutdown...", sig)

		// Сначала завершаем сессии (без таймаута), потом порт, потом listener
		service.Shutdown(context.Background())

		if err := link.Close(); err != nil {
			log.Printf("[WARN] Failed to close serial port: %v", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] HTTP shutdown: %v", err)
		}
		cancel()

		log.Printf("[INFO] Graceful shutdown completed")
	}

	log.Printf("[INFO] Server stopped")
}
