// gateway relays live bars and strategy signals from Redis PubSub to
// WebSocket clients, with per-channel sequencing and gap backfill.
//
// Usage:
//
//	gateway -addr :8089
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lineflow/config"
	"lineflow/internal/gateway"
	"lineflow/internal/logger"

	goredis "github.com/go-redis/redis/v8"
)

func main() {
	addr := flag.String("addr", ":8089", "listen address for ws and REST endpoints")
	flag.Parse()

	lg := logger.Init("gateway", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg := config.Load()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		lg.Error("redis unreachable", "addr", cfg.RedisAddr, "err", err)
		os.Exit(1)
	}

	hub := gateway.NewHub(rdb, lg)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:         *addr,
		Handler:      hub.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		lg.Info("listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Error("http server failed", "err", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		lg.Info("shutting down", "signal", s.String())
	case <-ctx.Done():
	}

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	srv.Shutdown(shutCtx)
	cancel()
	rdb.Close()
}
