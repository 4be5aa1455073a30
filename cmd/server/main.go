package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ashanw/subplanet-invoicer/internal/config"
	"github.com/ashanw/subplanet-invoicer/internal/db"
	"github.com/ashanw/subplanet-invoicer/internal/logging"
	"github.com/ashanw/subplanet-invoicer/internal/server"
)

var migrateOnlyFlag = flag.Bool("migrate-only", false, "Run DB migrations and exit")

func main() {
	flag.Parse()
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	conn, err := db.ConnectAndMigrate(cfg.DatabaseDSN, log)
	if err != nil {
		log.Fatal("database setup failed", zap.Error(err))
	}
	if *migrateOnlyFlag {
		log.Info("migrations completed; exiting as requested")
		return
	}

	log.Info("starting server", zap.String("env", cfg.Env), zap.String("port", cfg.Port))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: server.New(conn, cfg, log)}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutdown signal received")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
	log.Info("server gracefully stopped")
}
