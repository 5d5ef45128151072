package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhixuli0406/taiyuan-api/internal/api"
	"github.com/zhixuli0406/taiyuan-api/internal/checkout"
	"github.com/zhixuli0406/taiyuan-api/internal/config"
	"github.com/zhixuli0406/taiyuan-api/internal/database"
	"github.com/zhixuli0406/taiyuan-api/internal/gateway"
	"github.com/zhixuli0406/taiyuan-api/internal/metrics"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		logger.Error("connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	payment := gateway.NewPaymentAdapter(cfg.Payment)
	logistics := gateway.NewLogisticsAdapter(cfg.Logistics)

	svc := checkout.NewService(checkout.SQLDeps(db), payment, logistics, cfg.Payment.Timeout, logger)

	router := api.NewRouter(&api.API{
		DB:        db,
		Checkout:  svc,
		Payment:   payment,
		Logistics: logistics,
		Logger:    logger,
	}, metrics.NewServerMetrics("api"))

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	// let in-flight checkouts and callbacks finish
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("server stopped")
}
