package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/config"
	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/handlers"
	"github.com/consometers/sge-tiers-proxy/internal/router"
	"github.com/consometers/sge-tiers-proxy/internal/service"
	"github.com/consometers/sge-tiers-proxy/internal/sge"
)

func main() {
	configPath := flag.String("config", "proxy.conf.json", "path to the configuration file")
	migrationsDir := flag.String("migrations", "migrations", "path to the migrations directory")
	flag.Parse()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.WithFields(logrus.Fields{
		"config_path": *configPath,
		"log_level":   logger.GetLevel().String(),
	}).Info("Starting proxy...")

	db, err := database.Initialize(&cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(ctx, *migrationsDir); err != nil {
		cancel()
		logger.WithError(err).Fatal("Failed to migrate database")
	}
	cancel()

	sgeClient, err := sge.NewClient(&cfg.Sge,
		cfg.Abspath(cfg.Sge.Certificate),
		cfg.Abspath(cfg.Sge.PrivateKey),
		logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DSO client")
	}

	usersDAO := dao.NewUsersDAO(db)
	usagePointsDAO := dao.NewUsagePointsDAO(db)
	consentsDAO := dao.NewConsentsDAO(db)
	callsDAO := dao.NewCallsDAO(db)
	subscriptionsDAO := dao.NewSubscriptionsDAO(db)

	consentService := service.NewConsentService(db, usersDAO, usagePointsDAO, consentsDAO, logger)
	recorder := service.NewCallRecorder(consentService, callsDAO, logger)
	historyService := service.NewHistoryService(usersDAO, recorder, sgeClient, logger)
	subscriptionService := service.NewSubscriptionService(db, subscriptionsDAO, usagePointsDAO, consentService, recorder, sgeClient, logger)

	ginRouter := router.SetupRouter(&router.Handlers{
		History:      handlers.NewHistoryHandler(historyService, logger),
		Subscription: handlers.NewSubscriptionHandler(subscriptionService, logger),
		Consent:      handlers.NewConsentHandler(consentService, logger),
	})

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Hostname, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      ginRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.WithField("addr", serverAddr).Info("Starting HTTP server...")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited gracefully")
}
