package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/config"
	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/service"
	"github.com/consometers/sge-tiers-proxy/internal/sge"
)

func main() {
	configPath := flag.String("config", "proxy.conf.json", "path to the configuration file")
	skipGC := flag.Bool("skip-gc", false, "skip the unused order cleanup pass")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	db, err := database.Initialize(&cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

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
	subscriptionService := service.NewSubscriptionService(db, subscriptionsDAO, usagePointsDAO, consentService, recorder, sgeClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := subscriptionService.RenewAll(ctx); err != nil {
		logger.WithError(err).Fatal("Renewal run failed")
	}

	if !*skipGC {
		if err := subscriptionService.CollectGarbage(ctx); err != nil {
			logger.WithError(err).Fatal("Order cleanup failed")
		}
	}

	logger.Info("Renewal run complete")
}
