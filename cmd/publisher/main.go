package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/config"
	"github.com/consometers/sge-tiers-proxy/internal/dao"
	"github.com/consometers/sge-tiers-proxy/internal/database"
	"github.com/consometers/sge-tiers-proxy/internal/publisher"
	"github.com/consometers/sge-tiers-proxy/internal/streams"
)

// settleDelay leaves time for a file transfer to complete before the
// inbox is scanned again.
const settleDelay = 5 * time.Second

func main() {
	configPath := flag.String("config", "proxy.conf.json", "path to the configuration file")
	publishArchives := flag.Bool("publish-archives", false, "replay already archived files instead of the inbox")
	onlyUser := flag.String("user", "", "deliver to this user only")
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

	if *publishArchives && *onlyUser == "" {
		logger.Fatal("--publish-archives requires --user to narrow the replay")
	}

	db, err := database.Initialize(&cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	sender, err := publisher.NewNatsSender(&cfg.Messaging, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to messaging bus")
	}
	defer sender.Close()

	subscriptionsDAO := dao.NewSubscriptionsDAO(db)
	files := streams.NewStreamsFiles(&cfg.Streams, *publishArchives, logger)
	pub := publisher.NewPublisher(subscriptionsDAO, sender,
		cfg.Publisher.RecordsPerSec, cfg.Publisher.ChunkSize, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func() {
		records, err := files.ProcessAll()
		if err != nil {
			logger.WithError(err).Error("Ingestion run failed")
			return
		}
		if len(records) == 0 {
			return
		}
		if err := pub.Publish(ctx, records, *onlyUser); err != nil {
			logger.WithError(err).Error("Publication run failed")
		}
	}

	run()

	if *publishArchives || !cfg.Publisher.WatchInbox {
		return
	}

	logger.WithField("inbox", cfg.Streams.InboxDir).Info("Watching inbox...")
	if err := files.Watch(ctx, settleDelay, run); err != nil && ctx.Err() == nil {
		logger.WithError(err).Fatal("Inbox watcher stopped")
	}
}
