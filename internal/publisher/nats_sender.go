package publisher

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/consometers/sge-tiers-proxy/internal/config"
	"github.com/consometers/sge-tiers-proxy/internal/metadata"
)

// NatsSender publishes record groups on the messaging bus, one subject
// per subscriber.
type NatsSender struct {
	conn   *nats.Conn
	logger *logrus.Logger
}

// NewNatsSender connects to the messaging bus with a bounded wait.
func NewNatsSender(cfg *config.MessagingConfig, logger *logrus.Logger) (*NatsSender, error) {
	opts := []nats.Option{
		nats.Timeout(cfg.Timeout),
		nats.MaxReconnects(-1),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to messaging bus: %w", err)
	}

	logger.WithField("url", cfg.URL).Info("Connected to messaging bus")

	return &NatsSender{conn: conn, logger: logger}, nil
}

// Subject derives the delivery subject from the subscriber's bare JID.
// JID separators are not valid inside a subject token.
func Subject(userID string) string {
	sanitized := strings.NewReplacer("@", "_", ".", "_", " ", "_").Replace(userID)
	return "quoalise.data." + sanitized
}

// Send publishes one record group to the subscriber's subject.
func (s *NatsSender) Send(ctx context.Context, userID string, data *metadata.Data) error {
	payload, err := data.XML()
	if err != nil {
		return err
	}

	if err := s.conn.Publish(Subject(userID), payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", Subject(userID), err)
	}

	return nil
}

// Close flushes and tears down the connection.
func (s *NatsSender) Close() {
	if err := s.conn.Flush(); err != nil {
		s.logger.WithError(err).Warn("Failed to flush messaging connection")
	}
	s.conn.Close()
}
