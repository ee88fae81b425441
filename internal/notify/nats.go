package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stele-indexer/internal/config"
	"github.com/stele-indexer/internal/logging"
)

// NATSPublisher publishes core NATS messages
type NATSPublisher struct {
	nc *nats.Conn
}

// NewNATSPublisher connects to the server named in cfg
func NewNATSPublisher(cfg *config.NATSConfig) (*NATSPublisher, error) {
	if cfg == nil {
		return nil, errors.New("nats config is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("stele-indexer"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logging.WithField("url", cfg.URL).Info("Connected to NATS")
	return &NATSPublisher{nc: nc}, nil
}

// Publish sends payload on subject. Delivery is fire and forget.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload []byte) error {
	if p.nc == nil {
		return nats.ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Ready reports whether the connection is up
func (p *NATSPublisher) Ready() bool {
	return p.nc != nil && p.nc.Status() == nats.CONNECTED
}

// Close drains pending messages and closes the connection. It is idempotent.
func (p *NATSPublisher) Close() error {
	if p.nc == nil || p.nc.Status() == nats.CLOSED {
		return nil
	}

	if err := p.nc.Drain(); err != nil {
		logging.WithError(err).Error("Failed to drain NATS connection")
		p.nc.Close()
		return fmt.Errorf("failed to drain connection to NATS: %w", err)
	}

	p.nc.Close()
	logging.GetGlobalLogger().Info("NATS connection closed")
	return nil
}
