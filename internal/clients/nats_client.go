package clients

import (
	"fmt"
	"log"
	"time"

	"github.com/necko-moe/necko3-core/internal/config"
	"github.com/necko-moe/necko3-core/internal/events"
	"github.com/necko-moe/necko3-core/internal/metrics"

	"github.com/nats-io/nats.go"
)

// NATSClient publishes gateway lifecycle events to a JetStream stream.
// It implements interfaces.EventPublisher.
type NATSClient struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewNATSClient connects to NATS and makes sure the event stream exists
func NewNATSClient(url string) (*NATSClient, error) {
	connectTimeout := 10 * time.Second
	reconnectWait := 5 * time.Second
	maxReconnects := -1
	if config.AppConfig != nil {
		if config.AppConfig.NATS.Timeout > 0 {
			connectTimeout = time.Duration(config.AppConfig.NATS.Timeout) * time.Second
		}
		if config.AppConfig.NATS.ReconnectWait > 0 {
			reconnectWait = time.Duration(config.AppConfig.NATS.ReconnectWait) * time.Second
		}
		if config.AppConfig.NATS.MaxReconnects != 0 {
			maxReconnects = config.AppConfig.NATS.MaxReconnects
		}
	}

	conn, err := nats.Connect(url,
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("⚠️ NATS disconnected: %v", err)
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("✅ NATS reconnected: %s", nc.ConnectedUrl())
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &NATSClient{conn: conn, js: js}
	if err := client.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}

	metrics.NATSConnectionStatus.Set(1)
	log.Printf("✅ NATS connected, stream %s ready", events.StreamName)
	return client, nil
}

// ensureStream creates the event stream when it does not exist yet
func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(events.StreamName); err == nil {
		return nil
	}

	streamConfig := &nats.StreamConfig{
		Name:      events.StreamName,
		Subjects:  []string{events.SubjectPattern},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
		Storage:   nats.FileStorage,
	}

	if _, err := c.js.AddStream(streamConfig); err != nil {
		return fmt.Errorf("failed to create stream %s: %w", events.StreamName, err)
	}

	log.Printf("✅ JetStream stream %s created", events.StreamName)
	return nil
}

// Publish sends one gateway event to its chain-scoped subject
func (c *NATSClient) Publish(event events.GatewayEvent) error {
	payload, err := event.Marshal()
	if err != nil {
		return err
	}

	if _, err := c.js.Publish(event.Subject(), []byte(payload)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Subject(), err)
	}

	metrics.EventsPublished.WithLabelValues(event.Type).Inc()
	return nil
}

// Close closes the connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// GetConnection exposes the raw NATS connection
func (c *NATSClient) GetConnection() *nats.Conn {
	return c.conn
}
