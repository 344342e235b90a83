package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// MQTTClient is a MQTTPublisher backed by autopaho's managed
// connection: it reconnects on its own, and Publish never blocks
// waiting for a broker that may never come back.
type MQTTClient struct {
	cm     *autopaho.ConnectionManager
	topic  string
	logger *slog.Logger
}

// NewMQTTClient dials cfg.BrokerURL in the background. The connection
// is established asynchronously; Publish calls made before the first
// successful connect are simply dropped and logged, the same
// best-effort discipline the heartbeat file write already documents
// for this publisher.
func NewMQTTClient(ctx context.Context, cfg MQTTConfig, logger *slog.Logger) (*MQTTClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	u, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse mqtt broker url %q: %w", cfg.BrokerURL, err)
	}

	c := &MQTTClient{
		topic:  cfg.Topic,
		logger: logger.With("component", "mqtt"),
	}

	cliCfg := autopaho.ClientConfig{
		ServerUrls: []*url.URL{u},
		KeepAlive:  20,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("mqtt connected", "broker", cfg.BrokerURL)
		},
		OnConnectError: func(err error) {
			c.logger.Warn("mqtt connect failed, retrying", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "message-agent-host",
			OnClientError: func(err error) {
				c.logger.Warn("mqtt client error", "error", err)
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cliCfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	c.cm = cm
	return c, nil
}

// MQTTConfig mirrors config.MQTTConfig without importing internal/config,
// keeping internal/health free of a dependency on the config package.
type MQTTConfig struct {
	BrokerURL string
	Topic     string
}

// Publish implements MQTTPublisher. It waits briefly for a live
// connection and gives up rather than blocking the heartbeat tick.
func (c *MQTTClient) Publish(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("mqtt not connected: %w", err)
	}

	pubTopic := c.topic
	if pubTopic == "" {
		pubTopic = topic
	}

	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   pubTopic,
		QoS:     0,
		Payload: payload,
	})
	return err
}

// Disconnect tears down the managed connection.
func (c *MQTTClient) Disconnect(ctx context.Context) error {
	return c.cm.Disconnect(ctx)
}
