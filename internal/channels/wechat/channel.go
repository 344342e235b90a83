// Package wechat implements the WeChat channel as a puppet-bridge
// client, the same shape as internal/channels/whatsapp: a thin
// WebSocket client against an external bridge process that owns the
// actual WeChat protocol. WeChat's web-login pairing flow is a scan
// of a URL rather than a numeric code, so the bridge hands back a
// login URL directly instead of a pairing code for this channel to
// render as a QR code.
package wechat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/sessionblob"
)

type bridgeEnvelope struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	SenderID       string `json:"senderId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	Text           string `json:"text,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	TimestampMS    int64  `json:"timestampMs,omitempty"`
	LoginURL       string `json:"loginUrl,omitempty"`
	SessionBlob    []byte `json:"sessionBlob,omitempty"`
}

// Channel bridges one WeChat puppet connection into the Channel
// abstraction.
type Channel struct {
	*channel.StatusTracker

	bridgeURL       string
	sessionDataPath string
	logger          *slog.Logger

	handler channel.Handler

	mu   sync.Mutex
	conn *websocket.Conn
	done chan struct{}
}

// New creates a WeChat channel that dials puppetProviderURL.
func New(id, puppetProviderURL, sessionDataPath string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		StatusTracker:   channel.NewStatusTracker(id, "wechat"),
		bridgeURL:       puppetProviderURL,
		sessionDataPath: sessionDataPath,
		logger:          logger.With("component", "wechat", "channel", id),
	}
}

func (c *Channel) OnMessage(h channel.Handler) { c.handler = h }

func (c *Channel) Connect(ctx context.Context) error {
	c.Set(channel.StatusConnecting, nil)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.bridgeURL, nil)
	if err != nil {
		c.Set(channel.StatusError, err)
		return nil
	}

	c.mu.Lock()
	c.conn = conn
	c.done = make(chan struct{})
	c.mu.Unlock()

	if blob, err := sessionblob.Load(c.sessionDataPath); err == nil && blob != nil {
		if err := conn.WriteJSON(bridgeEnvelope{Type: "restore", SessionBlob: blob}); err != nil {
			c.Set(channel.StatusError, err)
			return nil
		}
	} else {
		if err := conn.WriteJSON(bridgeEnvelope{Type: "login"}); err != nil {
			c.Set(channel.StatusError, err)
			return nil
		}
	}

	go c.readLoop(ctx)
	c.Set(channel.StatusConnected, nil)
	return nil
}

func (c *Channel) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.Set(channel.StatusDisconnected, nil)
	return nil
}

func (c *Channel) readLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.mu.Unlock()
	defer close(done)

	for {
		var env bridgeEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			c.Set(channel.StatusError, err)
			return
		}
		switch env.Type {
		case "loginUrl":
			c.renderLoginQR(env.LoginURL)
		case "session":
			if err := sessionblob.Save(c.sessionDataPath, env.SessionBlob); err != nil {
				c.logger.Warn("failed to persist wechat session blob", "error", err)
			}
		case "message":
			c.deliver(ctx, env)
		}
	}
}

func (c *Channel) deliver(ctx context.Context, env bridgeEnvelope) {
	if c.handler == nil || env.Text == "" {
		return
	}
	msg := message.NormalizedMessage{
		ID:                env.MessageID,
		ChannelID:         c.ID(),
		ConversationID:    env.ConversationID,
		SenderID:          env.SenderID,
		SenderName:        env.SenderName,
		Text:              env.Text,
		TimestampMS:       env.TimestampMS,
		PlatformMessageID: env.MessageID,
	}
	c.handler(ctx, msg)
}

func (c *Channel) renderLoginQR(loginURL string) {
	art, err := qrcode.New(loginURL, qrcode.Medium)
	if err != nil {
		c.logger.Warn("failed to render wechat login QR code", "error", err)
		return
	}
	fmt.Fprintln(os.Stderr, art.ToString(false))
	c.logger.Info("scan the QR code above with WeChat to log this channel in")
}

func (c *Channel) SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("wechat channel not connected")
	}
	return conn.WriteJSON(bridgeEnvelope{
		Type:           "send",
		ConversationID: conversationID,
		Text:           out.Text,
	})
}

func (c *Channel) SendTypingIndicator(ctx context.Context, conversationID string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.WriteJSON(bridgeEnvelope{Type: "typing", ConversationID: conversationID})
}
