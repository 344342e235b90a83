// Package whatsapp implements the WhatsApp channel as a puppet-bridge
// client: a thin WebSocket client against an external bridge process
// (puppetProvider) that owns the actual WhatsApp multidevice protocol.
// The concrete WhatsApp wire protocol is out of scope here — only the
// narrow JSON-over-WebSocket bridge contract and the channel.Channel
// adapter around it are implemented.
package whatsapp

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

// bridgeEnvelope is the puppet bridge's wire frame, shared for both
// directions: inbound events from the bridge (pairing, session,
// message) and outbound commands to it (pair, restore, send, typing).
type bridgeEnvelope struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	SenderID       string `json:"senderId,omitempty"`
	SenderName     string `json:"senderName,omitempty"`
	Text           string `json:"text,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	TimestampMS    int64  `json:"timestampMs,omitempty"`
	PairingCode    string `json:"pairingCode,omitempty"`
	SessionBlob    []byte `json:"sessionBlob,omitempty"`
}

// Channel bridges one WhatsApp puppet connection into the Channel
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

// New creates a WhatsApp channel that dials puppetProviderURL (the
// configured puppetProvider bridge endpoint) and persists its
// encrypted session blob under sessionDataPath.
func New(id, puppetProviderURL, sessionDataPath string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		StatusTracker:   channel.NewStatusTracker(id, "whatsapp"),
		bridgeURL:       puppetProviderURL,
		sessionDataPath: sessionDataPath,
		logger:          logger.With("component", "whatsapp", "channel", id),
	}
}

func (c *Channel) OnMessage(h channel.Handler) { c.handler = h }

// Connect dials the puppet bridge, restoring a persisted session blob
// if one exists, or beginning pairing (rendering a QR code from the
// bridge's pairing code) otherwise.
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
		if err := conn.WriteJSON(bridgeEnvelope{Type: "pair"}); err != nil {
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
		case "pairing":
			c.renderPairingCode(env.PairingCode)
		case "session":
			if err := sessionblob.Save(c.sessionDataPath, env.SessionBlob); err != nil {
				c.logger.Warn("failed to persist whatsapp session blob", "error", err)
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

// renderPairingCode prints the bridge-issued pairing code as a QR
// code for the operator to scan with the WhatsApp mobile app. Logged
// rather than failed on error — pairing is an operator-attended flow,
// not something the pipeline depends on.
func (c *Channel) renderPairingCode(code string) {
	art, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		c.logger.Warn("failed to render pairing QR code", "error", err)
		return
	}
	fmt.Fprintln(os.Stderr, art.ToString(false))
	c.logger.Info("scan the QR code above with WhatsApp to pair this channel")
}

// SendMessage forwards a "send" command to the bridge.
func (c *Channel) SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("whatsapp channel not connected")
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
