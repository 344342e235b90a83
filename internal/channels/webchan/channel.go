// Package webchan implements the in-process Web Channel: the bridge
// between the browser chat surface served by internal/web and the
// shared pipeline Handler every other channel feeds through.
//
// Unlike every other channel, webchan has no external transport to
// dial. Inbound messages arrive via InjectMessage, called directly by
// an HTTP handler; outbound messages are pushed to a Broadcaster that
// fans them out to any Server-Sent Events subscribers for the target
// conversation.
package webchan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/message"
)

// Broadcaster delivers a raw event payload to every subscriber of a
// conversation. internal/web's SSE manager satisfies this.
type Broadcaster interface {
	Send(conversationID string, payload []byte)
}

// Frame is the wire shape pushed to SSE subscribers: an outbound
// message, tagged with the conversation it belongs to.
type Frame struct {
	Type           string                `json:"type"`
	ConversationID string                `json:"conversationId"`
	Text           string                `json:"text,omitempty"`
	Attachments    []message.Attachment  `json:"attachments,omitempty"`
}

// Channel is the Web Channel.
type Channel struct {
	*channel.StatusTracker

	broadcaster Broadcaster
	logger      *slog.Logger

	handler channel.Handler
}

// New creates a Web Channel identified by id, publishing outbound
// frames through broadcaster.
func New(id string, broadcaster Broadcaster, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		StatusTracker: channel.NewStatusTracker(id, "web"),
		broadcaster:   broadcaster,
		logger:        logger.With("component", "webchan", "channel", id),
	}
}

func (c *Channel) OnMessage(h channel.Handler) { c.handler = h }

// Connect marks the channel connected. There is no external endpoint
// to dial — the browser is the transport, and it is always reachable
// from the process's point of view.
func (c *Channel) Connect(ctx context.Context) error {
	c.Set(channel.StatusConnected, nil)
	return nil
}

func (c *Channel) Disconnect(ctx context.Context) error {
	c.Set(channel.StatusDisconnected, nil)
	return nil
}

// SendMessage pushes out as a Frame to every SSE subscriber of
// conversationID.
func (c *Channel) SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error {
	frame := Frame{
		Type:           "message",
		ConversationID: conversationID,
		Text:           out.Text,
		Attachments:    out.Attachments,
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	c.broadcaster.Send(conversationID, payload)
	return nil
}

// SendTypingIndicator pushes a lightweight typing Frame. Errors are
// never returned — the SSE transport has no notion of delivery
// failure the caller could act on.
func (c *Channel) SendTypingIndicator(ctx context.Context, conversationID string) error {
	frame := Frame{Type: "typing", ConversationID: conversationID}
	payload, err := json.Marshal(frame)
	if err != nil {
		return nil
	}
	c.broadcaster.Send(conversationID, payload)
	return nil
}

// InjectMessage is the HTTP handler's entry point for a browser chat
// submission. It mints a conversationId when none is supplied, builds
// a NormalizedMessage, and hands it to the shared handler without
// awaiting completion — the pipeline runs as a background task and
// replies asynchronously over SSE, so the HTTP request returns
// immediately with just the identifiers the caller needs to open a
// stream.
func (c *Channel) InjectMessage(ctx context.Context, conversationID, text string) (mintedConversationID, messageID string) {
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	messageID = uuid.NewString()

	msg := message.NormalizedMessage{
		ID:             messageID,
		ChannelID:      c.ID(),
		ConversationID: conversationID,
		SenderID:       "web-user",
		Text:           sanitize(text),
		TimestampMS:    time.Now().UnixMilli(),
	}

	if c.handler != nil {
		go c.handler(ctx, msg)
	} else {
		c.logger.Warn("no handler registered, dropping injected message")
	}

	return conversationID, messageID
}

// sanitize strips any HTML markup from browser-submitted text before
// it enters history or gets echoed back to other subscribers over
// SSE, leaving plain text content behind.
func sanitize(text string) string {
	tokenizer := html.NewTokenizer(bytes.NewReader([]byte(text)))
	var out bytes.Buffer
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			return out.String()
		case html.TextToken:
			out.Write(tokenizer.Text())
		}
	}
}
