// Package telegram implements a thin Telegram Bot API adapter. The
// Bot API itself is a plain JSON-over-HTTPS long-polling protocol, so
// this channel talks to it directly through internal/httpkit rather
// than a platform SDK — concrete chat-platform SDKs are consumed via
// this package's narrow channel.Channel surface, never imported
// elsewhere in the pipeline.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/httpkit"
	"github.com/nugget/message-agent-host/internal/message"
)

// PollTimeout is the Bot API long-poll duration requested per getUpdates call.
const PollTimeout = 30 * time.Second

type update struct {
	UpdateID int64   `json:"update_id"`
	Message  *tgMsg  `json:"message"`
}

type tgMsg struct {
	MessageID int64  `json:"message_id"`
	Date      int64  `json:"date"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	From struct {
		ID        int64  `json:"id"`
		FirstName string `json:"first_name"`
	} `json:"from"`
}

type apiResponse[T any] struct {
	OK     bool `json:"ok"`
	Result T    `json:"result"`
}

// Channel bridges one bot token into the Channel abstraction via long
// polling getUpdates and sendMessage.
type Channel struct {
	*channel.StatusTracker

	token  string
	client *http.Client
	logger *slog.Logger

	handler channel.Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	offset int64
}

// New creates a Telegram channel authenticated with token.
func New(id, token string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		StatusTracker: channel.NewStatusTracker(id, "telegram"),
		token:         token,
		client:        httpkit.NewClient(httpkit.WithTimeout(PollTimeout + 10*time.Second)),
		logger:        logger.With("component", "telegram", "channel", id),
	}
}

func (c *Channel) OnMessage(h channel.Handler) { c.handler = h }

func (c *Channel) apiURL(method string) string {
	return fmt.Sprintf("https://api.telegram.org/bot%s/%s", c.token, method)
}

// Connect verifies the token via getMe, then starts the long-poll loop.
func (c *Channel) Connect(ctx context.Context) error {
	c.Set(channel.StatusConnecting, nil)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("getMe"), nil)
	if err != nil {
		c.Set(channel.StatusError, err)
		return nil
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.Set(channel.StatusError, err)
		return nil
	}
	httpkit.DrainAndClose(resp.Body, 4096)
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("getMe returned status %d", resp.StatusCode)
		c.Set(channel.StatusError, err)
		return nil
	}
	c.Set(channel.StatusConnected, nil)

	pollCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.pollLoop(pollCtx)
	return nil
}

func (c *Channel) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.Set(channel.StatusDisconnected, nil)
	return nil
}

func (c *Channel) pollLoop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := c.pollOnce(ctx); err != nil {
			c.logger.Warn("telegram poll failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (c *Channel) pollOnce(ctx context.Context) error {
	q := url.Values{
		"timeout": {strconv.FormatInt(int64(PollTimeout.Seconds()), 10)},
		"offset":  {strconv.FormatInt(c.offset, 10)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	var out apiResponse[[]update]
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode getUpdates: %w", err)
	}
	if !out.OK {
		return fmt.Errorf("getUpdates not ok")
	}

	for _, u := range out.Result {
		c.offset = u.UpdateID + 1
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		msg := message.NormalizedMessage{
			ID:                fmt.Sprintf("tg-%d", u.Message.MessageID),
			ChannelID:         c.ID(),
			ConversationID:    strconv.FormatInt(u.Message.Chat.ID, 10),
			SenderID:          strconv.FormatInt(u.Message.From.ID, 10),
			SenderName:        u.Message.From.FirstName,
			Text:              u.Message.Text,
			TimestampMS:       u.Message.Date * 1000,
			PlatformMessageID: strconv.FormatInt(u.Message.MessageID, 10),
		}
		if c.handler != nil {
			c.handler(ctx, msg)
		}
	}
	return nil
}

// SendMessage posts text to a chat via sendMessage.
func (c *Channel) SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error {
	body := map[string]any{
		"chat_id": conversationID,
		"text":    out.Text,
	}
	if out.ReplyToMessageID != "" {
		if id, err := strconv.ParseInt(out.ReplyToMessageID, 10, 64); err == nil {
			body["reply_to_message_id"] = id
		}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal sendMessage body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("sendMessage"), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendMessage returned status %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}
	return nil
}

// SendTypingIndicator posts the Bot API's "typing" chat action.
func (c *Channel) SendTypingIndicator(ctx context.Context, conversationID string) error {
	body, _ := json.Marshal(map[string]any{"chat_id": conversationID, "action": "typing"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL("sendChatAction"), bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	httpkit.DrainAndClose(resp.Body, 4096)
	return nil
}
