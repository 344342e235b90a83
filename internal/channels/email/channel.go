package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/message"
)

// PollInterval is the default spacing between INBOX checks.
const PollInterval = 60 * time.Second

// uidStore is the minimal persistence contract the email channel needs
// for its UID high-water mark. internal/statestore.Store satisfies it.
type uidStore interface {
	Get(namespace, key string) (string, error)
	Set(namespace, key, value string) error
}

const pollNamespace = "email_poll"

// Channel bridges a single IMAP/SMTP account pair into the Channel
// abstraction. Inbound: polls INBOX on an interval, deduplicating by
// UID high-water mark. Outbound: submits via SMTP.
type Channel struct {
	*channel.StatusTracker

	cfg    AccountConfig
	client *Client
	state  uidStore
	logger *slog.Logger

	handler channel.Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an email channel for one configured account.
func New(id string, cfg AccountConfig, state uidStore, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		StatusTracker: channel.NewStatusTracker(id, "email"),
		cfg:           cfg,
		client:        NewClient(cfg.IMAP, logger.With("email_account", cfg.Name)),
		state:         state,
		logger:        logger.With("component", "email", "channel", id),
	}
}

func (c *Channel) OnMessage(h channel.Handler) { c.handler = h }

// Connect dials IMAP, then starts the polling loop.
func (c *Channel) Connect(ctx context.Context) error {
	c.Set(channel.StatusConnecting, nil)

	if err := c.client.Connect(ctx); err != nil {
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
	return c.client.Close()
}

func (c *Channel) pollLoop(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.poll(ctx); err != nil {
				c.logger.Warn("email poll failed", "error", err)
			}
		}
	}
}

// poll checks INBOX for messages newer than the stored high-water mark
// and normalises each into a NormalizedMessage delivered to the shared
// handler. On first run, the current highest UID is recorded silently
// to avoid flooding the pipeline with the whole mailbox.
func (c *Channel) poll(ctx context.Context) error {
	stateKey := c.cfg.Name + ":INBOX"

	storedStr, err := c.state.Get(pollNamespace, stateKey)
	if err != nil {
		return fmt.Errorf("get high-water mark %q: %w", stateKey, err)
	}

	if storedStr == "" {
		envelopes, err := c.client.ListMessages(ctx, ListOptions{Folder: "INBOX", Limit: 1})
		if err != nil {
			return fmt.Errorf("seed list: %w", err)
		}
		if len(envelopes) == 0 {
			return nil
		}
		return c.state.Set(pollNamespace, stateKey, strconv.FormatUint(uint64(envelopes[0].UID), 10))
	}

	storedUID, err := strconv.ParseUint(storedStr, 10, 32)
	if err != nil {
		c.logger.Warn("corrupt high-water mark, reseeding", "stored", storedStr)
		return c.state.Set(pollNamespace, stateKey, "")
	}

	newMessages, err := c.client.ListMessages(ctx, ListOptions{Folder: "INBOX", SinceUID: uint32(storedUID)})
	if err != nil {
		return fmt.Errorf("list new messages: %w", err)
	}
	if len(newMessages) == 0 {
		return nil
	}

	// newMessages is newest-first; the highest UID is at index 0.
	highest := newMessages[0].UID
	for i := len(newMessages) - 1; i >= 0; i-- {
		c.deliver(ctx, newMessages[i])
	}
	return c.state.Set(pollNamespace, stateKey, strconv.FormatUint(uint64(highest), 10))
}

func (c *Channel) deliver(ctx context.Context, env Envelope) {
	if c.handler == nil {
		return
	}
	nm := message.NormalizedMessage{
		ID:                uuid.NewString(),
		ChannelID:         c.ID(),
		ConversationID:    env.From,
		SenderID:          env.From,
		Text:              env.Subject,
		TimestampMS:       env.Date.UnixMilli(),
		PlatformMessageID: strconv.FormatUint(uint64(env.UID), 10),
	}
	c.handler(ctx, nm)
}

// SendMessage sends the outgoing message as a new email via SMTP to the
// conversation id (which, for email, is the recipient address).
func (c *Channel) SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error {
	if !c.cfg.SMTPConfigured() {
		return fmt.Errorf("email account %q has no SMTP configuration", c.cfg.Name)
	}

	subject := "Message from your assistant"
	msg, err := ComposeMessage(ComposeOptions{
		From:    c.cfg.DefaultFrom,
		To:      []string{conversationID},
		Subject: subject,
		Body:    out.Text,
	})
	if err != nil {
		return fmt.Errorf("compose message: %w", err)
	}

	recipients := collectRecipients([]string{conversationID}, nil, nil)
	return SendMail(ctx, c.cfg.SMTP, c.cfg.DefaultFrom, recipients, msg)
}

// SendTypingIndicator is a no-op for email; the platform has no
// equivalent presence signal.
func (c *Channel) SendTypingIndicator(ctx context.Context, conversationID string) error {
	return nil
}

// SummarizeVCard renders a vcard attachment payload into a short
// human-readable contact line, per the Supplemental "Attachment vcard
// summarisation" feature.
func SummarizeVCard(raw []byte) (string, error) {
	dec := vcard.NewDecoder(bytes.NewReader(raw))
	card, err := dec.Decode()
	if err != nil {
		return "", fmt.Errorf("decode vcard: %w", err)
	}
	name := card.PreferredValue(vcard.FieldFormattedName)
	if name == "" {
		name = card.PreferredValue(vcard.FieldName)
	}
	tel := card.PreferredValue(vcard.FieldTelephone)
	if tel == "" {
		return fmt.Sprintf("Contact card: %s", name), nil
	}
	return fmt.Sprintf("Contact card: %s %s", name, tel), nil
}
