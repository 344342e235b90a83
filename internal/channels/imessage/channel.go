// Package imessage implements the iMessage channel by polling the
// local Messages.app database through AppleScript (osascript), the
// only supported way to read iMessage content without a private
// Apple framework. Per its Open Question in the specification, this
// poller does not deduplicate across polls: every tick's raw
// AppleScript output becomes exactly one synthetic inbound message,
// so behaviour under sustained message traffic from a single sender
// between polls is intentionally left coarse.
package imessage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/message"
)

// PollInterval is the spacing between Messages.app polls.
const PollInterval = 10 * time.Second

// conversationID is hardcoded to "default" — AppleScript's Messages
// access surfaces the most recent message across all chats, not a
// chat-scoped query, so there is exactly one conversation to speak
// of from this channel's point of view.
const defaultConversationID = "default"

// script asks Messages.app for the text of the single most recently
// received message.
const script = `
tell application "Messages"
	set theChats to every chat
	if (count of theChats) is 0 then
		return ""
	end if
	set theMessages to messages of item 1 of theChats
	if (count of theMessages) is 0 then
		return ""
	end if
	return text of item -1 of theMessages
end tell
`

// runner abstracts osascript execution so tests can substitute a
// canned script output without shelling out.
type runner interface {
	Run(ctx context.Context) (string, error)
}

type osascriptRunner struct{}

func (osascriptRunner) Run(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "osascript", "-e", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("osascript: %w: %s", err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Channel polls Messages.app on an interval and normalizes whatever
// it finds into a single synthetic inbound message.
type Channel struct {
	*channel.StatusTracker

	run    runner
	logger *slog.Logger

	handler channel.Handler

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an iMessage channel.
func New(id string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		StatusTracker: channel.NewStatusTracker(id, "imessage"),
		run:           osascriptRunner{},
		logger:        logger.With("component", "imessage", "channel", id),
	}
}

func (c *Channel) OnMessage(h channel.Handler) { c.handler = h }

// Connect starts the poll loop. There is no remote endpoint to dial —
// Messages.app is either present on this machine or every poll fails,
// which is reported through GetStatus rather than Connect's error.
func (c *Channel) Connect(ctx context.Context) error {
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
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

func (c *Channel) poll(ctx context.Context) {
	text, err := c.run.Run(ctx)
	if err != nil {
		c.logger.Warn("imessage poll failed", "error", err)
		c.Set(channel.StatusError, err)
		return
	}
	c.Set(channel.StatusConnected, nil)
	if text == "" || c.handler == nil {
		return
	}

	msg := message.NormalizedMessage{
		ID:             uuid.NewString(),
		ChannelID:      c.ID(),
		ConversationID: defaultConversationID,
		SenderID:       "imessage-unknown-sender",
		Text:           text,
		TimestampMS:    time.Now().UnixMilli(),
	}
	c.handler(ctx, msg)
}

// SendMessage sends text via the Messages.app "send" AppleScript verb.
func (c *Channel) SendMessage(ctx context.Context, conversationID string, out message.OutgoingMessage) error {
	escaped := strings.ReplaceAll(out.Text, `"`, `\"`)
	sendScript := fmt.Sprintf(`tell application "Messages" to send "%s" to chat 1`, escaped)
	cmd := exec.CommandContext(ctx, "osascript", "-e", sendScript)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("osascript send: %w: %s", err, stderr.String())
	}
	return nil
}

// SendTypingIndicator is a no-op: iMessage has no presence API
// reachable from AppleScript.
func (c *Channel) SendTypingIndicator(ctx context.Context, conversationID string) error {
	return nil
}
