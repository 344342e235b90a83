package telegram

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/nugget/message-agent-host/internal/message"
)

func TestApiURL_EmbedsTokenAndMethod(t *testing.T) {
	c := New("tg", "123:ABC", slog.New(slog.NewTextHandler(io.Discard, nil)))
	got := c.apiURL("getUpdates")
	want := "https://api.telegram.org/bot123:ABC/getUpdates"
	if got != want {
		t.Fatalf("apiURL = %q, want %q", got, want)
	}
}

func TestOnMessage_RegistersHandler(t *testing.T) {
	c := New("tg", "tok", nil)
	c.OnMessage(func(ctx context.Context, msg message.NormalizedMessage) {})
	if c.handler == nil {
		t.Fatalf("expected handler to be registered")
	}
}
