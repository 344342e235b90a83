package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/nugget/message-agent-host/internal/channel"
	"github.com/nugget/message-agent-host/internal/channels/webchan"
	"github.com/nugget/message-agent-host/internal/historystore"
	"github.com/nugget/message-agent-host/internal/journal"
	"github.com/nugget/message-agent-host/internal/message"
	"github.com/nugget/message-agent-host/internal/taskstore"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	chMgr := channel.NewManager(logger)
	sse := NewSSEManager()
	wc := webchan.New("web", sse, logger)
	chMgr.Register(wc)
	chMgr.RegisterHandler(func(ctx context.Context, msg message.NormalizedMessage) {})

	hist := historystore.New(filepath.Join(dir, "history"), logger)
	j := journal.New(filepath.Join(dir, "journal"), true, logger)
	tasks := taskstore.New(filepath.Join(dir, "tasks"), logger)

	return New(Config{
		Port:     0,
		Channels: chMgr,
		WebChan:  wc,
		History:  hist,
		Tasks:    tasks,
		Journal:  j,
		SSE:      sse,
		Logger:   logger,
	})
}

func TestHandleRoot_ServesHTML(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected non-empty body")
	}
}

func TestHandleRoot_UnknownPathIs404JSON(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("expected error field in body")
	}
}

func TestWithCORS_HandlesOptionsPreflight(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	rec := httptest.NewRecorder()
	withCORS(s.mux()).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Fatalf("expected CORS header")
	}
}

func TestHandleChatSend_ReturnsConversationAndMessageID(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(chatSendRequest{Text: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp chatSendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ConversationID == "" || resp.MessageID == "" {
		t.Fatalf("expected minted ids, got %+v", resp)
	}
}

func TestHandleChatSend_RejectsEmptyText(t *testing.T) {
	s := newTestServer(t)
	body, _ := json.Marshal(chatSendRequest{Text: ""})
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleStatus_ReportsRegisteredChannel(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.mux().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Channels) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(resp.Channels))
	}
}

func TestHandleChatStream_DeliversBroadcastFrame(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/chat/stream?conversationId=conv1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		s.mux().ServeHTTP(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	s.sse.Send("conv1", []byte(`{"type":"message","text":"hi"}`))

	<-done
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("hi")) {
		t.Fatalf("expected stream body to contain broadcast frame, got %q", rec.Body.String())
	}
}
