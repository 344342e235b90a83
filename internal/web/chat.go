package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// chatSendRequest is the POST /api/chat body.
type chatSendRequest struct {
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
}

type chatSendResponse struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// handleChatSend injects a browser-submitted message into the
// pipeline via the Web Channel and returns immediately — the reply
// arrives asynchronously over the SSE stream for the same
// conversationId.
func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req chatSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "text is required")
		return
	}

	convID, msgID := s.webChan.InjectMessage(r.Context(), req.ConversationID, req.Text)
	writeJSON(w, http.StatusAccepted, chatSendResponse{ConversationID: convID, MessageID: msgID})
}

// handleChatStream upgrades to a Server-Sent Events stream for one
// conversationId, forwarding every outbound Frame the Web Channel
// broadcasts for it until the client disconnects.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		writeJSONError(w, http.StatusBadRequest, "conversationId is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, unregister := s.sse.register(conversationID)
	defer unregister()

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// handleHistory serves GET /api/history?channelId=&conversationId=&limit=
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channelId")
	conversationID := r.URL.Query().Get("conversationId")
	if channelID == "" || conversationID == "" {
		writeJSONError(w, http.StatusBadRequest, "channelId and conversationId are required")
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.history.GetMessages(channelID, conversationID, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleConversations serves GET /api/conversations?channelId=
func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channelId")
	if channelID == "" {
		writeJSONError(w, http.StatusBadRequest, "channelId is required")
		return
	}
	conversations, err := s.history.Conversations(channelID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}
