package web

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nugget/message-agent-host/internal/buildinfo"
)

// statusResponse is the GET /api/status payload: a point-in-time
// snapshot of channel health, task load, and process vitals, the same
// data the Heartbeat persists but refreshed on every request rather
// than on the heartbeat interval.
type statusResponse struct {
	Channels      []channelStatus `json:"channels"`
	ActiveTasks   int             `json:"activeTasks"`
	MemoryMB      float64         `json:"memoryMB"`
	MemoryHuman   string          `json:"memoryHuman"`
	UptimeSeconds float64         `json:"uptimeSeconds"`
	UptimeHuman   string          `json:"uptimeHuman"`
}

type channelStatus struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.channels.Statuses()
	channels := make([]channelStatus, 0, len(statuses))
	for _, st := range statuses {
		channels = append(channels, channelStatus{
			ID:     st.ID,
			Type:   st.Type,
			Status: string(st.Status),
			Error:  st.Error,
		})
	}

	activeTasks := 0
	if s.tasks != nil {
		if active, err := s.tasks.ListActive(); err == nil {
			activeTasks = len(active)
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	memoryMB := float64(mem.Alloc) / (1024 * 1024)

	uptime := buildinfo.Uptime()
	startedAt := time.Now().Add(-uptime)

	writeJSON(w, http.StatusOK, statusResponse{
		Channels:      channels,
		ActiveTasks:   activeTasks,
		MemoryMB:      memoryMB,
		MemoryHuman:   humanize.Bytes(mem.Alloc),
		UptimeSeconds: uptime.Seconds(),
		UptimeHuman:   humanize.Time(startedAt),
	})
}

// handleTasks serves GET /api/tasks — every active task, in the
// directory order of their task files (by task id), not by start time.
func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.ListActive()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleJournal serves GET /api/journal?channelId=&conversationId=&limit=
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channelId")
	conversationID := r.URL.Query().Get("conversationId")
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.journal.Query(channelID, conversationID, limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
