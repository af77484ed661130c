package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/antigravity-dev/prism/internal/logging"
)

// WebhookHandler returns an http.Handler that accepts POSTed board events
// and durably enqueues them on pool, returning before the event is actually
// handled (spec.md §4.6): 202 once it's queued, 400 for a malformed
// payload, 503 when the queue is full so the board's own webhook retry
// logic can back off and resend.
func WebhookHandler(pool *Pool) http.Handler {
	r := chi.NewRouter()
	r.Post("/", func(w http.ResponseWriter, req *http.Request) {
		var ev BoardEvent
		if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
			http.Error(w, "invalid board event payload", http.StatusBadRequest)
			return
		}
		if ev.BoardID == "" || ev.ProjectID == "" {
			http.Error(w, "board_id and project_id are required", http.StatusBadRequest)
			return
		}
		switch ev.EventType {
		case EventTaskMoved, EventTaskCreated, EventTaskDeleted:
		default:
			http.Error(w, "event_type must be one of task_moved, task_created, task_deleted", http.StatusBadRequest)
			return
		}

		key := eventKey(ev.ProjectID, ev.BoardID)
		seq := pool.NextSequence(key)
		id := uuid.NewString()
		if !pool.Submit(Event{ID: id, Key: key, Sequence: seq, Board: &ev}) {
			logging.Router("webhook: queue full, rejecting event %s for %s", id, key)
			http.Error(w, "queue full, retry later", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("X-Prism-Event-Id", id)
		w.WriteHeader(http.StatusAccepted)
	})
	return r
}
