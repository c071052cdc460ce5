package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// BatchEvents streams item state transitions over server-sent events so
// the presentation layer can render progress without polling. Transitions
// arrive in the order they happen, per item; a consumer too slow to keep
// up gets a resync event instead of a silent gap.
func (a *App) BatchEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		a.error(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	events, cancel := a.Pipeline.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			if ev.Resync {
				// Transitions were dropped; tell the client to re-read
				// the item snapshot instead of trusting the stream.
				fmt.Fprint(w, "event: resync\ndata: {}\n\n")
				flusher.Flush()
				continue
			}
			payload, err := json.Marshal(itemToResponse(ev.Item))
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: item\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
