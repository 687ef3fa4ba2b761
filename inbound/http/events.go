package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"ration-kiosk/common/constant"
	"ration-kiosk/notify"
)

// EventsHttp streams dispense-complete / dispense-error broadcasts to
// web clients over SSE. Register it outside the timeout middleware:
// http.TimeoutHandler's writer cannot flush and would cut the stream.
type EventsHttp struct {
	Broadcaster *notify.Broadcaster
}

func RegisterEventsHttp(mux *http.ServeMux, broadcaster *notify.Broadcaster) *EventsHttp {
	in := &EventsHttp{Broadcaster: broadcaster}

	mux.HandleFunc("GET /api/events", in.stream)

	return in
}

func (in *EventsHttp) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, cancel := in.Broadcaster.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}

			data, err := json.Marshal(ev.Payload)
			if err != nil {
				slog.ErrorContext(ctx, "failed to marshal event payload", slog.Any(constant.LogFieldErr, err))
				continue
			}

			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
