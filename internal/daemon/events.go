package daemon

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hangar-launcher/hangar/internal/progress"
	"github.com/hangar-launcher/hangar/internal/relay"
)

// eventBuffer sizes the per-stream channel. Progress events may be dropped
// under backpressure; the hub always retains the most recent one.
const eventBuffer = 64

// handleEvents streams the relay events for one key as server-sent events.
// The hub hands the per-key slot to the latest subscriber, so a second
// client for the same key displaces the first. The stream ends with the
// operation's terminal result event, on client disconnect, or on shutdown.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	fl, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, detach := s.hub.Stream(key, eventBuffer)
	defer detach()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.stop:
			return
		case ev, open := <-events:
			if !open {
				// Displaced by a newer subscriber.
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			fl.Flush()
			if _, terminal := ev.(relay.ResultEvent); terminal {
				return
			}
		}
	}
}

func writeSSE(w io.Writer, ev relay.Event) error {
	data, err := json.Marshal(encodeEvent(ev))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.EventType(), data)
	return err
}

// eventPayload is the wire form of a relay event. Progress and Outcome are
// set for the matching event types only.
type eventPayload struct {
	Type      string           `json:"type"`
	Key       string           `json:"key"`
	Timestamp time.Time        `json:"timestamp"`
	Status    string           `json:"status,omitempty"`
	Progress  *progressPayload `json:"progress,omitempty"`
	Outcome   *outcomePayload  `json:"outcome,omitempty"`
}

type progressPayload struct {
	Percentage       float64 `json:"percentage"`
	SpeedBytesPerSec float64 `json:"speed_bytes_per_sec"`
	// ETASeconds is -1 when unknown; JSON has no infinity.
	ETASeconds      float64 `json:"eta_seconds"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	TotalBytes      int64   `json:"total_bytes"`
	Verifying       bool    `json:"verifying,omitempty"`
}

type outcomePayload struct {
	Result  string `json:"result"`
	Error   string `json:"error,omitempty"`
	LogPath string `json:"log_path,omitempty"`
}

func encodeEvent(ev relay.Event) eventPayload {
	p := eventPayload{
		Type:      ev.EventType(),
		Key:       ev.Key(),
		Timestamp: ev.Timestamp(),
	}
	switch e := ev.(type) {
	case relay.StatusEvent:
		p.Status = e.Status.String()
	case relay.ProgressEvent:
		p.Status = e.Status.String()
		p.Progress = encodeSnapshot(e.Snapshot)
	case relay.ResultEvent:
		p.Status = e.Status.String()
		out := outcomePayload{
			Result:  e.Outcome.Kind.String(),
			LogPath: e.Outcome.LogPath,
		}
		if e.Outcome.Err != nil {
			out.Error = e.Outcome.Err.Error()
		}
		p.Outcome = &out
	}
	return p
}

func encodeSnapshot(snap progress.Snapshot) *progressPayload {
	eta := snap.ETASeconds
	if math.IsInf(eta, 0) || math.IsNaN(eta) {
		eta = -1
	}
	return &progressPayload{
		Percentage:       snap.Percentage,
		SpeedBytesPerSec: snap.SpeedBytesPerSec,
		ETASeconds:       eta,
		DownloadedBytes:  snap.DownloadedBytes,
		TotalBytes:       snap.TotalBytes,
		Verifying:        snap.Verifying,
	}
}
