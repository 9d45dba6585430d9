package chi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	domchat "github.com/kailas-cloud/finrag/internal/domain/chat"
	logpkg "github.com/kailas-cloud/finrag/internal/logger"
)

const sseDone = "[DONE]"

// writeEventStream relays answer events as server-sent events and ends with [DONE].
// A failed write means the client is gone; the producer stops once the request context ends.
func (s *Server) writeEventStream(w http.ResponseWriter, r *http.Request, events <-chan domchat.Event) {
	log := logpkg.Or(r.Context(), s.logger)
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		var payload any
		switch ev.Kind {
		case domchat.EventToken:
			payload = sseToken{Token: ev.Token}
		case domchat.EventSources:
			if ev.Err != nil {
				log.Warn("answer stream failed", zap.Error(ev.Err))
			}
			payload = sseSources{Sources: nonNil(ev.Sources)}
		default:
			continue
		}

		b, err := json.Marshal(payload)
		if err != nil {
			log.Error("encode stream event", zap.Error(err))
			return
		}
		if err := writeSSE(w, rc, string(b)); err != nil {
			log.Debug("client went away", zap.Error(err))
			return
		}
	}

	if err := writeSSE(w, rc, sseDone); err != nil {
		log.Debug("client went away", zap.Error(err))
	}
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, data string) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := rc.Flush(); err != nil {
		return fmt.Errorf("flush event: %w", err)
	}
	return nil
}
