package chi

import (
	"encoding/json"
	"net/http"

	scheduleruc "github.com/stellarlab/lcsearch/internal/usecase/scheduler"
)

// streamEvents writes a submission's status lines as NDJSON, flushing
// after every line so clients see progress as it happens. The stream
// ends after a terminal event or once the query goes to background; the
// underlying work continues regardless of the client.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, sub *scheduleruc.Submission) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			if ev.Terminal() || ev.Status == scheduleruc.WireBackground {
				return
			}
		}
	}
}
