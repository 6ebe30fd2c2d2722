package lcsearch

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Event is one line of the streaming status protocol. The final event of
// a stream is authoritative for the dataset outcome.
type Event struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Result  map[string]any `json:"result"`
	Time    time.Time      `json:"time"`
}

// Terminal reports whether no further events will follow.
func (e Event) Terminal() bool {
	return e.Status == "ok" || e.Status == "failed"
}

// Stream decodes the NDJSON status lines of one submitted search.
type Stream struct {
	body  io.ReadCloser
	dec   *json.Decoder
	setID string
	last  Event
}

func newStream(body io.ReadCloser) *Stream {
	return &Stream{body: body, dec: json.NewDecoder(body)}
}

// SetID returns the dataset id, known after the first event.
func (s *Stream) SetID() string { return s.setID }

// Next reads the next event. io.EOF signals the end of the stream; the
// last event seen before EOF is the authoritative outcome.
func (s *Stream) Next() (Event, error) {
	var ev Event
	if err := s.dec.Decode(&ev); err != nil {
		if err == io.EOF {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("lcsearch: decode event: %w", err)
	}
	if s.setID == "" {
		if id, ok := ev.Result["setid"].(string); ok {
			s.setID = id
		}
	}
	s.last = ev
	return ev, nil
}

// Wait drains the stream and returns the final event: terminal when the
// query finished inside the synchronous window, "background" when the
// server released the stream early.
func (s *Stream) Wait() (Event, error) {
	for {
		ev, err := s.Next()
		if err == io.EOF {
			if s.last.Status == "" {
				return Event{}, io.ErrUnexpectedEOF
			}
			return s.last, nil
		}
		if err != nil {
			return Event{}, err
		}
		if ev.Terminal() || ev.Status == "background" {
			return ev, nil
		}
	}
}

// Close releases the underlying response body.
func (s *Stream) Close() error { return s.body.Close() }
