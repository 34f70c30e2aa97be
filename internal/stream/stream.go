// Package stream consumes server-sent event streams and normalizes them into
// items followed by exactly one end event.
package stream

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
)

// Sentinel is the literal payload the server sends to close a stream.
const Sentinel = "event: close"

// closeEvent is the SSE event name that also terminates a stream.
const closeEvent = "close"

var (
	// ErrUnexpectedEOF is reported when the connection ends without the sentinel.
	ErrUnexpectedEOF = errors.New("stream ended without close event")
	// ErrConsumed is reported when Events is ranged over more than once.
	ErrConsumed = errors.New("stream already consumed")
)

// Kind tags an event.
type Kind int

const (
	KindItem Kind = iota
	KindEnd
)

func (k Kind) String() string {
	if k == KindEnd {
		return "end"
	}
	return "item"
}

// Event is one normalized stream event.
type Event struct {
	Kind Kind
	Data string // Raw data payload of an item
	Err  error  // Transport failure behind an end event; nil on graceful close
}

// PayloadError is the error object a server embeds in an item payload.
type PayloadError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf("payload error %d: %s", e.Code, e.Message)
}

// Decode unmarshals the item payload as JSON.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal([]byte(e.Data), v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// PayloadError reports whether the payload is an object carrying an error key.
func (e Event) PayloadError() (*PayloadError, bool) {
	data := strings.TrimSpace(e.Data)
	if !strings.HasPrefix(data, "{") {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, false
	}
	raw, ok := fields["error"]
	if !ok {
		return nil, false
	}
	pe := &PayloadError{}
	if err := json.Unmarshal(raw, pe); err != nil {
		// Error key with an unexpected shape; keep the raw value as the message.
		pe.Message = string(raw)
	}
	return pe, true
}

// Stream wraps the body of a text/event-stream response.
type Stream struct {
	body      io.ReadCloser
	closeOnce sync.Once
	closeErr  error
	used      atomic.Bool
}

// New wraps body. The stream owns body and closes it exactly once.
func New(body io.ReadCloser) *Stream {
	return &Stream{body: body}
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// Events returns the lazy sequence of items terminated by one end event.
// Breaking out of the loop drops the subscription and closes the stream.
func (s *Stream) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		if !s.used.CompareAndSwap(false, true) {
			yield(Event{Kind: KindEnd, Err: ErrConsumed})
			return
		}
		defer s.Close()

		scanner := bufio.NewScanner(s.body)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

		var (
			data    []string
			hasData bool
			name    string
		)
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")

			if line == "" {
				payload := strings.Join(data, "\n")
				ev, dispatch := name, hasData
				data, hasData, name = data[:0], false, ""

				if ev == closeEvent || (dispatch && payload == Sentinel) {
					yield(Event{Kind: KindEnd})
					return
				}
				if !dispatch {
					continue
				}
				if !yield(Event{Kind: KindItem, Data: payload}) {
					return
				}
				continue
			}
			if strings.HasPrefix(line, ":") {
				continue
			}

			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				data = append(data, value)
				hasData = true
			case "event":
				name = value
			}
		}

		err := scanner.Err()
		if err == nil {
			err = ErrUnexpectedEOF
		}
		yield(Event{Kind: KindEnd, Err: fmt.Errorf("read stream: %w", err)})
	}
}

// Failed is a sequence holding only the end event for a stream that could
// not be opened, so callers handle connect failures like any other end.
func Failed(err error) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		yield(Event{Kind: KindEnd, Err: err})
	}
}

// Handler is the callback surface over a sequence.
type Handler struct {
	OnItem func(Event)
	OnEnd  func(err error)
}

// Consume drives seq to its end. OnEnd fires exactly once, for the close
// sentinel and for transport failures alike.
func Consume(seq iter.Seq[Event], h Handler) {
	ended := false
	for ev := range seq {
		if ev.Kind == KindEnd {
			ended = true
			if h.OnEnd != nil {
				h.OnEnd(ev.Err)
			}
			break
		}
		if h.OnItem != nil {
			h.OnItem(ev)
		}
	}
	if !ended && h.OnEnd != nil {
		h.OnEnd(ErrUnexpectedEOF)
	}
}
