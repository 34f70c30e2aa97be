package stream

import (
	"errors"
	"io"
	"strings"
	"testing"
)

type trackedBody struct {
	io.Reader
	closes int
}

func (b *trackedBody) Close() error {
	b.closes++
	return nil
}

func newBody(s string) *trackedBody {
	return &trackedBody{Reader: strings.NewReader(s)}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func collect(t *testing.T, s *Stream) ([]string, []error) {
	t.Helper()
	var items []string
	var ends []error
	Consume(s.Events(), Handler{
		OnItem: func(ev Event) { items = append(items, ev.Data) },
		OnEnd:  func(err error) { ends = append(ends, err) },
	})
	return items, ends
}

func TestEvents_ItemsThenCloseEvent(t *testing.T) {
	body := newBody("data: {\"id\":\"1\"}\n\ndata: {\"id\":\"2\"}\n\nevent: close\n\n")
	items, ends := collect(t, New(body))

	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0] != `{"id":"1"}` {
		t.Errorf("expected first item %q, got %q", `{"id":"1"}`, items[0])
	}
	if len(ends) != 1 || ends[0] != nil {
		t.Fatalf("expected one graceful end, got %v", ends)
	}
	if body.closes != 1 {
		t.Errorf("expected body closed once, got %d", body.closes)
	}
}

func TestEvents_SentinelAsData(t *testing.T) {
	body := newBody("data: hello\n\ndata: event: close\n\ndata: after\n\n")
	items, ends := collect(t, New(body))

	if len(items) != 1 || items[0] != "hello" {
		t.Fatalf("expected only the item before the sentinel, got %v", items)
	}
	if len(ends) != 1 || ends[0] != nil {
		t.Fatalf("expected one graceful end, got %v", ends)
	}
}

func TestEvents_MultilineDataAndComments(t *testing.T) {
	body := newBody(": keepalive\ndata: line one\r\ndata: line two\n\nevent: close\n\n")
	items, _ := collect(t, New(body))

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0] != "line one\nline two" {
		t.Errorf("expected joined data, got %q", items[0])
	}
}

func TestEvents_EOFWithoutSentinelIsTransportError(t *testing.T) {
	body := newBody("data: a\n\n")
	items, ends := collect(t, New(body))

	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if len(ends) != 1 {
		t.Fatalf("expected exactly one end, got %d", len(ends))
	}
	if !errors.Is(ends[0], ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", ends[0])
	}
	if body.closes != 1 {
		t.Errorf("expected body closed once, got %d", body.closes)
	}
}

func TestEvents_ReadErrorEndsOnce(t *testing.T) {
	body := &trackedBody{Reader: failingReader{}}
	items, ends := collect(t, New(body))

	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
	if len(ends) != 1 || ends[0] == nil {
		t.Fatalf("expected one failing end, got %v", ends)
	}
	if body.closes != 1 {
		t.Errorf("expected body closed once, got %d", body.closes)
	}
}

func TestEvents_BreakClosesBody(t *testing.T) {
	body := newBody("data: a\n\ndata: b\n\nevent: close\n\n")
	s := New(body)
	for ev := range s.Events() {
		if ev.Data == "a" {
			break
		}
	}
	if body.closes != 1 {
		t.Errorf("expected body closed after break, got %d", body.closes)
	}
	// Close is idempotent.
	s.Close()
	if body.closes != 1 {
		t.Errorf("expected close to stay at 1, got %d", body.closes)
	}
}

func TestEvents_SecondRangeReportsConsumed(t *testing.T) {
	s := New(newBody("event: close\n\n"))
	collect(t, s)
	_, ends := collect(t, s)
	if len(ends) != 1 || !errors.Is(ends[0], ErrConsumed) {
		t.Fatalf("expected ErrConsumed, got %v", ends)
	}
}

func TestEvent_PayloadError(t *testing.T) {
	tests := []struct {
		data    string
		wantErr bool
		code    int
	}{
		{`{"error":{"error_code":12,"error_message":"already created"}}`, true, 12},
		{`{"id":"x","title":"t"}`, false, 0},
		{`<p>plain html</p>`, false, 0},
		{`{"error":true}`, true, 0},
		{`{not json`, false, 0},
	}
	for _, tt := range tests {
		pe, ok := Event{Kind: KindItem, Data: tt.data}.PayloadError()
		if ok != tt.wantErr {
			t.Errorf("%q: expected error=%v, got %v", tt.data, tt.wantErr, ok)
			continue
		}
		if ok && pe.Code != tt.code {
			t.Errorf("%q: expected code %d, got %d", tt.data, tt.code, pe.Code)
		}
	}
}

func TestFailed_EndsOnce(t *testing.T) {
	boom := errors.New("dial failed")
	var ends []error
	Consume(Failed(boom), Handler{OnEnd: func(err error) { ends = append(ends, err) }})
	if len(ends) != 1 || !errors.Is(ends[0], boom) {
		t.Fatalf("expected one end with dial error, got %v", ends)
	}
}
