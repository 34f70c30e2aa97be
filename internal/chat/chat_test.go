package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/docstream/internal/selection"
	"github.com/dgallion1/docstream/internal/stream"
)

type fakeOpener struct {
	mu      sync.Mutex
	queries []url.Values
	body    func() io.ReadCloser
	err     error
}

func (f *fakeOpener) OpenStream(_ context.Context, _ string, q url.Values) (*stream.Stream, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return stream.New(f.body()), nil
}

func (f *fakeOpener) calls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.queries...)
}

func replies(payloads ...string) func() io.ReadCloser {
	return func() io.ReadCloser {
		var sb strings.Builder
		for _, p := range payloads {
			sb.WriteString("data: " + p + "\n\n")
		}
		sb.WriteString("data: event: close\n\n")
		return io.NopCloser(strings.NewReader(sb.String()))
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmit_AppendsTurns(t *testing.T) {
	op := &fakeOpener{body: replies("<p>It is the moon.</p>", "Also the sun.")}
	c := New("/e/e1/chat/make", op, testLogger())
	if err := c.Open(selection.Context{Text: "tides", SectionID: "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := c.Submit(context.Background(), "  What causes **tides**?  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := c.Snapshot()
	if len(snap.Turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(snap.Turns))
	}
	if snap.Turns[0].Author != User || snap.Turns[0].Content != "What causes **tides**?" {
		t.Errorf("unexpected user turn %+v", snap.Turns[0])
	}
	if !strings.Contains(snap.Turns[0].HTML, "<strong>tides</strong>") {
		t.Errorf("expected rendered markdown, got %q", snap.Turns[0].HTML)
	}
	if snap.Turns[1].Author != Assistant || !strings.Contains(snap.Turns[1].HTML, "<p>It is the moon.</p>") {
		t.Errorf("unexpected assistant turn %+v", snap.Turns[1])
	}
	if snap.State != Idle {
		t.Errorf("expected idle, got %s", snap.State)
	}

	q := op.calls()[0]
	if q.Get("context") != "tides" || q.Get("section_id") != "s1" || q.Get("query") != "What causes **tides**?" {
		t.Errorf("unexpected query %v", q)
	}
}

func TestSubmit_ResetSentOnce(t *testing.T) {
	op := &fakeOpener{body: replies("ok")}
	c := New("/e/e1/chat/make", op, testLogger())
	c.Open(selection.Context{Text: "tides"})

	c.Submit(context.Background(), "one")
	c.Submit(context.Background(), "two")
	c.Open(selection.Context{Text: "moons"})
	c.Submit(context.Background(), "three")

	calls := op.calls()
	want := []string{"1", "0", "1"}
	if len(calls) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(calls))
	}
	for i, w := range want {
		if got := calls[i].Get("reset"); got != w {
			t.Errorf("request %d: expected reset=%s, got %s", i, w, got)
		}
	}
	if n := len(c.Snapshot().Turns); n != 2 {
		t.Errorf("expected transcript cleared on open, got %d turns", n)
	}
}

func TestSubmit_PendingIsNoOp(t *testing.T) {
	pr, pw := io.Pipe()
	op := &fakeOpener{body: func() io.ReadCloser { return pr }}
	c := New("/e/e1/chat/make", op, testLogger())
	c.Open(selection.Context{Text: "tides"})

	done := make(chan error, 1)
	go func() { done <- c.Submit(context.Background(), "first") }()

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != Pending {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for pending state")
		}
		time.Sleep(time.Millisecond)
	}

	before := len(c.Snapshot().Turns)
	if err := c.Submit(context.Background(), "second"); !errors.Is(err, ErrPending) {
		t.Errorf("expected ErrPending, got %v", err)
	}
	if after := len(c.Snapshot().Turns); after != before {
		t.Errorf("expected turn count unchanged at %d, got %d", before, after)
	}

	io.WriteString(pw, "data: answer\n\ndata: event: close\n\n")
	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.State() != Idle {
		t.Error("expected idle after terminal event")
	}
	if len(op.calls()) != 1 {
		t.Errorf("expected 1 request, got %d", len(op.calls()))
	}
}

func TestSubmit_EmptyQuery(t *testing.T) {
	op := &fakeOpener{body: replies()}
	c := New("/e/e1/chat/make", op, testLogger())
	c.Open(selection.Context{Text: "tides"})

	if err := c.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
	if len(c.Snapshot().Turns) != 0 {
		t.Error("expected no turns")
	}
	if len(op.calls()) != 0 {
		t.Error("expected no request")
	}
}

func TestContextTooLong(t *testing.T) {
	op := &fakeOpener{body: replies()}
	c := New("/e/e1/chat/make", op, testLogger())

	long := selection.Context{Text: strings.Repeat("x", MaxContextLen+1)}
	if err := c.Open(long); !errors.Is(err, ErrContextTooLong) {
		t.Errorf("expected ErrContextTooLong from Open, got %v", err)
	}

	// Bypass Open to check the submit-time guard.
	c.mu.Lock()
	c.context = long.Text
	c.mu.Unlock()
	if err := c.Submit(context.Background(), "why?"); !errors.Is(err, ErrContextTooLong) {
		t.Errorf("expected ErrContextTooLong, got %v", err)
	}
	if len(op.calls()) != 0 {
		t.Error("expected no request")
	}

	if err := c.Open(selection.Context{Text: strings.Repeat("x", MaxContextLen)}); err != nil {
		t.Errorf("expected context at the limit to be accepted, got %v", err)
	}
}

func TestSubmit_TransportErrorReturnsToIdle(t *testing.T) {
	op := &fakeOpener{err: errors.New("connection refused")}
	c := New("/e/e1/chat/make", op, testLogger())
	c.Open(selection.Context{Text: "tides"})

	if err := c.Submit(context.Background(), "hello"); err == nil {
		t.Error("expected transport error")
	}
	snap := c.Snapshot()
	if snap.State != Idle {
		t.Errorf("expected idle, got %s", snap.State)
	}
	if len(snap.Turns) != 1 {
		t.Errorf("expected the optimistic user turn to remain, got %d turns", len(snap.Turns))
	}
}

func TestClose(t *testing.T) {
	op := &fakeOpener{body: replies("ok")}
	c := New("/e/e1/chat/make", op, testLogger())
	c.Open(selection.Context{Text: "tides", SectionID: "s1"})
	c.Submit(context.Background(), "hi")

	c.Close()
	snap := c.Snapshot()
	if snap.Context != "" || snap.SectionID != "" || len(snap.Turns) != 0 {
		t.Errorf("expected cleared channel, got %+v", snap)
	}
}
