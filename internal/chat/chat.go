// Package chat runs the conversational exchange tied to a selection. At
// most one exchange is in flight per channel.
package chat

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/docstream/internal/selection"
	"github.com/dgallion1/docstream/internal/stream"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/renderer/html"
)

// MaxContextLen is the longest selection, in characters, a chat may be
// about.
const MaxContextLen = 300

var (
	ErrPending        = errors.New("a chat message is already pending")
	ErrEmptyQuery     = errors.New("query is empty")
	ErrContextTooLong = errors.New("selection is too long; narrow it to ask the assistant")
)

// State is the channel's exchange state.
type State int

const (
	Idle State = iota
	Pending
)

func (s State) String() string {
	if s == Pending {
		return "pending"
	}
	return "idle"
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Author identifies who wrote a turn.
type Author string

const (
	User      Author = "user"
	Assistant Author = "assistant"
)

// Turn is one message of the transcript.
type Turn struct {
	Author  Author    `json:"author"`
	Content string    `json:"content"`
	HTML    string    `json:"html"`
	At      time.Time `json:"at"`
}

// Opener subscribes to a stream on the entry server.
type Opener interface {
	OpenStream(ctx context.Context, path string, query url.Values) (*stream.Stream, error)
}

// Channel is the per-session chat.
type Channel struct {
	path   string
	opener Opener
	log    *slog.Logger
	md     goldmark.Markdown

	mu        sync.Mutex
	state     State
	context   string
	sectionID string
	reset     bool
	epoch     int // bumped when the transcript is cleared
	turns     []Turn
}

// New returns an idle channel posting to the chat endpoint at path.
func New(path string, opener Opener, log *slog.Logger) *Channel {
	if log == nil {
		log = slog.Default()
	}
	return &Channel{
		path:   path,
		opener: opener,
		log:    log,
		md:     goldmark.New(goldmark.WithRendererOptions(html.WithUnsafe())),
	}
}

// Open starts a conversation about sel. The next submission asks the
// server to drop its earlier context.
func (c *Channel) Open(sel selection.Context) error {
	if utf8.RuneCountInString(sel.Text) > MaxContextLen {
		return ErrContextTooLong
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context = sel.Text
	c.sectionID = sel.SectionID
	c.reset = true
	c.turns = nil
	c.epoch++
	return nil
}

// Close dismisses the conversation.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.context = ""
	c.sectionID = ""
	c.turns = nil
	c.epoch++
}

// Submit sends query and blocks until the reply stream ends. The user turn
// is recorded before the request is made.
func (c *Channel) Submit(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)

	c.mu.Lock()
	if c.state == Pending {
		c.mu.Unlock()
		return ErrPending
	}
	if query == "" {
		c.mu.Unlock()
		return ErrEmptyQuery
	}
	if utf8.RuneCountInString(c.context) > MaxContextLen {
		c.mu.Unlock()
		return ErrContextTooLong
	}

	c.turns = append(c.turns, c.turn(User, query))
	c.state = Pending
	epoch := c.epoch

	params := url.Values{}
	params.Set("context", c.context)
	params.Set("query", query)
	params.Set("reset", "0")
	if c.reset {
		params.Set("reset", "1")
	}
	params.Set("section_id", c.sectionID)
	c.reset = false
	c.mu.Unlock()

	var seq iter.Seq[stream.Event]
	if s, err := c.opener.OpenStream(ctx, c.path, params); err != nil {
		seq = stream.Failed(err)
	} else {
		seq = s.Events()
	}

	var endErr error
	stream.Consume(seq, stream.Handler{
		OnItem: func(ev stream.Event) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.epoch != epoch {
				return
			}
			c.turns = append(c.turns, c.turn(Assistant, ev.Data))
		},
		OnEnd: func(err error) {
			c.mu.Lock()
			c.state = Idle
			c.mu.Unlock()
			endErr = err
		},
	})
	if endErr != nil {
		c.log.Warn("chat stream ended with error", "error", endErr)
	}
	return endErr
}

func (c *Channel) turn(author Author, content string) Turn {
	var buf bytes.Buffer
	if err := c.md.Convert([]byte(content), &buf); err != nil {
		c.log.Warn("render chat turn", "author", author, "error", err)
		buf.Reset()
	}
	return Turn{Author: author, Content: content, HTML: buf.String(), At: time.Now()}
}

// Snapshot is a JSON-safe view of the channel.
type Snapshot struct {
	State     State  `json:"state"`
	Context   string `json:"context"`
	SectionID string `json:"section_id,omitempty"`
	Reset     bool   `json:"reset"`
	Turns     []Turn `json:"turns"`
}

// Snapshot copies the channel state.
func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	turns := make([]Turn, len(c.turns))
	copy(turns, c.turns)
	return Snapshot{
		State:     c.state,
		Context:   c.context,
		SectionID: c.sectionID,
		Reset:     c.reset,
		Turns:     turns,
	}
}

// State returns the exchange state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
