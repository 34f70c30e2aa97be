package upstream

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgallion1/docstream/internal/doctree"
	"github.com/dgallion1/docstream/internal/stream"
)

// Client communicates with the entry server.
type Client struct {
	baseURL string
	apiKey  string
	log     *slog.Logger

	// httpClient serves one-shot requests; streamClient has no overall
	// timeout because streams stay open until the server closes them.
	httpClient   *http.Client
	streamClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		log:     log,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		streamClient: &http.Client{},
	}
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *Client) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, query), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// OpenStream subscribes to an event stream at path.
func (c *Client) OpenStream(ctx context.Context, path string, query url.Values) (*stream.Stream, error) {
	req, err := c.newRequest(ctx, path, query)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("open stream %s: status %d: %s", path, resp.StatusCode, string(respBody))
	}
	return stream.New(resp.Body), nil
}

// EntryPage fetches the server-rendered markup of an entry.
func (c *Client) EntryPage(ctx context.Context, entryID string) ([]byte, error) {
	req, err := c.newRequest(ctx, "/e/"+url.PathEscape(entryID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get entry page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrUnknownEntry
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("get entry page %s: status %d: %s", entryID, resp.StatusCode, string(respBody))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read entry page: %w", err)
	}
	return body, nil
}

// CoverImage runs the cover-image lookup. It returns nil when the stream
// ends without a descriptor.
func (c *Client) CoverImage(ctx context.Context, entryID string) (*doctree.CoverImage, error) {
	s, err := c.OpenStream(ctx, EntryPath(entryID, "image", "get-cover"), nil)
	if err != nil {
		return nil, err
	}

	var (
		image  *doctree.CoverImage
		endErr error
	)
	stream.Consume(s.Events(), stream.Handler{
		OnItem: func(ev stream.Event) {
			if pe, ok := ev.PayloadError(); ok {
				c.log.Debug("cover image unavailable", "entry_id", entryID, "code", pe.Code, "message", pe.Message)
				return
			}
			var img doctree.CoverImage
			if err := ev.Decode(&img); err != nil {
				c.log.Warn("malformed cover image payload", "entry_id", entryID, "payload", ev.Data, "error", err)
				return
			}
			if img.URL != "" && image == nil {
				image = &img
			}
		},
		OnEnd: func(err error) { endErr = err },
	})
	if endErr != nil && image == nil {
		return nil, endErr
	}
	return image, nil
}

// RelatedTopics streams related-topic suggestions into fn.
func (c *Client) RelatedTopics(ctx context.Context, entryID string, fn func(doctree.RelatedTopic)) error {
	s, err := c.OpenStream(ctx, EntryPath(entryID, "get-related-topics"), nil)
	if err != nil {
		return err
	}

	var endErr error
	stream.Consume(s.Events(), stream.Handler{
		OnItem: func(ev stream.Event) {
			if pe, ok := ev.PayloadError(); ok {
				c.log.Info("related topics error payload", "entry_id", entryID, "code", pe.Code, "message", pe.Message)
				return
			}
			var topic doctree.RelatedTopic
			if err := ev.Decode(&topic); err != nil || topic.Topic == "" {
				c.log.Warn("malformed related topic payload", "entry_id", entryID, "payload", ev.Data)
				return
			}
			fn(topic)
		},
		OnEnd: func(err error) { endErr = err },
	})
	return endErr
}

// EntryPath joins path segments under /e/{entryID}.
func EntryPath(entryID string, segments ...string) string {
	var sb strings.Builder
	sb.WriteString("/e/")
	sb.WriteString(url.PathEscape(entryID))
	for _, s := range segments {
		sb.WriteByte('/')
		sb.WriteString(url.PathEscape(s))
	}
	return sb.String()
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
	c.streamClient.CloseIdleConnections()
}
