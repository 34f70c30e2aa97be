package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

var (
	ErrEmptyTopic     = errors.New("topic is required")
	ErrUnknownTopic   = errors.New("unknown topic")
	ErrPolicyRejected = errors.New("topic rejected by acceptable use policy")
	ErrRequest        = errors.New("entry request failed")
	ErrUnknownEntry   = errors.New("no entry exists for the given id")
)

// Proficiency is the reader's familiarity with a topic.
type Proficiency int

const (
	Beginner     Proficiency = 1
	Intermediate Proficiency = 2
	Advanced     Proficiency = 3
)

// ParseProficiency falls back to Intermediate for anything unrecognized.
func ParseProficiency(s string) Proficiency {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return Intermediate
	}
	switch p := Proficiency(n); p {
	case Beginner, Intermediate, Advanced:
		return p
	}
	return Intermediate
}

// NewEntry asks the server to create an entry for topic and returns the
// location to navigate to.
func (c *Client) NewEntry(ctx context.Context, topic string, proficiency Proficiency) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", ErrEmptyTopic
	}
	query := url.Values{}
	query.Set("proficiency", strconv.Itoa(int(proficiency)))
	query.Set("topic", topic)

	req, err := c.newRequest(ctx, "/e/new", query)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc := resp.Header.Get("Location")
		if loc == "" {
			return "", fmt.Errorf("%w: redirect without location", ErrRequest)
		}
		return loc, nil
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrUnknownTopic
	case resp.StatusCode == http.StatusMethodNotAllowed:
		return "", ErrPolicyRejected
	default:
		return "", fmt.Errorf("%w: status %d", ErrRequest, resp.StatusCode)
	}
}

// UserMessage maps a new-entry failure to the text shown to the reader.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownTopic):
		return "Unknown topic."
	case errors.Is(err, ErrPolicyRejected):
		return "This topic contains or implies content that falls outside acceptable use guidelines."
	default:
		return "An error occurred."
	}
}
