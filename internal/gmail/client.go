// Package gmail is a minimal client for the Gmail REST API covering what the
// pipeline needs: list threads by label, read messages, move labels.
package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBaseURL   = "https://gmail.googleapis.com/gmail/v1"
	defaultTimeout   = 30 * time.Second
	fetchConcurrency = 4
)

// Message is one email with decoded metadata and plain-text body.
type Message struct {
	ID       string
	ThreadID string
	Subject  string
	From     string
	Date     time.Time
	Body     string
	Link     string
}

// Thread is a conversation with its messages.
type Thread struct {
	ID       string
	Messages []Message
}

// TokenSource supplies a current OAuth bearer token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// Client communicates with the Gmail API over HTTP.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// New creates a Client authenticating with the given token source.
func New(tokens TokenSource) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewWithBaseURL(tokens TokenSource, baseURL string) *Client {
	c := New(tokens)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gmail request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("gmail: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type threadsListResponse struct {
	Threads []struct {
		ID string `json:"id"`
	} `json:"threads"`
}

// ListThreads returns up to limit threads carrying the given label, fully
// expanded to messages. Thread bodies are fetched concurrently with a small
// bound; results keep the listing order.
func (c *Client) ListThreads(ctx context.Context, labelID string, limit int) ([]Thread, error) {
	q := url.Values{}
	q.Set("labelIds", labelID)
	if limit > 0 {
		q.Set("maxResults", strconv.Itoa(limit))
	}

	var list threadsListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/users/me/threads?"+q.Encode(), nil, &list); err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}

	threads := make([]Thread, len(list.Threads))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, ref := range list.Threads {
		g.Go(func() error {
			t, err := c.GetThread(gctx, ref.ID)
			if err != nil {
				return err
			}
			threads[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return threads, nil
}

type apiHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type apiPart struct {
	MimeType string      `json:"mimeType"`
	Headers  []apiHeader `json:"headers"`
	Body     struct {
		Data string `json:"data"`
	} `json:"body"`
	Parts []apiPart `json:"parts"`
}

type apiMessage struct {
	ID           string  `json:"id"`
	ThreadID     string  `json:"threadId"`
	InternalDate string  `json:"internalDate"`
	Payload      apiPart `json:"payload"`
}

type apiThread struct {
	ID       string       `json:"id"`
	Messages []apiMessage `json:"messages"`
}

// GetThread fetches one thread with full message payloads.
func (c *Client) GetThread(ctx context.Context, threadID string) (Thread, error) {
	var raw apiThread
	path := fmt.Sprintf("/users/me/threads/%s?format=full", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return Thread{}, fmt.Errorf("getting thread %s: %w", threadID, err)
	}

	t := Thread{ID: raw.ID, Messages: make([]Message, 0, len(raw.Messages))}
	for _, m := range raw.Messages {
		t.Messages = append(t.Messages, decodeMessage(m))
	}
	return t, nil
}

// ModifyThreadLabels adds and removes labels on a thread in one call.
func (c *Client) ModifyThreadLabels(ctx context.Context, threadID string, add, remove []string) error {
	body, err := json.Marshal(map[string][]string{
		"addLabelIds":    add,
		"removeLabelIds": remove,
	})
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/users/me/threads/%s/modify", url.PathEscape(threadID))
	if err := c.doJSON(ctx, http.MethodPost, path, strings.NewReader(string(body)), nil); err != nil {
		return fmt.Errorf("modifying thread %s labels: %w", threadID, err)
	}
	return nil
}

func decodeMessage(m apiMessage) Message {
	msg := Message{
		ID:       m.ID,
		ThreadID: m.ThreadID,
		Link:     "https://mail.google.com/mail/u/0/#all/" + m.ID,
	}

	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			msg.Subject = h.Value
		case "from":
			msg.From = h.Value
		}
	}

	if ms, err := strconv.ParseInt(m.InternalDate, 10, 64); err == nil {
		msg.Date = time.UnixMilli(ms).UTC()
	}

	msg.Body = plainBody(m.Payload)
	return msg
}

// plainBody walks the MIME tree for the first text/plain part, falling back
// to the top-level body.
func plainBody(p apiPart) string {
	if strings.HasPrefix(p.MimeType, "text/plain") && p.Body.Data != "" {
		return decodeBase64URL(p.Body.Data)
	}
	for _, child := range p.Parts {
		if body := plainBody(child); body != "" {
			return body
		}
	}
	if p.Body.Data != "" {
		return decodeBase64URL(p.Body.Data)
	}
	return ""
}

func decodeBase64URL(data string) string {
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(strings.TrimRight(data, "="))
	if err != nil {
		return ""
	}
	return string(b)
}
