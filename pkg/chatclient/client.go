// Package chatclient talks to the chat service over HTTP and WebSocket.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"scripturechat/pkg/domain"
)

// Client calls the chat service.
type Client struct {
	baseURL    string
	token      string
	userID     string
	httpClient *http.Client
}

// APIError represents a chat service error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Option customizes a Client.
type Option func(*Client)

// WithToken authenticates requests with a bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

// WithUserID sets the X-User-Id header, for deployments without token auth.
func WithUserID(userID string) Option {
	return func(c *Client) { c.userID = strings.TrimSpace(userID) }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient constructs a chat service client.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// A turn may wait on both the passage lookup and generation.
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TurnResult is the response to a sent message.
type TurnResult struct {
	SessionID string             `json:"sessionId"`
	UserTurn  domain.ChatMessage `json:"userTurn"`
	BotTurn   domain.ChatMessage `json:"botTurn"`
	Route     string             `json:"route"`
	Stale     bool               `json:"stale"`
}

// Archive locates an exported transcript.
type Archive struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func (c *Client) CurrentSession(ctx context.Context) (domain.Session, error) {
	var session domain.Session
	err := c.call(ctx, http.MethodGet, "/sessions/current", nil, &session)
	return session, err
}

func (c *Client) NewSession(ctx context.Context) (domain.Session, error) {
	var session domain.Session
	err := c.call(ctx, http.MethodPost, "/sessions", nil, &session)
	return session, err
}

func (c *Client) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	var resp struct {
		Messages []domain.ChatMessage `json:"messages"`
	}
	if err := c.call(ctx, http.MethodGet, "/sessions/"+url.PathEscape(sessionID)+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage submits one message. id may be empty; when set it becomes the
// stored ID of the user turn.
func (c *Client) SendMessage(ctx context.Context, sessionID, id, message string) (TurnResult, error) {
	var out TurnResult
	payload := sendRequest{ID: id, Message: message}
	err := c.call(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/messages", payload, &out)
	return out, err
}

func (c *Client) ListHistory(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	path := "/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp struct {
		Entries []domain.HistoryEntry `json:"entries"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

func (c *Client) DeleteHistory(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/history/"+url.PathEscape(id), nil, nil)
}

func (c *Client) Search(ctx context.Context, query string) ([]domain.VerseHit, error) {
	var resp struct {
		Results []domain.VerseHit `json:"results"`
	}
	if err := c.call(ctx, http.MethodGet, "/search?q="+url.QueryEscape(query), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) Commentators(ctx context.Context) ([]string, error) {
	var resp struct {
		Commentators []string `json:"commentators"`
	}
	if err := c.call(ctx, http.MethodGet, "/commentators", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Commentators, nil
}

func (c *Client) ArchiveSession(ctx context.Context, sessionID string) (Archive, error) {
	var out Archive
	err := c.call(ctx, http.MethodPost, "/sessions/"+url.PathEscape(sessionID)+"/archive", nil, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.addAuthHeaders(req.Header)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	msg := errResp.Error
	if msg == "" {
		msg = resp.Status
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}

func (c *Client) addAuthHeaders(h http.Header) {
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	if c.userID != "" {
		h.Set("X-User-Id", c.userID)
	}
}

type sendRequest struct {
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}
