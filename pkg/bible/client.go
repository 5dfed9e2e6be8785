package bible

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scripturechat/pkg/domain"
)

const (
	DefaultBaseURL     = "https://bible-api.com"
	DefaultTranslation = "kjv"
)

// ErrNotFound means the service was reachable but returned no verses.
var ErrNotFound = errors.New("passage not found")

// Lookuper resolves a passage string into verses.
type Lookuper interface {
	Lookup(ctx context.Context, passage string) (Passage, error)
}

// Client queries a bible-api.com compatible verse service.
type Client struct {
	baseURL     string
	translation string
	httpClient  *http.Client
}

// NewClient constructs a lookup client scoped to one translation.
func NewClient(baseURL, translation string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	translation = strings.TrimSpace(translation)
	if translation == "" {
		translation = DefaultTranslation
	}
	return &Client{
		baseURL:     baseURL,
		translation: translation,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Translation returns the translation code every request is scoped to.
func (c *Client) Translation() string { return c.translation }

// Lookup performs a single request for passage. Non-2xx statuses, undecodable
// bodies and empty verse lists all yield ErrNotFound; transport failures are
// returned wrapped. There are no retries.
func (c *Client) Lookup(ctx context.Context, passage string) (Passage, error) {
	passage = strings.TrimSpace(passage)
	if passage == "" {
		return Passage{}, ErrNotFound
	}
	var body passageResponse
	if err := c.get(ctx, passage, &body); err != nil {
		return Passage{}, err
	}
	if len(body.Verses) == 0 {
		return Passage{}, ErrNotFound
	}
	out := Passage{
		Reference: strings.TrimSpace(body.Reference),
		Verses:    make([]domain.Verse, 0, len(body.Verses)),
	}
	for _, v := range body.Verses {
		out.Verses = append(out.Verses, domain.Verse{Number: v.Verse, Text: strings.TrimSpace(v.Text)})
	}
	if out.Reference == "" {
		out.Reference = passage
	}
	return out, nil
}

// Search returns one hit per verse matched by query. Single-verse responses
// without a verse list fall back to the top-level reference and text.
func (c *Client) Search(ctx context.Context, query string) ([]domain.VerseHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNotFound
	}
	var body passageResponse
	if err := c.get(ctx, query, &body); err != nil {
		return nil, err
	}
	if len(body.Verses) > 0 {
		hits := make([]domain.VerseHit, 0, len(body.Verses))
		for _, v := range body.Verses {
			hits = append(hits, domain.VerseHit{
				Reference: fmt.Sprintf("%s %d:%d", v.BookName, v.Chapter, v.Verse),
				Text:      strings.TrimSpace(v.Text),
			})
		}
		return hits, nil
	}
	if body.Reference != "" && body.Text != "" {
		return []domain.VerseHit{{Reference: body.Reference, Text: strings.TrimSpace(body.Text)}}, nil
	}
	return nil, ErrNotFound
}

func (c *Client) get(ctx context.Context, passage string, out *passageResponse) error {
	endpoint := fmt.Sprintf("%s/%s?translation=%s", c.baseURL, url.PathEscape(passage), url.QueryEscape(c.translation))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build lookup request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", passage, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("lookup %q: status %d: %w", passage, resp.StatusCode, ErrNotFound)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %q: %v: %w", passage, err, ErrNotFound)
	}
	return nil
}

type passageResponse struct {
	Reference string `json:"reference"`
	Text      string `json:"text"`
	Verses    []struct {
		BookName string `json:"book_name"`
		Chapter  int    `json:"chapter"`
		Verse    int    `json:"verse"`
		Text     string `json:"text"`
	} `json:"verses"`
}
