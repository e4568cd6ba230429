package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Client is a client for the GitHub REST v3 API. Requests authenticate with
// basic auth (login + token) and are paced by a rate Governor.
type Client struct {
	HTTPClient *http.Client
	Governor   *Governor

	baseURL string
	login   string
	token   string
}

// NewClient creates a new Client for the given API base URL and credentials.
func NewClient(baseURL, login, token string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Governor:   NewGovernor(),
		baseURL:    baseURL,
		login:      login,
		token:      token,
	}
}

// BaseURL returns the API base URL, e.g. "https://api.github.com".
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Walk is the outcome of a paginated fetch. Status is the HTTP status of the
// last page fetched: 200 on normal completion, 202 when the walk suspended on
// a not-ready page (Resume then holds the URL to retry), anything else when
// the walk ended on a terminal error and Records should be discarded.
type Walk struct {
	Records []json.RawMessage
	Status  int
	Resume  string
}

// FetchAll walks a cursor-linked list of pages starting at url, following
// `Link: <url>; rel="next"` headers and accumulating decoded records in
// order. A page decoding as a JSON list contributes all its elements; a page
// decoding as a single object contributes one record; an undecodable body is
// logged and contributes nothing without aborting the walk.
//
// A 202 (accepted but not ready) page suspends the walk: the accumulated
// records and the pending URL are returned so the caller can requeue the walk
// instead of retrying in a tight loop. Any status other than 200 or 202 is
// terminal for the walk. The returned error covers transport failures only.
func (c *Client) FetchAll(ctx context.Context, url string) (*Walk, error) {
	var agg []json.RawMessage

	for url != "" {
		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		c.Governor.Observe(resp)
		log.Debug().
			Int("remaining", c.Governor.Remaining()).
			Int("status", resp.StatusCode).
			Str("url", url).
			Msg("fetched page")

		switch resp.StatusCode {
		case http.StatusOK:
			// fall through to decode
		case http.StatusAccepted:
			return &Walk{Records: agg, Status: http.StatusAccepted, Resume: url}, nil
		default:
			return &Walk{Status: resp.StatusCode}, nil
		}

		agg = append(agg, decodePage(body)...)
		url = ParseNextLink(resp.Header.Get("Link"))
	}

	return &Walk{Records: agg, Status: http.StatusOK}, nil
}

// get issues a single paced, authenticated request.
func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.Governor.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.login, c.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", c.login)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	return resp, nil
}

// decodePage decodes a page body as either a list of records or a single
// record. A body that is neither yields zero records.
func decodePage(body []byte) []json.RawMessage {
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		return list
	}

	var single json.RawMessage
	if err := json.Unmarshal(body, &single); err != nil || len(body) == 0 {
		log.Error().Str("body", string(body)).Msg("response body is not valid JSON")
		return nil
	}
	return []json.RawMessage{single}
}
