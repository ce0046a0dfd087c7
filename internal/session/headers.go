package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HeaderSource supplies candidate browser header sets for identity
// rotation.
type HeaderSource interface {
	BrowserHeaders(ctx context.Context) ([]http.Header, error)
}

// BrowserHeaderClient fetches realistic browser header sets from the
// scraping platform's browser-headers endpoint.
type BrowserHeaderClient struct {
	Endpoint   string
	APIKey     string
	NumResults int
	HTTPClient *http.Client
}

type browserHeadersResponse struct {
	Result []map[string]string `json:"result"`
}

// BrowserHeaders requests a batch of header sets and filters out the
// ones the target refuses to serve normally.
func (c *BrowserHeaderClient) BrowserHeaders(ctx context.Context) ([]http.Header, error) {
	if c.Endpoint == "" {
		return nil, fmt.Errorf("headers endpoint is required")
	}
	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	num := c.NumResults
	if num <= 0 {
		num = 100
	}

	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse headers endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.APIKey)
	q.Set("num_results", fmt.Sprintf("%d", num))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build headers request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch browser headers: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("browser headers endpoint returned %d", resp.StatusCode)
	}

	var payload browserHeadersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode browser headers: %w", err)
	}

	out := make([]http.Header, 0, len(payload.Result))
	for _, raw := range payload.Result {
		if !UsableIdentity(raw) {
			continue
		}
		h := make(http.Header, len(raw))
		for k, v := range raw {
			h.Set(k, v)
		}
		out = append(out, h)
	}
	return out, nil
}

// UsableIdentity rejects mobile browser fingerprints: navigating the
// target with a mobile identity yields an app interstitial instead of
// the title page.
func UsableIdentity(headers map[string]string) bool {
	for k, v := range headers {
		if strings.EqualFold(k, "user-agent") && strings.Contains(v, "Mobile;") {
			return false
		}
		if strings.EqualFold(k, "sec-ch-ua-mobile") && v != "?0" {
			return false
		}
	}
	return true
}
