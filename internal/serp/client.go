// Package serp fetches search-engine result pages through a scraping
// proxy. The proxy executes the search and returns rendered HTML; jobs
// that cannot be served synchronously are polled until done.
package serp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/netflixcritic/checker/internal/catalog"
)

// Config carries the proxy endpoint and polling knobs.
type Config struct {
	Endpoint     string
	APIKey       string
	PollAttempts int
	PollInterval time.Duration
	Timeout      time.Duration
}

// Client talks to the scraping proxy.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// JobError reports a proxy job that finished without a result.
type JobError struct {
	JobID  string
	Status string
}

func (e *JobError) Error() string {
	return fmt.Sprintf("search job %s finished with status %q", e.JobID, e.Status)
}

// ErrJobPending is returned by Poll while the job is still running.
var ErrJobPending = fmt.Errorf("search job still pending")

func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// BuildQuery assembles the search phrase for one candidate title. The
// release year disambiguates remakes; the content type steers the
// engine toward the film/series knowledge panel.
func BuildQuery(c catalog.RatingsCandidate) string {
	parts := []string{c.Title}
	if c.ContentType != "" {
		parts = append(parts, c.ContentType)
	}
	if c.ReleaseYear > 0 {
		parts = append(parts, strconv.Itoa(c.ReleaseYear))
	}
	return strings.Join(parts, " ")
}

type jobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Body   string `json:"body"`
}

// Search submits the query and returns the rendered result page,
// polling when the proxy answers with a deferred job.
func (c *Client) Search(ctx context.Context, query string) ([]byte, error) {
	job, err := c.submit(ctx, query)
	if err != nil {
		return nil, err
	}
	if job.Status == "finished" {
		return []byte(job.Body), nil
	}

	for attempt := 0; attempt < c.cfg.PollAttempts; attempt++ {
		select {
		case <-time.After(c.cfg.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		body, err := c.Poll(ctx, job.ID)
		if err == ErrJobPending {
			continue
		}
		if err != nil {
			return nil, err
		}
		return body, nil
	}
	return nil, fmt.Errorf("search job %s: poll attempts exhausted", job.ID)
}

func (c *Client) submit(ctx context.Context, query string) (*jobResponse, error) {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("query", query)

	var job jobResponse
	if err := c.getJSON(ctx, c.cfg.Endpoint+"?"+q.Encode(), &job); err != nil {
		return nil, fmt.Errorf("submit search: %w", err)
	}
	c.logger.Debug("search submitted",
		zap.String("job_id", job.ID),
		zap.String("status", job.Status),
	)
	return &job, nil
}

// Poll checks a deferred job once.
func (c *Client) Poll(ctx context.Context, jobID string) ([]byte, error) {
	q := url.Values{}
	q.Set("api_key", c.cfg.APIKey)
	q.Set("id", jobID)

	var job jobResponse
	if err := c.getJSON(ctx, c.cfg.Endpoint+"/"+jobID+"?"+q.Encode(), &job); err != nil {
		return nil, fmt.Errorf("poll search job %s: %w", jobID, err)
	}
	switch job.Status {
	case "finished":
		return []byte(job.Body), nil
	case "running", "pending", "":
		return nil, ErrJobPending
	default:
		return nil, &JobError{JobID: jobID, Status: job.Status}
	}
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("proxy returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
