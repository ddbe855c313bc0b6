// Package confluence is a minimal read-only client for the wiki REST API:
// child-page listing, page body retrieval, and attachment download. Every
// request passes through the shared rate limiter before it leaves the
// process.
package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jinwoohan/appgrader/internal/errs"
	"github.com/jinwoohan/appgrader/internal/ratelimit"
)

const (
	childPageLimit = 50
	maxAttempts    = 3
	baseBackoff    = 500 * time.Millisecond
)

// PageSummary identifies one child page without its body.
type PageSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Page is a full page with its rendered body.
type Page struct {
	ID    string
	Title string
	Body  string
	WebUI string
}

// Client talks to one wiki instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *ratelimit.Limiter
	log     *zap.Logger
}

// New creates a client for the wiki at baseURL authenticating with a
// bearer token. All requests are gated by limiter.
func New(baseURL, token string, limiter *ratelimit.Limiter, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		log:     log,
	}
}

type childPageResponse struct {
	Results []PageSummary `json:"results"`
	Size    int           `json:"size"`
	Limit   int           `json:"limit"`
}

// ListChildren returns all direct child pages of the given parent,
// following pagination until the server reports a short page.
func (c *Client) ListChildren(ctx context.Context, parentID string) ([]PageSummary, error) {
	var all []PageSummary
	start := 0
	for {
		u := fmt.Sprintf("%s/rest/api/content/%s/child/page?start=%d&limit=%d",
			c.baseURL, url.PathEscape(parentID), start, childPageLimit)

		var page childPageResponse
		if err := c.getJSON(ctx, u, &page); err != nil {
			return nil, fmt.Errorf("listing children of %s: %w", parentID, err)
		}
		all = append(all, page.Results...)

		// The server may cap the page size below what was requested; a
		// full page is one that reaches the effective limit.
		limit := childPageLimit
		if page.Limit > 0 && page.Limit < childPageLimit {
			limit = page.Limit
		}
		if page.Size < limit {
			return all, nil
		}
		start += page.Size
	}
}

type pageResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		View struct {
			Value string `json:"value"`
		} `json:"view"`
	} `json:"body"`
	Links struct {
		WebUI string `json:"webui"`
	} `json:"_links"`
}

// GetPage fetches one page with its rendered body.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	u := fmt.Sprintf("%s/rest/api/content/%s?expand=body.view",
		c.baseURL, url.PathEscape(pageID))

	var resp pageResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("fetching page %s: %w", pageID, err)
	}
	return &Page{
		ID:    resp.ID,
		Title: resp.Title,
		Body:  resp.Body.View.Value,
		WebUI: resp.Links.WebUI,
	}, nil
}

// Download fetches an attachment or embedded image. Relative URLs are
// resolved against the client's base URL. Returns the raw bytes and the
// reported content type.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", errs.Permanent("download", fmt.Errorf("invalid attachment url %q: %w", rawURL, err))
	}
	if !u.IsAbs() {
		base, err := url.Parse(c.baseURL)
		if err != nil {
			return nil, "", fmt.Errorf("invalid base url: %w", err)
		}
		u = base.ResolveReference(u)
	}

	var body []byte
	var contentType string
	err = c.do(ctx, u.String(), func(resp *http.Response) error {
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Transient("download", err)
		}
		body = b
		contentType = resp.Header.Get("Content-Type")
		return nil
	})
	if err != nil {
		return nil, "", fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	return body, contentType, nil
}

func (c *Client) getJSON(ctx context.Context, u string, dest any) error {
	return c.do(ctx, u, func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return errs.Transient("decode", err)
		}
		return nil
	})
}

// do performs one GET with rate limiting, retrying transient failures
// with exponential backoff. A 429 Retry-After delay is honoured when the
// server supplies one.
func (c *Client) do(ctx context.Context, u string, handle func(*http.Response) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffFor(lastErr, attempt)
			c.log.Debug("retrying wiki request",
				zap.String("url", u),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}

		lastErr = c.once(ctx, u, handle)
		if lastErr == nil {
			return nil
		}
		if !errs.IsTransient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, u string, handle func(*http.Response) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errs.Permanent("request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errs.Transient("request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := errs.FromStatus("wiki", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests {
			if after := retryAfter(resp); after > 0 {
				return &retryAfterError{err: statusErr, after: after}
			}
		}
		return statusErr
	}

	return handle(resp)
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func backoffFor(lastErr error, attempt int) time.Duration {
	if ra, ok := lastErr.(*retryAfterError); ok {
		return ra.after
	}
	// 500ms, 1s, 2s, ...
	return baseBackoff << (attempt - 2)
}
