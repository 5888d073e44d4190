// Package fetch wraps HTTP retrieval for playlist, key, and segment
// requests. Some CDNs gate segment access on the Origin/Referer of the
// page that played the video, so every request can replay the origin
// recorded when the asset was first observed.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError reports a response with a non-2xx status code. Multipart
// assembly loops rely on it to tell "no more segments" apart from
// transport failures.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// IsNotOK reports whether err is a StatusError, i.e. the server answered
// but refused the resource.
func IsNotOK(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// Client fetches URLs with a bounded timeout.
type Client struct {
	httpClient *http.Client
	origin     string
}

// New creates a client. origin may be empty; when set it is sent as both
// Origin and Referer on every request.
func New(origin string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		origin: origin,
	}
}

// Get fetches a URL and returns the full body. Non-2xx responses return
// a StatusError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %s: %w", url, err)
	}
	c.setOrigin(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}
	return body, nil
}

// Head issues a HEAD request and returns the Content-Type header.
func (c *Client) Head(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL %s: %w", url, err)
	}
	c.setOrigin(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch headers of %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Header.Get("Content-Type"), nil
}

// Stream opens a GET request and returns the body reader along with the
// reported content length (-1 when unknown). The caller owns the reader.
func (c *Client) Stream(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid URL %s: %w", url, err)
	}
	c.setOrigin(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, 0, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, resp.ContentLength, nil
}

func (c *Client) setOrigin(req *http.Request) {
	if c.origin != "" {
		req.Header.Set("Origin", c.origin)
		req.Header.Set("Referer", c.origin)
	}
}
