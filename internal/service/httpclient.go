package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/utils"
)

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type DefaultHTTPClient struct{ *http.Client }

func NewHTTPClient(timeout time.Duration) *DefaultHTTPClient {
	return &DefaultHTTPClient{Client: &http.Client{Timeout: timeout}}
}

type FetchResult struct {
	Status      int
	Body        []byte
	ContentType string
}

// ErrTooLarge is returned when a body exceeds the caller's byte ceiling.
var ErrTooLarge = errors.New("response body exceeds size limit")

// FetchBytes GETs url and reads at most maxBytes of body. Non-2xx statuses are
// errors. Deadline hits are reported as errs.UpstreamTimeout.
func FetchBytes(ctx context.Context, c HTTPClient, url, userAgent string, maxBytes int64) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return FetchResult{}, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := c.Do(req)
	if err != nil {
		return FetchResult{}, classify(ctx, url, err)
	}
	defer utils.Try("fetch "+url, resp.Body.Close)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FetchResult{Status: resp.StatusCode}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var src io.Reader = resp.Body
	if maxBytes > 0 {
		src = io.LimitReader(resp.Body, maxBytes+1)
	}
	body, err := io.ReadAll(src)
	if err != nil {
		return FetchResult{Status: resp.StatusCode}, classify(ctx, url, err)
	}
	if maxBytes > 0 && int64(len(body)) > maxBytes {
		return FetchResult{Status: resp.StatusCode}, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}

	return FetchResult{
		Status:      resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// Head issues a HEAD request. The caller owns the response body.
func Head(ctx context.Context, c HTTPClient, url, userAgent string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, classify(ctx, url, err)
	}
	return resp, nil
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, errs.ErrUpstreamTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func classify(ctx context.Context, url string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || IsTimeout(err) {
		return errs.New(errs.UpstreamTimeout, err, url, "its deadline")
	}
	return err
}
