package probe

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/service"
	"github.com/MrSnakeDoc/warden/internal/utils"
)

// DefaultTimeout bounds every probe, whatever the caller's context allows.
const DefaultTimeout = 10 * time.Second

type Result struct {
	URL           string `json:"url"`
	Accessible    bool   `json:"accessible"`
	StatusCode    int    `json:"statusCode,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	ContentLength int64  `json:"contentLength,omitempty"`
	LastModified  string `json:"lastModified,omitempty"`
	Error         string `json:"error,omitempty"`
}

type Prober struct {
	client    service.HTTPClient
	timeout   time.Duration
	userAgent string
}

func New(client service.HTTPClient, userAgent string) *Prober {
	if client == nil {
		client = service.NewHTTPClient(0)
	}
	return &Prober{client: client, timeout: DefaultTimeout, userAgent: userAgent}
}

// WithTimeout returns a copy using d instead of DefaultTimeout.
func (p *Prober) WithTimeout(d time.Duration) *Prober {
	cp := *p
	cp.timeout = d
	return &cp
}

// StripMetadata drops the ";suffix" some clients append to artifact URLs
// (checksums, loader hints) so only the fetchable part is probed.
func StripMetadata(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, ';'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Probe checks url with a HEAD request. It never returns an error: failures
// are reported through Result.Error with Accessible=false.
func (p *Prober) Probe(ctx context.Context, rawURL string) Result {
	target := StripMetadata(rawURL)
	res := Result{URL: target}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	resp, err := service.Head(ctx, p.client, target, p.userAgent)
	if err != nil {
		if service.IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Error = "timeout"
		} else {
			res.Error = err.Error()
		}
		logger.Debug("probe %s failed after %s: %s", target, time.Since(start).Truncate(time.Millisecond), res.Error)
		return res
	}
	defer utils.Try("probe "+target, resp.Body.Close)

	res.StatusCode = resp.StatusCode
	res.Accessible = resp.StatusCode >= 200 && resp.StatusCode < 400
	res.ContentType = resp.Header.Get("Content-Type")
	res.LastModified = resp.Header.Get("Last-Modified")
	if resp.ContentLength >= 0 {
		res.ContentLength = resp.ContentLength
	} else if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		res.ContentLength = n
	}
	if !res.Accessible {
		res.Error = http.StatusText(resp.StatusCode)
	}

	logger.Debug("probe %s -> %d in %s", target, resp.StatusCode, time.Since(start).Truncate(time.Millisecond))
	return res
}
