// Package channels keeps the live-channel list fresh: it downloads M3U
// playlists from configured sources and stores the parsed channels in SQLite.
package channels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/service"
)

const maxPlaylistBytes = 32 << 20

var ErrNoSources = errors.New("no playlist sources configured")

type Summary struct {
	Source   string `json:"source"`
	EPGURL   string `json:"epgUrl,omitempty"`
	Channels int    `json:"channels"`
	Groups   int    `json:"groups"`
}

type Options struct {
	Sources      []string
	FetchTimeout time.Duration
	UserAgent    string
	Client       service.HTTPClient
}

type Refresher struct {
	db   *DB
	opts Options
	now  func() time.Time
}

func NewRefresher(db *DB, opts Options) *Refresher {
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 30 * time.Second
	}
	if opts.Client == nil {
		opts.Client = service.NewHTTPClient(0)
	}
	return &Refresher{db: db, opts: opts, now: time.Now}
}

func (r *Refresher) Configured() bool { return len(r.opts.Sources) > 0 }

func (r *Refresher) Queries() int64 { return r.db.Queries() }

// Refresh tries each source in order; the first one that yields at least one
// channel replaces the stored set. On failure the stored set is left as is.
func (r *Refresher) Refresh(ctx context.Context) (Summary, error) {
	if !r.Configured() {
		return Summary{}, ErrNoSources
	}

	var lastErr error
	for _, src := range r.opts.Sources {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		pl, err := r.fetch(ctx, src)
		if err != nil {
			logger.Warn("channels: source %s: %v", src, err)
			lastErr = err
			continue
		}
		if err := r.db.Replace(ctx, src, pl.EPGURL, pl.Channels, r.now()); err != nil {
			return Summary{}, err
		}
		sum := Summary{Source: src, EPGURL: pl.EPGURL, Channels: len(pl.Channels), Groups: countGroups(pl.Channels)}
		logger.Debug("channels: stored %d channels in %d groups from %s", sum.Channels, sum.Groups, src)
		return sum, nil
	}
	return Summary{}, fmt.Errorf("all %d playlist sources failed: %w", len(r.opts.Sources), lastErr)
}

func (r *Refresher) fetch(ctx context.Context, src string) (Playlist, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	res, err := service.FetchBytes(ctx, r.opts.Client, src, r.opts.UserAgent, maxPlaylistBytes)
	if err != nil {
		return Playlist{}, err
	}
	pl, err := ParsePlaylist(bytes.NewReader(res.Body))
	if err != nil {
		return Playlist{}, fmt.Errorf("parse playlist: %w", err)
	}
	if len(pl.Channels) == 0 {
		return Playlist{}, errors.New("playlist has no channels")
	}
	return pl, nil
}

func (r *Refresher) List(ctx context.Context) ([]Channel, error) { return r.db.List(ctx) }

func (r *Refresher) LastRefresh(ctx context.Context) (LastRefresh, bool, error) {
	return r.db.LastRefresh(ctx)
}

func countGroups(chans []Channel) int {
	seen := make(map[string]struct{})
	for _, c := range chans {
		if c.Group != "" {
			seen[c.Group] = struct{}{}
		}
	}
	return len(seen)
}
