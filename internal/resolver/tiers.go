package resolver

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/objectstore"
	"github.com/MrSnakeDoc/warden/internal/service"
	"github.com/MrSnakeDoc/warden/internal/utils"
)

// ---- memory ----

type memoryTier struct {
	mu       sync.RWMutex
	rec      Record
	storedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

func (*memoryTier) Name() Tier { return TierMemory }

func (m *memoryTier) TryResolve(_ context.Context, req Request) (Record, bool) {
	if req.ForceRefresh {
		return Record{}, false
	}
	rec, ok := m.get()
	if !ok {
		return Record{}, false
	}
	rec.Tier = TierMemory
	rec.Cached = true
	rec.ResolvedAt = m.now()
	return rec, true
}

func (m *memoryTier) get() (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.rec.Bytes == nil || m.now().Sub(m.storedAt) >= m.ttl {
		return Record{}, false
	}
	return m.rec, true
}

// set is last-writer-wins; any fresh valid record is acceptable.
func (m *memoryTier) set(rec Record) {
	m.mu.Lock()
	m.rec = rec
	m.storedAt = m.now()
	m.mu.Unlock()
}

func (m *memoryTier) clear() {
	m.mu.Lock()
	m.rec = Record{}
	m.storedAt = time.Time{}
	m.mu.Unlock()
}

// ---- object store ----

type objectStoreTier struct {
	r     *Resolver
	store objectstore.Store
}

func (objectStoreTier) Name() Tier { return TierObjectStore }

func (t objectStoreTier) TryResolve(ctx context.Context, _ Request) (Record, bool) {
	ctx, cancel := context.WithTimeout(ctx, t.r.opts.FetchTimeout)
	defer cancel()

	data, meta, err := t.store.Get(ctx, t.r.opts.ArtifactName)
	if err != nil {
		if !errors.Is(err, objectstore.ErrNotFound) {
			logger.Warn("resolver: %s", errs.New(errs.TierUnavailable, err, TierObjectStore).Error())
		}
		return Record{}, false
	}
	if len(data) == 0 {
		logger.Warn("resolver: object store returned an empty %s", t.r.opts.ArtifactName)
		return Record{}, false
	}
	sum := meta.SHA256
	if sum == "" {
		sum = utils.Sha256Hex(data)
	}
	return Record{
		Bytes:      data,
		Size:       len(data),
		Tier:       TierObjectStore,
		Source:     t.r.opts.ArtifactName,
		Checksum:   sum,
		Success:    true,
		ResolvedAt: t.r.now(),
	}, true
}

// ---- override ----

type overrideTier struct{ r *Resolver }

func (overrideTier) Name() Tier { return TierOverride }

// TryResolve fetches the caller's URL once; no retry.
func (t overrideTier) TryResolve(ctx context.Context, req Request) (Record, bool) {
	if req.OverrideURL == "" {
		return Record{}, false
	}
	o := t.r.opts
	rec, err := t.r.fetch(ctx, req.OverrideURL, o.OverrideMinBytes, o.OverrideMaxBytes)
	if err != nil {
		logger.Warn("resolver: override %s: %v", req.OverrideURL, err)
		return Record{}, false
	}
	rec.Tier = TierOverride
	return rec, true
}

// ---- remote candidates ----

type remoteTier struct{ r *Resolver }

func (remoteTier) Name() Tier { return TierRemote }

func (t remoteTier) TryResolve(ctx context.Context, _ Request) (Record, bool) {
	o := t.r.opts
	for i, url := range o.Candidates {
		if ctx.Err() != nil {
			return Record{}, false
		}
		rec, err := t.r.fetch(ctx, url, o.RemoteMinBytes, o.OverrideMaxBytes)
		if err != nil {
			logger.Warn("resolver: candidate %d/%d %s: %v", i+1, len(o.Candidates), url, err)
			continue
		}
		rec.Tier = TierRemote
		return rec, true
	}
	return Record{}, false
}

// fetch performs one bounded GET and validates the payload size.
func (r *Resolver) fetch(ctx context.Context, url string, minBytes, maxBytes int64) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	res, err := service.FetchBytes(ctx, r.client, url, r.opts.UserAgent, maxBytes)
	if err != nil {
		if errors.Is(err, service.ErrTooLarge) {
			return Record{}, errs.New(errs.ArtifactInvalid, err, url, maxBytes+1, minBytes, maxBytes)
		}
		return Record{}, errs.New(errs.TierUnavailable, err, url)
	}
	n := int64(len(res.Body))
	if n == 0 || n < minBytes {
		return Record{}, errs.New(errs.ArtifactInvalid, nil, url, n, minBytes, maxBytes)
	}

	logger.Debug("resolver: fetched %s (%s) in %s", url, utils.HumanSize(n), time.Since(start).Truncate(time.Millisecond))
	return Record{
		Bytes:      res.Body,
		Size:       len(res.Body),
		Source:     url,
		Checksum:   utils.Sha256Hex(res.Body),
		Success:    true,
		ResolvedAt: r.now(),
	}, nil
}
