// Package resolver answers "give me the current artifact" by walking an
// ordered list of tiers: memory, object store, caller override, remote
// candidates and finally the artifact compiled into the binary.
package resolver

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/MrSnakeDoc/warden/internal/config"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/objectstore"
	"github.com/MrSnakeDoc/warden/internal/service"
	"github.com/MrSnakeDoc/warden/internal/utils"
	"golang.org/x/sync/singleflight"
)

type Options struct {
	Candidates       []string
	ArtifactName     string
	MemoryTTL        time.Duration
	FetchTimeout     time.Duration
	RemoteMinBytes   int64
	OverrideMinBytes int64
	OverrideMaxBytes int64
	UserAgent        string

	Client service.HTTPClient
	// Store is nil when the deployment has no durable object store.
	Store objectstore.Store
}

func OptionsFromConfig(c config.ResolverConfig) Options {
	return Options{
		Candidates:       append([]string(nil), c.Candidates...),
		ArtifactName:     c.ArtifactName,
		MemoryTTL:        c.MemoryTTL,
		FetchTimeout:     c.FetchTimeout,
		RemoteMinBytes:   c.RemoteMinBytes,
		OverrideMinBytes: c.OverrideMinBytes,
		OverrideMaxBytes: c.OverrideMaxBytes,
		UserAgent:        c.UserAgent,
	}
}

type Resolver struct {
	opts    Options
	client  service.HTTPClient
	store   objectstore.Store
	memory  *memoryTier
	tiers   []Strategy
	group   singleflight.Group
	pending sync.WaitGroup
	now     func() time.Time
}

func New(opts Options) *Resolver {
	d := config.DefaultConfig().Resolver
	if opts.ArtifactName == "" {
		opts.ArtifactName = d.ArtifactName
	}
	if opts.MemoryTTL <= 0 {
		opts.MemoryTTL = d.MemoryTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = d.FetchTimeout
	}
	if opts.RemoteMinBytes <= 0 {
		opts.RemoteMinBytes = d.RemoteMinBytes
	}
	if opts.OverrideMinBytes <= 0 {
		opts.OverrideMinBytes = d.OverrideMinBytes
	}
	if opts.OverrideMaxBytes <= 0 {
		opts.OverrideMaxBytes = d.OverrideMaxBytes
	}
	if opts.Client == nil {
		// per-request deadlines come from contexts
		opts.Client = service.NewHTTPClient(0)
	}

	r := &Resolver{
		opts:   opts,
		client: opts.Client,
		store:  opts.Store,
		now:    time.Now,
	}
	r.memory = &memoryTier{ttl: opts.MemoryTTL, now: r.nowFn}

	r.tiers = []Strategy{r.memory}
	if opts.Store != nil {
		r.tiers = append(r.tiers, objectStoreTier{r: r, store: opts.Store})
	}
	r.tiers = append(r.tiers, overrideTier{r: r}, remoteTier{r: r}, fallbackTier{r: r})
	return r
}

func (r *Resolver) nowFn() time.Time { return r.now() }

// Tiers lists the configured tier order.
func (r *Resolver) Tiers() []Tier {
	out := make([]Tier, len(r.tiers))
	for i, t := range r.tiers {
		out[i] = t.Name()
	}
	return out
}

// Resolve never fails: the last tier always yields bytes, flagged
// Success=false. Concurrent identical requests share one pipeline walk.
// A caller whose ctx ends first gets the embedded artifact while the walk
// carries on for the others.
func (r *Resolver) Resolve(ctx context.Context, forceRefresh bool, overrideURL string) Record {
	req := Request{ForceRefresh: forceRefresh, OverrideURL: overrideURL}

	if !forceRefresh {
		if rec, ok := r.memory.TryResolve(ctx, req); ok {
			return rec
		}
	}

	key := strconv.FormatBool(forceRefresh) + "|" + overrideURL
	ch := r.group.DoChan(key, func() (interface{}, error) {
		// the walk is shared, so no single caller's cancellation may end it
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.walkBudget())
		defer cancel()
		return r.walk(wctx, req), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Record)
	case <-ctx.Done():
		logger.Debug("resolver: caller gave up waiting for %s: %v", r.opts.ArtifactName, ctx.Err())
		rec, _ := fallbackTier{r: r}.TryResolve(ctx, req)
		return rec
	}
}

// walkBudget bounds a shared walk: one fetch per candidate plus the
// override and object store.
func (r *Resolver) walkBudget() time.Duration {
	return r.opts.FetchTimeout * time.Duration(len(r.opts.Candidates)+2)
}

func (r *Resolver) walk(ctx context.Context, req Request) Record {
	start := time.Now()
	for _, t := range r.tiers {
		rec, ok := r.try(ctx, t, req)
		if !ok {
			continue
		}
		r.accept(rec)
		logger.Debug("resolver: served %s from %s (%s, success=%t) in %s",
			r.opts.ArtifactName, rec.Tier, utils.HumanSize(int64(rec.Size)), rec.Success,
			time.Since(start).Truncate(time.Millisecond))
		return rec
	}
	// unreachable while the fallback tier is last
	rec, _ := fallbackTier{r: r}.TryResolve(ctx, req)
	return rec
}

// try shields the pipeline from a panicking tier.
func (r *Resolver) try(ctx context.Context, t Strategy, req Request) (rec Record, ok bool) {
	defer func() {
		if p := recover(); p != nil {
			logger.LogError("resolver: tier %s panicked: %v", t.Name(), p)
			rec, ok = Record{}, false
		}
	}()
	return t.TryResolve(ctx, req)
}

// accept applies the side effects of a successful tier.
func (r *Resolver) accept(rec Record) {
	switch rec.Tier {
	case TierMemory, TierFallback:
		// fallback must never be cached, so the next call retries live tiers
	case TierObjectStore:
		r.memory.set(rec)
	case TierOverride:
		r.memory.set(rec)
		r.persistAsync(rec)
	default:
		r.memory.set(rec)
		r.persist(context.Background(), rec)
	}
}

func (r *Resolver) persist(ctx context.Context, rec Record) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, r.opts.FetchTimeout)
	defer cancel()
	if err := r.store.Put(ctx, r.opts.ArtifactName, rec.Bytes); err != nil {
		logger.Warn("resolver: persisting %s from %s failed: %v", r.opts.ArtifactName, rec.Tier, err)
	}
}

func (r *Resolver) persistAsync(rec Record) {
	if r.store == nil {
		return
	}
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		r.persist(context.Background(), rec)
	}()
}

// Wait blocks until background object-store writes have finished.
func (r *Resolver) Wait() { r.pending.Wait() }

// Invalidate drops the memory tier so the next call walks the live tiers.
func (r *Resolver) Invalidate() { r.memory.clear() }
