package resolver

import (
	"context"
	"time"
)

// Tier names one source in the resolution order.
type Tier string

const (
	TierMemory      Tier = "memory"
	TierObjectStore Tier = "objectStore"
	TierOverride    Tier = "override"
	TierRemote      Tier = "remote"
	TierFallback    Tier = "embeddedFallback"
)

// Record is a resolved artifact. Bytes is shared between callers and must be
// treated as read-only.
type Record struct {
	Bytes      []byte    `json:"-"`
	Size       int       `json:"size"`
	Tier       Tier      `json:"sourceTier"`
	Source     string    `json:"source,omitempty"`
	Checksum   string    `json:"checksum"`
	Success    bool      `json:"success"`
	Cached     bool      `json:"cached"`
	ResolvedAt time.Time `json:"resolvedAt"`
}

// Request carries the per-call knobs of Resolve.
type Request struct {
	ForceRefresh bool
	OverrideURL  string
}

// Strategy is one tier of the pipeline. TryResolve reports ok=false for any
// failure; it never panics the pipeline and never returns a partial record.
type Strategy interface {
	Name() Tier
	TryResolve(ctx context.Context, req Request) (Record, bool)
}
