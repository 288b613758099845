package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/warden/internal/cachestore"
	"github.com/MrSnakeDoc/warden/internal/channels"
	"github.com/MrSnakeDoc/warden/internal/errs"
	"github.com/MrSnakeDoc/warden/internal/logger"
	"github.com/MrSnakeDoc/warden/internal/scheduler"
)

type runResponse struct {
	Success bool              `json:"success"`
	Skipped bool              `json:"skipped,omitempty"`
	Running bool              `json:"running,omitempty"`
	Message string            `json:"message"`
	Stats   *scheduler.Report `json:"stats,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	// the pass outlives a disconnecting caller
	ctx := context.WithoutCancel(r.Context())
	rep, ok := s.deps.Maintenance.RunOnce(ctx)
	if !ok {
		writeJSON(w, http.StatusOK, runResponse{Success: true, Skipped: true, Message: errs.Msg(errs.RunSkipped)})
		return
	}
	msg := "maintenance completed"
	if n := rep.Failed(); n > 0 {
		msg = fmt.Sprintf("maintenance completed with %d failed task(s)", n)
	}
	writeJSON(w, http.StatusOK, runResponse{Success: true, Message: msg, Stats: &rep})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	rep, ok := s.deps.Maintenance.LastReport()
	running := s.deps.Maintenance.Running()
	if !ok {
		writeJSON(w, http.StatusNotFound, runResponse{Success: false, Running: running, Message: "no maintenance run yet"})
		return
	}
	writeJSON(w, http.StatusOK, runResponse{Success: true, Running: running, Message: "last maintenance run", Stats: &rep})
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	force := false
	if v := q.Get("forceRefresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "forceRefresh must be a boolean")
			return
		}
		force = b
	}

	override := strings.TrimSpace(q.Get("overrideUrl"))
	if override != "" {
		u, err := url.Parse(override)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			writeError(w, http.StatusBadRequest, "overrideUrl must be an absolute http(s) URL")
			return
		}
	}

	rec := s.deps.Resolver.Resolve(r.Context(), force, override)

	h := w.Header()
	h.Set("Content-Type", "application/java-archive")
	h.Set("Content-Length", strconv.Itoa(rec.Size))
	h.Set("X-Artifact-Source", string(rec.Tier))
	h.Set("X-Artifact-Size", strconv.Itoa(rec.Size))
	h.Set("X-Artifact-Cache-Hit", strconv.FormatBool(rec.Cached))
	h.Set("X-Artifact-Success", strconv.FormatBool(rec.Success))
	h.Set("X-Artifact-Checksum", rec.Checksum)
	h.Set("Last-Modified", rec.ResolvedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(rec.Bytes); err != nil {
		logger.Debug("http: artifact write aborted: %v", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	target := strings.TrimSpace(r.URL.Query().Get("url"))
	if target == "" {
		writeError(w, http.StatusBadRequest, "url query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Prober.Probe(r.Context(), target))
}

type unsupportedBody struct {
	Supported bool   `json:"supported"`
	Message   string `json:"message"`
}

func (s *Server) cacheUnsupported(w http.ResponseWriter) bool {
	if s.deps.Cache != nil && s.deps.Cache.Supported() {
		return false
	}
	writeJSON(w, http.StatusNotImplemented, unsupportedBody{
		Supported: false,
		Message:   "cache backend does not support range/size queries",
	})
	return true
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.cacheUnsupported(w) {
		return
	}
	st, err := s.deps.Cache.Stats(r.Context())
	if err != nil {
		s.internal(w, "cache stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type cleanupResponse struct {
	cachestore.Stats
	Success bool   `json:"success"`
	Skipped bool   `json:"skipped,omitempty"`
	Message string `json:"message,omitempty"`
	Removed int    `json:"removed"`
	Evicted int    `json:"evicted"`
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, r *http.Request) {
	if s.cacheUnsupported(w) {
		return
	}
	ctx := context.WithoutCancel(r.Context())

	var resp cleanupResponse
	ok, err := s.deps.Maintenance.Exclusive(func() error {
		var err error
		if resp.Removed, err = s.deps.Cache.CleanupExpired(ctx); err != nil {
			return err
		}
		resp.Evicted, err = s.deps.Cache.ValidateSize(ctx)
		return err
	})
	if !ok {
		writeJSON(w, http.StatusOK, cleanupResponse{Success: true, Skipped: true, Message: errs.Msg(errs.RunSkipped)})
		return
	}
	if err != nil {
		s.internal(w, "cache cleanup", err)
		return
	}
	if resp.Stats, err = s.deps.Cache.Stats(ctx); err != nil {
		s.internal(w, "cache stats", err)
		return
	}
	resp.Success = true
	writeJSON(w, http.StatusOK, resp)
}

type channelsResponse struct {
	Source      string             `json:"source,omitempty"`
	EPGURL      string             `json:"epgUrl,omitempty"`
	RefreshedAt *time.Time         `json:"refreshedAt,omitempty"`
	Count       int                `json:"count"`
	Channels    []channels.Channel `json:"channels"`
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if s.deps.Channels == nil {
		writeJSON(w, http.StatusNotImplemented, unsupportedBody{Supported: false, Message: "live-channel store not configured"})
		return
	}
	list, err := s.deps.Channels.List(r.Context())
	if err != nil {
		s.internal(w, "list channels", err)
		return
	}
	resp := channelsResponse{Count: len(list), Channels: list}
	lr, ok, err := s.deps.Channels.LastRefresh(r.Context())
	if err != nil {
		s.internal(w, "last channel refresh", err)
		return
	}
	if ok {
		resp.Source = lr.Source
		resp.EPGURL = lr.EPGURL
		resp.RefreshedAt = &lr.RefreshedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) internal(w http.ResponseWriter, op string, err error) {
	logger.LogError("http: %s: %v", op, err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
