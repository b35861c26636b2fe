// Package sloghooks reports imagecache hook events through log/slog.
// URLs and paths are redacted by default; they may carry tokens or user data.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/imagecache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	StaleEvery    uint64
	StartedEvery  uint64
	SelfHealEvery uint64
	// Optional redactor for URLs and paths. Defaults to a SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	staleCtr    atomic.Uint64
	startedCtr  atomic.Uint64
	selfHealCtr atomic.Uint64
}

var _ imagecache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(s string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(s)
	}
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) StaleCallback(id imagecache.Identity, event string) {
	if h.l == nil || !sample(h.opts.StaleEvery, &h.staleCtr) {
		return
	}
	h.l.Debug("imagecache.stale_callback",
		"id", id.String(),
		"event", event)
}

func (h *Hooks) RemovalWait(id imagecache.Identity, path string) {
	if h.l == nil {
		return
	}
	h.l.Debug("imagecache.removal_wait",
		"id", id.String(),
		"path", h.redact(path))
}

func (h *Hooks) DownloadStarted(url, path string) {
	if h.l == nil || !sample(h.opts.StartedEvery, &h.startedCtr) {
		return
	}
	h.l.Debug("imagecache.download_started",
		"url", h.redact(url),
		"path", h.redact(path))
}

func (h *Hooks) DownloadFailed(url string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("imagecache.download_failed",
		"url", h.redact(url),
		"err", err)
}

func (h *Hooks) DownloadCanceled(url string) {
	if h.l == nil {
		return
	}
	h.l.Info("imagecache.download_canceled",
		"url", h.redact(url))
}

func (h *Hooks) DownloadDiscarded(path, reason string) {
	if h.l == nil {
		return
	}
	h.l.Info("imagecache.download_discarded",
		"path", h.redact(path),
		"reason", reason)
}

func (h *Hooks) RecordSelfHeal(path, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("imagecache.record_self_heal",
		"path", h.redact(path),
		"reason", reason)
}

func (h *Hooks) Evicted(path string, size int64) {
	if h.l == nil {
		return
	}
	h.l.Debug("imagecache.evicted",
		"path", h.redact(path),
		"size", size)
}

func (h *Hooks) GenBumpError(path string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("imagecache.gen_bump_error",
		"path", h.redact(path),
		"err", err)
}
