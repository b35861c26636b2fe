package imagecache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking: the View calls them from its
// event loop and the cache manager from download goroutines.
type Hooks interface {
	// A manager callback arrived for a superseded attempt or after unmount and
	// was dropped. event ∈ {"ready", "removed", "progress", "load", "error", "cancel", "load_end"}
	StaleCallback(id Identity, event string)

	// Resolution is suspended until the pending removal of path completes.
	RemovalWait(id Identity, path string)

	// A transfer for url into path started (coalesced requests do not fire).
	DownloadStarted(url, path string)

	// A transfer failed with a transport, status or IO error.
	DownloadFailed(url string, err error)

	// A transfer was canceled (CancelDownload or manager shutdown).
	DownloadCanceled(url string)

	// A finished body was thrown away. reason ∈ {"removed"}
	DownloadDiscarded(path, reason string)

	// A stored metadata record was deleted on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	RecordSelfHeal(path, reason string)

	// An unlocked entry was evicted by prune.
	Evicted(path string, size int64)

	// Generation store failed to bump the generation of path.
	GenBumpError(path string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) StaleCallback(Identity, string)   {}
func (NopHooks) RemovalWait(Identity, string)     {}
func (NopHooks) DownloadStarted(string, string)   {}
func (NopHooks) DownloadFailed(string, error)     {}
func (NopHooks) DownloadCanceled(string)          {}
func (NopHooks) DownloadDiscarded(string, string) {}
func (NopHooks) RecordSelfHeal(string, string)    {}
func (NopHooks) Evicted(string, int64)            {}
func (NopHooks) GenBumpError(string, error)       {}
