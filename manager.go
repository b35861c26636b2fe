package imagecache

import "context"

// Manager is the cache manager the View depends on. It owns storage, locks,
// removal, eviction and downloads; the View only orchestrates.
//
// Callbacks may be invoked from any goroutine, including synchronously from
// inside the call that registers them.
type Manager interface {
	// IsReady reports whether startup (e.g. scanning persisted entries) finished.
	IsReady() bool
	// OnReady registers fn to run once the manager is ready. fn runs at most
	// once; if the manager is already ready it runs immediately.
	OnReady(fn func())

	// IsInternetURL reports whether uri must be downloaded and cached.
	IsInternetURL(uri string) bool
	// Path maps (uri, dirName) to a cache entry path. Pure.
	Path(uri, dirName string) string
	// Exists reports whether the entry for a URL or a path is present.
	Exists(uriOrPath string) bool

	// IsRemoving reports whether path is being deleted right now.
	IsRemoving(path string) bool
	// OnRemoved registers fn to run once the pending deletion of path
	// completes. If no deletion is pending, fn runs immediately with nil.
	OnRemoved(path string, fn func(err error))

	// Source returns the locally addressable reference for path.
	Source(path string) Source

	// Lock associates id with path; the last call per id wins.
	Lock(id Identity, path string)
	// Unlock drops any association held by id.
	Unlock(id Identity)

	// Download starts fetching req.URL into the cache and returns without
	// waiting. A non-nil error means the transfer could not be started and no
	// callback of req will fire. The manager may end req with OnCancel once
	// ctx is done.
	Download(ctx context.Context, req DownloadRequest) error
	// CancelDownload requests cancellation of in-flight downloads of uri.
	CancelDownload(ctx context.Context, uri string) error

	// Equal is cache-aware source equality.
	Equal(a, b Source) bool
}

// DownloadRequest describes one download and its callbacks.
//
// Per request the manager fires zero or more OnProgress, then exactly one of:
// OnLoad followed by OnLoadEnd, OnError followed by OnLoadEnd, or OnCancel.
// Nil callbacks are skipped.
type DownloadRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	DirName string

	OnProgress func(loaded, total int64)
	OnLoad     func(File)
	OnError    func(error)
	OnCancel   func()
	OnLoadEnd  func()
}
