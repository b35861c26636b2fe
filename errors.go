package imagecache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by a manager asked to download before startup finished.
	ErrNotReady = errors.New("imagecache: cache manager not ready")
	// ErrClosed is returned by a manager after Close.
	ErrClosed = errors.New("imagecache: cache manager closed")
	// ErrNotRemote is returned when a download is requested for a non-remote URI.
	ErrNotRemote = errors.New("imagecache: uri is not an internet url")
	// ErrEntryRemoved reports a download whose entry was removed before it finished.
	ErrEntryRemoved = errors.New("imagecache: entry removed during download")
)

// DownloadError wraps a transport or IO failure while fetching URL into Path.
type DownloadError struct {
	URL  string
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("download %s -> %s: %v", e.URL, e.Path, e.Err)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// StatusError is returned when the remote answered with a failing HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: unexpected status %d", e.URL, e.StatusCode)
}
