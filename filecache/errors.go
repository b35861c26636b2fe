package filecache

import (
	"errors"
	"fmt"
)

var (
	ErrRootRequired   = errors.New("filecache: root directory is required")
	ErrInvalidRatio   = errors.New("filecache: clearing ratio must be in (0, 1]")
	ErrInvalidMaxSize = errors.New("filecache: max size must be positive")
	ErrUnknownCodec   = errors.New("filecache: unknown record codec")
	ErrOutsideRoot    = errors.New("filecache: path is outside the cache root")
)

// RemoveError reports a partially failed removal. The entry is dropped from
// the index regardless; RecordErr and FileErr say what was left behind.
type RemoveError struct {
	Path      string
	RecordErr error
	FileErr   error
}

func (e *RemoveError) Error() string {
	switch {
	case e.RecordErr != nil && e.FileErr != nil:
		return fmt.Sprintf("remove %s: record: %v; file: %v", e.Path, e.RecordErr, e.FileErr)
	case e.RecordErr != nil:
		return fmt.Sprintf("remove %s: record: %v", e.Path, e.RecordErr)
	default:
		return fmt.Sprintf("remove %s: file: %v", e.Path, e.FileErr)
	}
}

func (e *RemoveError) Unwrap() []error {
	var out []error
	if e.RecordErr != nil {
		out = append(out, e.RecordErr)
	}
	if e.FileErr != nil {
		out = append(out, e.FileErr)
	}
	return out
}
