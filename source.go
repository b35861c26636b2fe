package imagecache

import "maps"

// DefaultDirName is the cache namespace used when Props.DirName is empty.
const DefaultDirName = "image-cache"

// Source identifies the logical resource to display. Compare sources with
// Manager.Equal, not ==: equivalence may depend on a normalized URL or headers.
type Source struct {
	URI     string            `json:"uri" msgpack:"uri"`
	Method  string            `json:"method,omitempty" msgpack:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty" msgpack:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty" msgpack:"body,omitempty"`
}

// Clone returns a copy that shares no maps or slices with s.
func (s Source) Clone() Source {
	out := s
	if s.Headers != nil {
		out.Headers = maps.Clone(s.Headers)
	}
	if s.Body != nil {
		out.Body = append([]byte(nil), s.Body...)
	}
	return out
}

// File describes a finished download. Path is always set.
type File struct {
	Path        string
	URL         string
	Size        int64
	ContentType string
	StatusCode  int
}

// State is the display state of a View.
type State struct {
	Ready    bool    // manager finished startup; set once, never cleared
	Loading  bool    // a download for the current source is in flight
	Resolved *Source // last successfully resolved reference; replaced, never merged
}
