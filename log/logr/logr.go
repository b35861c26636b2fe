// Package logr adapts a logr.Logger to imagecache.Logger.
//
// logr has no warn level: Warn logs at V(0) with a "level" field, and Debug
// logs at V(1).
package logr

import (
	"github.com/go-logr/logr"

	"github.com/unkn0wn-root/imagecache"
)

var _ imagecache.Logger = Logger{}

type Logger struct{ L logr.Logger }

func (l Logger) Debug(msg string, f imagecache.Fields) { l.L.V(1).Info(msg, kv(f)...) }
func (l Logger) Info(msg string, f imagecache.Fields)  { l.L.Info(msg, kv(f)...) }
func (l Logger) Warn(msg string, f imagecache.Fields) {
	l.L.Info(msg, append(kv(f), "level", "warn")...)
}

// Error lifts an "err" field into logr's error argument.
func (l Logger) Error(msg string, f imagecache.Fields) {
	var err error
	if e, ok := f["err"].(error); ok {
		err = e
		rest := make(imagecache.Fields, len(f))
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		f = rest
	}
	l.L.Error(err, msg, kv(f)...)
}

func kv(f imagecache.Fields) []any {
	if len(f) == 0 {
		return nil
	}
	out := make([]any, 0, 2*len(f))
	for k, v := range f {
		out = append(out, k, v)
	}
	return out
}
