package logr

import (
	"errors"
	"testing"

	"github.com/go-logr/logr"

	"github.com/unkn0wn-root/imagecache"
)

type line struct {
	level int
	err   error
	msg   string
	kv    []any
}

// sink records calls; it enables every verbosity.
type sink struct{ lines *[]line }

func (s sink) Init(logr.RuntimeInfo)  {}
func (s sink) Enabled(level int) bool { return true }
func (s sink) Info(level int, msg string, kv ...any) {
	*s.lines = append(*s.lines, line{level: level, msg: msg, kv: kv})
}
func (s sink) Error(err error, msg string, kv ...any) {
	*s.lines = append(*s.lines, line{level: -1, err: err, msg: msg, kv: kv})
}
func (s sink) WithValues(...any) logr.LogSink { return s }
func (s sink) WithName(string) logr.LogSink   { return s }

func TestLevelsMapOntoLogr(t *testing.T) {
	var lines []line
	l := Logger{L: logr.New(sink{lines: &lines})}

	boom := errors.New("boom")
	l.Debug("d", nil)
	l.Info("i", imagecache.Fields{"k": 1})
	l.Warn("w", nil)
	l.Error("e", imagecache.Fields{"err": boom, "path": "/p"})

	if len(lines) != 4 {
		t.Fatalf("got %d lines", len(lines))
	}
	if lines[0].level != 1 || lines[1].level != 0 {
		t.Fatalf("debug/info levels = %d/%d", lines[0].level, lines[1].level)
	}
	if len(lines[2].kv) != 2 || lines[2].kv[1] != "warn" {
		t.Fatalf("warn kv = %v", lines[2].kv)
	}
	if lines[3].err != boom || len(lines[3].kv) != 2 || lines[3].kv[0] != "path" {
		t.Fatalf("error line = %+v", lines[3])
	}
}
