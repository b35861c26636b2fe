package sloghooks

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func newBufLogger() (*slog.Logger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestURLsAreRedacted(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{})
	h.DownloadFailed("https://x.io/a.png?token=secret", errors.New("boom"))

	out := buf.String()
	if strings.Contains(out, "secret") || !strings.Contains(out, "imagecache.download_failed") {
		t.Fatalf("log line = %q", out)
	}
}

func TestCustomRedactor(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{Redact: func(string) string { return "R" }})
	h.Evicted("/cache/x.png", 10)
	if !strings.Contains(buf.String(), "path=R") {
		t.Fatalf("log line = %q", buf.String())
	}
}

func TestSampling(t *testing.T) {
	l, buf := newBufLogger()
	h := New(l, Options{SelfHealEvery: 3})
	for i := 0; i < 9; i++ {
		h.RecordSelfHeal("/p", "corrupt")
	}
	if n := strings.Count(buf.String(), "imagecache.record_self_heal"); n != 3 {
		t.Fatalf("logged %d of 9, want 3", n)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	h := New(nil, Options{})
	h.GenBumpError("/p", errors.New("x"))
	h.StaleCallback("id", "load")
}
