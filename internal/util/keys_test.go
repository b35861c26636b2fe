package util

import (
	"strings"
	"testing"
)

func TestEntryNameDeterministic(t *testing.T) {
	a := EntryName("https://x/img.png")
	b := EntryName("https://x/img.png")
	if a != b {
		t.Fatalf("not deterministic: %q vs %q", a, b)
	}
	if a == EntryName("https://x/img2.png") {
		t.Fatalf("distinct urls share a name")
	}
	if !strings.HasSuffix(a, ".png") || len(a) != nameHexLen+len(".png") {
		t.Fatalf("unexpected name %q", a)
	}
}

func TestEntryNameExtension(t *testing.T) {
	cases := []struct{ uri, want string }{
		{"https://x/a.JPG?size=2", ".jpg"},
		{"https://x/a.webp#frag", ".webp"},
		{"https://x/avatar", ""},
		{"https://x/a.tar.gz", ".gz"},
		{"https://x/a.verylongext", ""},
		{"https://x/a.p-g", ""},
		{"https://x/dir.d/no-ext", ""},
	}
	for _, tc := range cases {
		got := EntryName(tc.uri)[nameHexLen:]
		if got != tc.want {
			t.Fatalf("%s: ext %q want %q", tc.uri, got, tc.want)
		}
	}
}

func TestLockNameFlat(t *testing.T) {
	n := LockName("/root/cache/ns/abc.png")
	if strings.ContainsAny(n, `/\:`) || !strings.HasSuffix(n, ".lock") {
		t.Fatalf("lock name %q not flat", n)
	}
}

func TestCoalesce(t *testing.T) {
	if Coalesce("", "def") != "def" || Coalesce("v", "def") != "v" {
		t.Fatalf("string coalesce")
	}
	if Coalesce(0.0, 0.5) != 0.5 || Coalesce(int64(3), 9) != 3 {
		t.Fatalf("numeric coalesce")
	}
}

func TestNamespaceDir(t *testing.T) {
	cases := []struct{ ns, want string }{
		{"image-cache", "image-cache"},
		{"a/b", "a/b"},
		{"a//b/", "a/b"},
		{".tmp", "_.tmp"},
		{".locks", "_.locks"},
		{"_.tmp", "__.tmp"},
		{".", "_."},
		{"..", "_.."},
		{"../../etc", "_../_../etc"},
		{`a\..\b`, "a/_../b"},
		{"/", "_"},
		{"_", "__"},
	}
	for _, tc := range cases {
		if got := NamespaceDir(tc.ns); got != tc.want {
			t.Fatalf("NamespaceDir(%q) = %q want %q", tc.ns, got, tc.want)
		}
	}
}
