package util

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"path"
	"strings"
)

const nameHexLen = 32

// EntryName returns the deterministic file name of a cached URL:
// the first 32 hex chars of sha256(uri) plus the URL path's extension, if it
// looks like one (".png", ".webp", ...).
func EntryName(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])[:nameHexLen] + extension(uri)
}

func extension(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil {
		p = u.Path
	}
	ext := strings.ToLower(path.Ext(p))
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// RecordKey is the provider key holding the metadata record of an entry path.
func RecordKey(entryPath string) string {
	return "rec:" + entryPath
}

// LockName returns a flat, filesystem-safe lock file name for an entry path.
func LockName(entryPath string) string {
	sum := sha256.Sum256([]byte(entryPath))
	return hex.EncodeToString(sum[:8]) + ".lock"
}

// NamespaceDir maps a namespace to a relative directory under the cache root.
// Segments are split on '/' and '\\'; empty ones are dropped. A segment
// starting with '.' or '_' gets a '_' prefix, so no namespace can name a dot
// directory (".", "..", ".tmp", ".locks") and the mapping stays one-to-one.
// A namespace with no segments maps to "_".
func NamespaceDir(ns string) string {
	segs := strings.FieldsFunc(ns, func(r rune) bool { return r == '/' || r == '\\' })
	if len(segs) == 0 {
		return "_"
	}
	for i, s := range segs {
		if s[0] == '.' || s[0] == '_' {
			segs[i] = "_" + s
		}
	}
	return path.Join(segs...)
}
