package filecache

import (
	"bytes"
	"maps"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/unkn0wn-root/imagecache"
	"github.com/unkn0wn-root/imagecache/internal/util"
)

// IsInternetURL reports whether uri is an http(s) URL with a host.
func (c *Cache) IsInternetURL(uri string) bool {
	return isInternetURL(uri)
}

func isInternetURL(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return true
	}
	return false
}

// Path returns the entry path of uri in namespace dirName (DefaultDirName
// when empty). The namespace is escaped by util.NamespaceDir, so it stays
// under the root and never lands in .tmp, .locks or the root itself.
func (c *Cache) Path(uri, dirName string) string {
	dir := filepath.FromSlash(util.NamespaceDir(util.Coalesce(dirName, imagecache.DefaultDirName)))
	return filepath.Join(c.root, dir, util.EntryName(uri))
}

// Source returns a file:// reference to path.
func (c *Cache) Source(path string) imagecache.Source {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return imagecache.Source{URI: u.String()}
}

// Exists reports whether the entry of a URL (default namespace) or an entry
// path is present. A hit counts as an access. Files written by another
// process sharing the root are adopted into the index.
func (c *Cache) Exists(uriOrPath string) bool {
	p := uriOrPath
	if isInternetURL(p) {
		p = c.Path(p, "")
	}

	now := time.Now()
	c.mu.Lock()
	_, removing := c.removing[p]
	e, ok := c.entries[p]
	if ok && !removing {
		e.accessed = now
		e.touched = true
	}
	c.mu.Unlock()

	if removing {
		return false
	}
	if ok {
		if fileExists(p) {
			return true
		}
		c.forget(p)
		c.log.Debug("indexed entry vanished from disk", imagecache.Fields{"path": p})
		return false
	}
	_, adopted := c.adopt(p)
	return adopted
}

// adopt indexes a file found on disk but not in the index.
func (c *Cache) adopt(path string) (*entry, bool) {
	if !c.within(path) {
		return nil, false
	}
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return nil, false
	}
	e := &entry{size: fi.Size(), created: fi.ModTime(), accessed: time.Now(), touched: true}
	if r, ok := c.readRecord(c.ctx, path); ok {
		e.url, e.contentType = r.URL, r.ContentType
		e.created = util.Coalesce(fromMs(r.CreatedMs), e.created)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, removing := c.removing[path]; removing {
		return nil, false
	}
	if cur, ok := c.entries[path]; ok {
		return cur, true
	}
	c.entries[path] = e
	c.total += e.size
	return e, true
}

// forget drops path from the index without touching disk.
func (c *Cache) forget(path string) {
	c.mu.Lock()
	if e, ok := c.entries[path]; ok {
		c.total -= e.size
		delete(c.entries, path)
	}
	c.mu.Unlock()
}

// within reports whether path is an entry location: inside the root and
// outside the reserved directories.
func (c *Cache) within(path string) bool {
	rel, err := filepath.Rel(c.root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	first := strings.SplitN(filepath.ToSlash(rel), "/", 2)[0]
	return first != tmpDirName && first != locksDirName && strings.Contains(rel, string(filepath.Separator))
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Equal compares sources by normalized URL, method (default GET), canonical
// headers and body. The namespace is not part of a source.
func (c *Cache) Equal(a, b imagecache.Source) bool {
	if normalizeURL(a.URI) != normalizeURL(b.URI) {
		return false
	}
	if normalizeMethod(a.Method) != normalizeMethod(b.Method) {
		return false
	}
	if !maps.Equal(canonicalHeaders(a.Headers), canonicalHeaders(b.Headers)) {
		return false
	}
	return bytes.Equal(a.Body, b.Body)
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host, port := u.Hostname(), u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	host = strings.ToLower(host)
	if port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment, u.RawFragment = "", ""
	return u.String()
}

func normalizeMethod(m string) string {
	if m == "" {
		return http.MethodGet
	}
	return strings.ToUpper(m)
}

func canonicalHeaders(h map[string]string) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[http.CanonicalHeaderKey(k)] = strings.TrimSpace(v)
	}
	return out
}
