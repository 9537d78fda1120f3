// Package pathmap translates between on-disk paths and the file URLs used by
// the remote debugging protocol.
package pathmap

import (
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// Resolver maps paths below a root directory to protocol URLs and back.
// It is stateless beyond the configured root.
type Resolver struct {
	root string
}

// New creates a Resolver rooted at dir. The root is normalized to an
// absolute path so RewriteSource comparisons are stable.
func New(dir string) *Resolver {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	return &Resolver{root: filepath.Clean(abs)}
}

// Root returns the configured root directory.
func (r *Resolver) Root() string { return r.root }

// URLToPath converts a file URL to an absolute on-disk path. Returns ""
// when the URL is not a file URL or cannot be parsed.
func (r *Resolver) URLToPath(u string) string {
	parsed, err := url.Parse(u)
	if err != nil || parsed.Scheme != "file" {
		return ""
	}
	p := parsed.Path
	if p == "" {
		return ""
	}
	if runtime.GOOS == "windows" {
		// file:///C:/dir/app.js carries a leading slash before the drive
		p = strings.TrimPrefix(p, "/")
		p = filepath.FromSlash(p)
	}
	return filepath.Clean(p)
}

// PathToURL converts an absolute path to a file URL, normalizing the path
// first. Returns "" for empty input.
func (r *Resolver) PathToURL(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	abs = filepath.Clean(abs)
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	if runtime.GOOS == "windows" && !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return u.String()
}

// RewriteSource treats a non-URL string under the root directory as a bare
// path needing conversion to a file URL. Anything else passes through
// unchanged.
func (r *Resolver) RewriteSource(s string) string {
	if s == "" || strings.Contains(s, "://") {
		return s
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return s
	}
	abs = filepath.Clean(abs)
	rel, err := filepath.Rel(r.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return s
	}
	return r.PathToURL(abs)
}

// VerifyContent reports whether resolved sources must be checked against a
// delivered content hash. The runtime executes files directly off disk, so
// no double-check is needed.
func (r *Resolver) VerifyContent() bool { return false }
