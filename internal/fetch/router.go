// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"strings"

	"coqpkg/pkg/engine"
)

// Router dispatches on the URI scheme. URIs without a scheme, and
// schemes with no registered fetcher, go to Default.
type Router struct {
	Default engine.Fetcher
	schemes map[string]engine.Fetcher
}

// NewRouter returns a router serving files, http and https. Register adds
// further schemes such as s3.
func NewRouter() *Router {
	h := &HTTP{}
	r := &Router{Default: NewFile()}
	r.Register("file", r.Default)
	r.Register("http", h)
	r.Register("https", h)
	return r
}

// Register binds scheme to f.
func (r *Router) Register(scheme string, f engine.Fetcher) {
	if r.schemes == nil {
		r.schemes = make(map[string]engine.Fetcher)
	}
	r.schemes[strings.ToLower(scheme)] = f
}

// Fetch implements engine.Fetcher.
func (r *Router) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if f, ok := r.schemes[scheme(uri)]; ok {
		return f.Fetch(ctx, uri)
	}
	if r.Default == nil {
		return nil, fmt.Errorf("fetch %s: no fetcher for scheme", uri)
	}
	return r.Default.Fetch(ctx, uri)
}

// scheme returns the lowercased URI scheme, or "" for plain paths.
// Single-letter schemes are Windows drive letters.
func scheme(uri string) string {
	s, _, ok := strings.Cut(uri, "://")
	if !ok {
		if rest, found := strings.CutPrefix(uri, "file:"); found && rest != "" {
			return "file"
		}
		return ""
	}
	if len(s) < 2 || strings.ContainsAny(s, "/\\") {
		return ""
	}
	return strings.ToLower(s)
}
