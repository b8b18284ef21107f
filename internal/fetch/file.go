// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"net/url"
	"strings"

	"coqpkg/pkg/volume"
)

// File reads URIs from a volume. Bare paths and file:// URIs are accepted.
type File struct {
	Volume volume.Volume
}

// NewFile returns a fetcher over the native filesystem.
func NewFile() *File {
	return &File{Volume: volume.NewDisk("")}
}

// Fetch implements engine.Fetcher.
func (f *File) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.Volume.ReadFile(filePath(uri))
}

func filePath(uri string) string {
	if !strings.HasPrefix(uri, "file:") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return strings.TrimPrefix(strings.TrimPrefix(uri, "file:"), "//")
	}
	return u.Path
}
