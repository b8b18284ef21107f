// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"io/fs"
	"time"
)

// entryInfo is the fs.FileInfo / fs.DirEntry shared by the in-memory and
// archive backends.
type entryInfo struct {
	name    string
	size    int64
	dir     bool
	modTime time.Time
}

func (e *entryInfo) Name() string { return e.name }
func (e *entryInfo) Size() int64  { return e.size }

func (e *entryInfo) Mode() fs.FileMode {
	if e.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

func (e *entryInfo) ModTime() time.Time         { return e.modTime }
func (e *entryInfo) IsDir() bool                { return e.dir }
func (e *entryInfo) Sys() any                   { return nil }
func (e *entryInfo) Type() fs.FileMode          { return e.Mode().Type() }
func (e *entryInfo) Info() (fs.FileInfo, error) { return e, nil }
