// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Archive is a read-only Volume over a zip container. Entry paths are
// addressed exactly like Memory paths; directories are implied by entry
// names. Content is decompressed on every read and never cached.
type Archive struct {
	reader *zip.Reader
	files  map[string]*zip.File
	dirs   map[string]bool
	order  []string
}

// OpenArchive opens an archive held in memory.
func OpenArchive(data []byte) (*Archive, error) {
	return NewArchive(bytes.NewReader(data), int64(len(data)))
}

// OpenArchiveFile reads an archive from the native filesystem.
func OpenArchiveFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Wrap("open archive", path, err)
	}
	a, err := OpenArchive(data)
	if err != nil {
		return nil, Wrap("open archive", path, err)
	}
	return a, nil
}

// NewArchive opens an archive from a random-access reader.
func NewArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &IOError{Op: "open archive", Path: "", Err: err}
	}
	a := &Archive{
		reader: zr,
		files:  make(map[string]*zip.File, len(zr.File)),
		dirs:   map[string]bool{".": true},
	}
	for _, f := range zr.File {
		key := memKey(f.Name)
		if strings.HasSuffix(f.Name, "/") {
			a.addDir(key)
			continue
		}
		if strings.HasPrefix(key, "../") || key == ".." {
			return nil, &IOError{Op: "open archive", Path: f.Name, Err: fmt.Errorf("entry escapes archive root")}
		}
		a.files[key] = f
		a.order = append(a.order, key)
		a.addDir(Dir(key))
	}
	return a, nil
}

func (a *Archive) addDir(key string) {
	for key != "." && key != "" && !a.dirs[key] {
		a.dirs[key] = true
		key = Dir(key)
	}
}

// Files returns the archive's file entries in container order.
func (a *Archive) Files() []string {
	return slices.Clone(a.order)
}

// ReadDir implements Volume.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	key := memKey(name)
	if !a.dirs[key] {
		return nil, &IOError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	var entries []fs.DirEntry
	for d := range a.dirs {
		if d != "." && Dir(d) == key {
			entries = append(entries, &entryInfo{name: Base(d), dir: true})
		}
	}
	for _, f := range a.order {
		if Dir(f) == key {
			zf := a.files[f]
			entries = append(entries, &entryInfo{name: Base(f), size: int64(zf.UncompressedSize64), modTime: zf.Modified})
		}
	}
	slices.SortFunc(entries, func(x, y fs.DirEntry) int { return strings.Compare(x.Name(), y.Name()) })
	return entries, nil
}

// ReadFile implements Volume. A corrupt entry is reported as an IOError.
func (a *Archive) ReadFile(name string) (data []byte, err error) {
	f, ok := a.files[memKey(name)]
	if !ok {
		return nil, &IOError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &IOError{Op: "read", Path: name, Err: err}
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil && err == nil {
			err = &IOError{Op: "read", Path: name, Err: closeErr}
		}
	}()
	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, &IOError{Op: "read", Path: name, Err: err}
	}
	return data, nil
}

// WriteFile always fails: archives are immutable once built.
func (a *Archive) WriteFile(name string, _ []byte) error {
	return &IOError{Op: "write", Path: name, Err: ErrReadOnly}
}

// Stat implements Volume.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	key := memKey(name)
	if a.dirs[key] {
		return &entryInfo{name: Base(key), dir: true}, nil
	}
	if f, ok := a.files[key]; ok {
		return &entryInfo{name: Base(key), size: int64(f.UncompressedSize64), modTime: f.Modified}, nil
	}
	return nil, &IOError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}
