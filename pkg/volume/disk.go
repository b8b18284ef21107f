// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Disk is a Volume backed by the native filesystem. Paths are interpreted
// relative to Root; an empty Root uses paths as given.
type Disk struct {
	Root string
}

// NewDisk returns a disk volume rooted at root.
func NewDisk(root string) *Disk {
	return &Disk{Root: root}
}

func (d *Disk) resolve(name string) string {
	name = filepath.FromSlash(name)
	if d.Root == "" {
		return name
	}
	return filepath.Join(d.Root, name)
}

// ReadDir implements Volume.
func (d *Disk) ReadDir(name string) ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(d.resolve(name))
	if err != nil {
		return nil, Wrap("readdir", name, err)
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return entries, nil
}

// ReadFile implements Volume.
func (d *Disk) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(d.resolve(name))
	if err != nil {
		return nil, Wrap("read", name, err)
	}
	return data, nil
}

// WriteFile implements Volume. The file is written to a temporary sibling
// and renamed into place so readers never observe a partial file.
func (d *Disk) WriteFile(name string, data []byte) (err error) {
	target := d.resolve(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Wrap("mkdir", name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return Wrap("write", name, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name()) // Best-effort cleanup
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return Wrap("write", name, err)
	}
	if err = tmp.Close(); err != nil {
		return Wrap("write", name, err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return Wrap("write", name, err)
	}
	if err = os.Rename(tmp.Name(), target); err != nil {
		return Wrap("write", name, fmt.Errorf("rename into place: %w", err))
	}
	return nil
}

// Stat implements Volume.
func (d *Disk) Stat(name string) (fs.FileInfo, error) {
	info, err := os.Stat(d.resolve(name))
	if err != nil {
		return nil, Wrap("stat", name, err)
	}
	return info, nil
}
