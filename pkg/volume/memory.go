// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"io/fs"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process Volume. Directories exist implicitly as parents
// of stored files and explicitly through Mkdir. A leading "/" is ignored,
// so "/lib/Foo.vo" and "lib/Foo.vo" name the same file.
//
// Memory is safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
}

// NewMemory returns an empty in-memory volume.
func NewMemory() *Memory {
	return &Memory{
		files: make(map[string][]byte),
		dirs:  map[string]bool{".": true},
	}
}

func memKey(name string) string {
	return strings.TrimPrefix(Clean(name), "/")
}

// Mkdir creates a directory and its parents.
func (m *Memory) Mkdir(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirLocked(memKey(name))
}

func (m *Memory) mkdirLocked(key string) {
	for key != "." && key != "" && !m.dirs[key] {
		m.dirs[key] = true
		key = Dir(key)
	}
}

// ReadDir implements Volume.
func (m *Memory) ReadDir(name string) ([]fs.DirEntry, error) {
	key := memKey(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.dirs[key] {
		if _, ok := m.files[key]; ok {
			return nil, &IOError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
		}
		return nil, &IOError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}

	var entries []fs.DirEntry
	for d := range m.dirs {
		if d != "." && Dir(d) == key {
			entries = append(entries, &entryInfo{name: Base(d), dir: true})
		}
	}
	for f, data := range m.files {
		if Dir(f) == key {
			entries = append(entries, &entryInfo{name: Base(f), size: int64(len(data))})
		}
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return entries, nil
}

// ReadFile implements Volume. The returned slice is a copy.
func (m *Memory) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[memKey(name)]
	if !ok {
		return nil, &IOError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return slices.Clone(data), nil
}

// WriteFile implements Volume.
func (m *Memory) WriteFile(name string, data []byte) error {
	key := memKey(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[key] {
		return &IOError{Op: "write", Path: name, Err: fs.ErrExist}
	}
	m.mkdirLocked(Dir(key))
	m.files[key] = slices.Clone(data)
	return nil
}

// Stat implements Volume.
func (m *Memory) Stat(name string) (fs.FileInfo, error) {
	key := memKey(name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dirs[key] {
		return &entryInfo{name: Base(key), dir: true}, nil
	}
	if data, ok := m.files[key]; ok {
		return &entryInfo{name: Base(key), size: int64(len(data))}, nil
	}
	return nil, &IOError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// Files returns the paths of all stored files, sorted.
func (m *Memory) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for f := range m.files {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}
