// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// ErrIO is the sentinel wrapped by every IOError.
var ErrIO = errors.New("volume I/O error")

// ErrReadOnly is returned by write operations on read-only volumes.
var ErrReadOnly = errors.New("read-only volume")

type (
	// Volume is a hierarchical byte-oriented store.
	Volume interface {
		// ReadDir lists the entries of a directory, sorted by name.
		ReadDir(name string) ([]fs.DirEntry, error)
		// ReadFile returns the full contents of a file.
		ReadFile(name string) ([]byte, error)
		// WriteFile creates or replaces a file, creating parent directories
		// as needed.
		WriteFile(name string, data []byte) error
		// Stat describes a file or directory.
		Stat(name string) (fs.FileInfo, error)
	}

	// IOError reports a failed volume operation. It wraps ErrIO for errors.Is().
	IOError struct {
		Op   string
		Path string
		Err  error
	}
)

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns both the sentinel and the underlying cause.
func (e *IOError) Unwrap() []error {
	return []error{ErrIO, e.Err}
}

// Wrap converts err into an *IOError unless it already is one.
func Wrap(op, name string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return err
	}
	return &IOError{Op: op, Path: name, Err: err}
}

// IsDir reports whether name exists in v and is a directory.
func IsDir(v Volume, name string) bool {
	info, err := v.Stat(name)
	return err == nil && info.IsDir()
}

// Exists reports whether name exists in v.
func Exists(v Volume, name string) bool {
	_, err := v.Stat(name)
	return err == nil
}

// Clean normalizes a volume path: forward slashes, no trailing slash, and
// "." for the root.
func Clean(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if name == "" || name == "/" {
		return "."
	}
	abs := strings.HasPrefix(name, "/")
	name = path.Clean(strings.TrimPrefix(name, "/"))
	if abs && name != "." {
		return "/" + name
	}
	return name
}

// Join joins path elements with forward slashes.
func Join(elem ...string) string {
	return path.Join(elem...)
}

// Base returns the last element of name.
func Base(name string) string {
	return path.Base(Clean(name))
}

// Dir returns all but the last element of name.
func Dir(name string) string {
	return path.Dir(Clean(name))
}
