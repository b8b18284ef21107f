// SPDX-License-Identifier: MPL-2.0

package coqpkg

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"

	"coqpkg/pkg/volume"
)

// Epoch is the modification time stamped on every archive entry.
var Epoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type (
	// ArchiveWriter writes a package archive. Entries are stored in the
	// order they are added, each with the same timestamp and mode, so the
	// output depends only on entry names, contents, and order.
	ArchiveWriter struct {
		zw    *zip.Writer
		names map[string]bool
	}

	// Package is an opened package archive.
	Package struct {
		// Manifest is the embedded manifest, or nil when the archive has none.
		Manifest *Manifest
		// Volume gives read-only access to the archive's entries.
		Volume *volume.Archive
	}
)

// NewArchiveWriter returns a writer emitting to w. Close must be called to
// flush the central directory.
func NewArchiveWriter(w io.Writer) *ArchiveWriter {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})
	return &ArchiveWriter{zw: zw, names: make(map[string]bool)}
}

// Add stores one entry. Names are slash-separated and relative; adding
// the same name twice is an error.
func (a *ArchiveWriter) Add(name string, data []byte) error {
	name = volume.Clean(name)
	if name == "." || name[0] == '/' {
		return fmt.Errorf("archive entry %q: name must be relative", name)
	}
	if a.names[name] {
		return fmt.Errorf("archive entry %q: duplicate", name)
	}
	a.names[name] = true

	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: Epoch,
	}
	hdr.SetMode(0o644)
	w, err := a.zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("archive entry %q: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("archive entry %q: %w", name, err)
	}
	return nil
}

// AddManifest stores m as the embedded manifest entry.
func (a *ArchiveWriter) AddManifest(m *Manifest) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	return a.Add(ManifestEntry, data)
}

// Close finishes the archive. It does not close the underlying writer.
func (a *ArchiveWriter) Close() error {
	return a.zw.Close()
}

// OpenArchive opens archive bytes and reads the embedded manifest if
// present. Undecodable containers and manifests yield a *volume.IOError.
func OpenArchive(data []byte) (*Package, error) {
	vol, err := volume.OpenArchive(data)
	if err != nil {
		return nil, err
	}
	m, err := ReadManifest(vol)
	if err != nil {
		return nil, err
	}
	return &Package{Manifest: m, Volume: vol}, nil
}

// ReadManifest loads the embedded manifest from vol. It returns nil, nil
// when vol holds no manifest entry.
func ReadManifest(vol volume.Volume) (*Manifest, error) {
	data, err := vol.ReadFile(ManifestEntry)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, volume.Wrap("read manifest", ManifestEntry, err)
	}
	m, err := Decode(data)
	if err != nil {
		return nil, &volume.IOError{Op: "read manifest", Path: ManifestEntry, Err: err}
	}
	return m, nil
}
