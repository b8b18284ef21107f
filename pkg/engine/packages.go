// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/volume"
)

type (
	// Fetcher retrieves the bytes behind a URI.
	Fetcher interface {
		Fetch(ctx context.Context, uri string) ([]byte, error)
	}

	// PackageDirectory installs package archives into a library directory
	// on behalf of the engine, reporting through engine messages: one
	// LibProgress or LibError per URI, then a single LoadedPkg.
	PackageDirectory struct {
		// Volume receives the extracted files.
		Volume volume.Volume
		// Dir is the library directory inside Volume.
		Dir string
		// BinDir resolves bundled "+NAME" URIs to BINDIR/coq/NAME.coq-pkg.
		BinDir string
		// Fetcher downloads archives.
		Fetcher Fetcher
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}
)

// ResolveURI expands a bundled package reference.
func (d *PackageDirectory) ResolveURI(uri string) string {
	if name, ok := strings.CutPrefix(uri, "+"); ok {
		return path.Join(d.BinDir, "coq", name+coqpkg.ArchiveExt)
	}
	return uri
}

// LoadPackages fetches and extracts each URI in order. Failures are
// reported as LibError and do not stop the remaining URIs.
func (d *PackageDirectory) LoadPackages(ctx context.Context, uris []string, emit func(Message)) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, uri := range uris {
		n, err := d.install(ctx, uri)
		if err != nil {
			logger.Warn("package install failed", "uri", uri, "error", err)
			emit(LibError{URI: uri, Msg: err.Error()})
			continue
		}
		logger.Debug("package installed", "uri", uri, "files", n)
		emit(LibProgress{URI: uri, Done: true})
	}
	emit(LoadedPkg{URIs: uris})
}

func (d *PackageDirectory) install(ctx context.Context, uri string) (int, error) {
	data, err := d.Fetcher.Fetch(ctx, d.ResolveURI(uri))
	if err != nil {
		return 0, err
	}
	archive, err := volume.OpenArchive(data)
	if err != nil {
		return 0, err
	}
	return volume.Extract(ctx, archive, d.Volume, volume.ExtractOptions{
		Dir:  d.Dir,
		Skip: func(name string) bool { return name == coqpkg.ManifestEntry },
	})
}
