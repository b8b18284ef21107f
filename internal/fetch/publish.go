// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"coqpkg/pkg/project"
	"coqpkg/pkg/volume"
)

type (
	// Store accepts uploaded objects.
	Store interface {
		Put(ctx context.Context, key string, data []byte, contentType string) error
	}

	// Publisher uploads saved packages under Prefix.
	Publisher struct {
		Store  Store
		Prefix string
		Logger *slog.Logger
	}

	// Published lists the object keys written for one package.
	Published struct {
		ArchiveKey  string
		ManifestKey string
	}
)

// Publish uploads the archive first and then the manifest so a reader
// that sees the manifest can always fetch the archive.
func (p *Publisher) Publish(ctx context.Context, vol volume.Volume, saved project.SaveResult) (Published, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := Published{
		ArchiveKey:  path.Join(p.Prefix, volume.Base(saved.ArchivePath)),
		ManifestKey: path.Join(p.Prefix, volume.Base(saved.ManifestPath)),
	}

	archive, err := vol.ReadFile(saved.ArchivePath)
	if err != nil {
		return Published{}, fmt.Errorf("publish: %w", err)
	}
	manifest, err := vol.ReadFile(saved.ManifestPath)
	if err != nil {
		return Published{}, fmt.Errorf("publish: %w", err)
	}

	if err := p.Store.Put(ctx, out.ArchiveKey, archive, "application/zip"); err != nil {
		return Published{}, err
	}
	if err := p.Store.Put(ctx, out.ManifestKey, manifest, "application/json"); err != nil {
		return Published{}, err
	}
	logger.Info("package published", "archive", out.ArchiveKey, "manifest", out.ManifestKey, "bytes", len(archive))
	return out, nil
}
