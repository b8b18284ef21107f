// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"context"
	"fmt"
	"runtime"
)

// defaultYieldEvery is how many entries Extract writes before yielding.
const defaultYieldEvery = 16

// ExtractOptions controls Extract.
type ExtractOptions struct {
	// Dir is the destination directory inside the target volume.
	Dir string
	// YieldEvery sets how many entries are written between cooperative
	// yields. Zero uses the default of 16.
	YieldEvery int
	// Skip, when non-nil, excludes entries for which it returns true.
	Skip func(name string) bool
	// OnEntry is called after each entry is written.
	OnEntry func(name string, written, total int)
}

// Extract copies every file of src into dst under opts.Dir. Work is chunked:
// after every YieldEvery entries the goroutine yields and the context is
// checked, so a long extraction does not starve the host scheduler.
// Decompressed buffers are handed to dst and not retained.
func Extract(ctx context.Context, src *Archive, dst Volume, opts ExtractOptions) (int, error) {
	every := opts.YieldEvery
	if every <= 0 {
		every = defaultYieldEvery
	}
	files := src.Files()
	written := 0
	for i, name := range files {
		if opts.Skip != nil && opts.Skip(name) {
			continue
		}
		data, err := src.ReadFile(name)
		if err != nil {
			return written, err
		}
		target := name
		if opts.Dir != "" {
			target = Join(opts.Dir, name)
		}
		if err := dst.WriteFile(target, data); err != nil {
			return written, Wrap("extract", target, err)
		}
		written++
		if opts.OnEntry != nil {
			opts.OnEntry(name, i+1, len(files))
		}
		if written%every == 0 {
			runtime.Gosched()
			if err := ctx.Err(); err != nil {
				return written, fmt.Errorf("extract canceled: %w", err)
			}
		}
	}
	return written, nil
}
