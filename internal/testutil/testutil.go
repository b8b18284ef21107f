// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"io"
	"maps"
	"slices"
	"testing"

	"coqpkg/pkg/volume"
)

// MustWriteFiles writes each name/content pair to vol in sorted order.
// The test fails immediately if a write fails.
func MustWriteFiles(t testing.TB, vol volume.Volume, files map[string]string) {
	t.Helper()
	for _, name := range slices.Sorted(maps.Keys(files)) {
		if err := vol.WriteFile(name, []byte(files[name])); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
}

// MustReadFile reads name from vol.
// The test fails immediately if the read fails.
func MustReadFile(t testing.TB, vol volume.Volume, name string) []byte {
	t.Helper()
	data, err := vol.ReadFile(name)
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return data
}

// DeferClose returns a cleanup function that closes the given io.Closer,
// logging any errors. Useful with t.Cleanup.
func DeferClose(t testing.TB, c io.Closer) func() {
	t.Helper()
	return func() {
		t.Helper()
		if err := c.Close(); err != nil {
			t.Logf("warning: close returned error: %v", err)
		}
	}
}
