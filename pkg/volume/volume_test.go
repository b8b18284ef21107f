// SPDX-License-Identifier: MPL-2.0

package volume

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"slices"
	"testing"

	"github.com/klauspost/compress/zip"
)

func names(entries []fs.DirEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestMemory(t *testing.T) {
	t.Parallel()
	m := NewMemory()
	if err := m.WriteFile("/lib/Coq/Init/Logic.vo", []byte("logic")); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := m.WriteFile("lib/Coq/Init/Datatypes.vo", []byte("dt")); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	t.Run("leading slash is ignored", func(t *testing.T) {
		t.Parallel()
		data, err := m.ReadFile("lib/Coq/Init/Logic.vo")
		if err != nil {
			t.Fatalf("ReadFile() failed: %v", err)
		}
		if string(data) != "logic" {
			t.Errorf("ReadFile() = %q", data)
		}
	})

	t.Run("parents are implicit directories", func(t *testing.T) {
		t.Parallel()
		if !IsDir(m, "/lib/Coq") {
			t.Error("expected /lib/Coq to be a directory")
		}
		entries, err := m.ReadDir("/lib/Coq/Init")
		if err != nil {
			t.Fatalf("ReadDir() failed: %v", err)
		}
		if got := names(entries); !slices.Equal(got, []string{"Datatypes.vo", "Logic.vo"}) {
			t.Errorf("ReadDir() = %v", got)
		}
	})

	t.Run("missing file is an IOError", func(t *testing.T) {
		t.Parallel()
		_, err := m.ReadFile("/lib/nope.vo")
		if !errors.Is(err, ErrIO) || !errors.Is(err, fs.ErrNotExist) {
			t.Errorf("expected ErrIO wrapping fs.ErrNotExist, got %v", err)
		}
	})
}

func TestDisk(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	d := NewDisk(root)
	if err := d.WriteFile("Coq/Init/Logic.v", []byte("Require Import Datatypes.")); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if !IsDir(d, "Coq/Init") {
		t.Error("expected Coq/Init to exist")
	}
	data, err := NewDisk("").ReadFile(filepath.Join(root, "Coq", "Init", "Logic.v"))
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if string(data) != "Require Import Datatypes." {
		t.Errorf("ReadFile() = %q", data)
	}
	if _, err := d.ReadDir("missing"); !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
}

func buildZip(t *testing.T, files map[string]string, order []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%s) failed: %v", name, err)
		}
		if _, err := w.Write([]byte(files[name])); err != nil {
			t.Fatalf("Write(%s) failed: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	return buf.Bytes()
}

func TestArchive(t *testing.T) {
	t.Parallel()
	files := map[string]string{
		"coq-pkg.json":          `{"name":"init"}`,
		"Coq/Init/Logic.vo":     "logic",
		"Coq/Init/Peano.vo":     "peano",
		"Coq/ltac/ltac.cma":     "plugin",
		"Coq/Arith/PeanoNat.vo": "nat",
	}
	order := []string{"coq-pkg.json", "Coq/Init/Logic.vo", "Coq/Init/Peano.vo", "Coq/ltac/ltac.cma", "Coq/Arith/PeanoNat.vo"}
	a, err := OpenArchive(buildZip(t, files, order))
	if err != nil {
		t.Fatalf("OpenArchive() failed: %v", err)
	}

	t.Run("directories are implied", func(t *testing.T) {
		t.Parallel()
		entries, err := a.ReadDir("/Coq")
		if err != nil {
			t.Fatalf("ReadDir() failed: %v", err)
		}
		if got := names(entries); !slices.Equal(got, []string{"Arith", "Init", "ltac"}) {
			t.Errorf("ReadDir() = %v", got)
		}
	})

	t.Run("read entry", func(t *testing.T) {
		t.Parallel()
		data, err := a.ReadFile("Coq/Init/Peano.vo")
		if err != nil {
			t.Fatalf("ReadFile() failed: %v", err)
		}
		if string(data) != "peano" {
			t.Errorf("ReadFile() = %q", data)
		}
	})

	t.Run("read only", func(t *testing.T) {
		t.Parallel()
		err := a.WriteFile("x.vo", nil)
		if !errors.Is(err, ErrReadOnly) || !errors.Is(err, ErrIO) {
			t.Errorf("expected read-only IOError, got %v", err)
		}
	})

	t.Run("extract into memory", func(t *testing.T) {
		t.Parallel()
		dst := NewMemory()
		var seen []string
		n, err := Extract(context.Background(), a, dst, ExtractOptions{
			Dir:        "/lib",
			YieldEvery: 2,
			Skip:       func(name string) bool { return name == "coq-pkg.json" },
			OnEntry:    func(name string, _, _ int) { seen = append(seen, name) },
		})
		if err != nil {
			t.Fatalf("Extract() failed: %v", err)
		}
		if n != 4 {
			t.Errorf("Extract() wrote %d entries, expected 4", n)
		}
		expected := []string{"lib/Coq/Arith/PeanoNat.vo", "lib/Coq/Init/Logic.vo", "lib/Coq/Init/Peano.vo", "lib/Coq/ltac/ltac.cma"}
		if got := dst.Files(); !slices.Equal(got, expected) {
			t.Errorf("Files() = %v, expected %v", got, expected)
		}
		if len(seen) != 4 || seen[0] != "Coq/Init/Logic.vo" {
			t.Errorf("OnEntry saw %v", seen)
		}
	})

	t.Run("extract honors cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Extract(ctx, a, NewMemory(), ExtractOptions{YieldEvery: 1})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestOpenArchive_Corrupt(t *testing.T) {
	t.Parallel()
	_, err := OpenArchive([]byte("definitely not a zip"))
	if !errors.Is(err, ErrIO) {
		t.Errorf("expected ErrIO, got %v", err)
	}
}

func TestClean(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"", "."},
		{"/", "."},
		{"/lib//Coq/", "/lib/Coq"},
		{"lib/./Coq", "lib/Coq"},
		{`lib\Coq`, "lib/Coq"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
