// SPDX-License-Identifier: MPL-2.0

package project

import (
	"bytes"
	"errors"
	"maps"
	"slices"
	"testing"

	"coqpkg/internal/testutil"
	"coqpkg/pkg/coqpkg"
	"coqpkg/pkg/searchpath"
	"coqpkg/pkg/volume"
)

// builtTree is a small library whose sources have already been compiled.
func builtTree(t *testing.T) *volume.Memory {
	t.Helper()
	vol := volume.NewMemory()
	testutil.MustWriteFiles(t, vol, map[string]string{
		"/lib/theories/Base.v":       "Definition one := 1.",
		"/lib/theories/Base.vo":      "obj:Base",
		"/lib/theories/Nat.v":        "Require Import Base.",
		"/lib/theories/Nat.vo":       "obj:Nat",
		"/lib/theories/Ext/Plus.v":   "From MyLib Require Import Nat Base. Require Import Missing.",
		"/lib/theories/Ext/Plus.vo":  "obj:Plus",
		"/lib/theories/Ext/ext.cma":  "plugin",
		"/lib/theories/Ext/notes.md": "not a module",
	})
	return vol
}

func TestFromSpec(t *testing.T) {
	t.Parallel()
	vol := volume.NewMemory()
	testutil.MustWriteFiles(t, vol, map[string]string{
		"/ws/coq/theories/Init/Logic.v":       "",
		"/ws/coq/theories/Numbers/Natural/N.v": "",
		"/ws/coq/plugins/ltac/ltac.cma":        "",
	})
	spec := Spec{
		"coq/theories": {Prefix: "Coq", DirPaths: []string{"Init", "Numbers.Natural"}},
		"coq/plugins":  {Prefix: "Coq.plugins"},
	}
	p := New("coq", Options{})
	if err := p.FromSpec(vol, spec, "/ws"); err != nil {
		t.Fatalf("FromSpec() failed: %v", err)
	}

	var got []string
	for _, m := range p.Modules() {
		got = append(got, m.Key())
		if m.Package != "coq" {
			t.Errorf("module %s owned by %q", m.Key(), m.Package)
		}
	}
	want := []string{"Coq.plugins.ltac.ltac", "Coq.Init.Logic", "Coq.Numbers.Natural.N"}
	if !slices.Equal(got, want) {
		t.Errorf("modules = %v, want %v", got, want)
	}

	missing := Spec{"coq/theories": {Prefix: "Coq", DirPaths: []string{"Nope"}}}
	err := New("coq", Options{}).FromSpec(vol, missing, "/ws")
	if !errors.Is(err, volume.ErrIO) {
		t.Errorf("FromSpec() with missing dir error = %v, want ErrIO", err)
	}
}

func TestComputeDeps_CreateManifest(t *testing.T) {
	t.Parallel()
	p := New("mylib", Options{})
	if err := p.FromDirectory(builtTree(t), "/lib/theories", searchpath.LogicalName{"MyLib"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ComputeDeps(); err != nil {
		t.Fatalf("ComputeDeps() failed: %v", err)
	}

	m := p.CreateManifest()
	if got := m.ModuleNames(); !slices.Equal(got, []string{"MyLib.Base", "MyLib.Ext.Plus", "MyLib.Ext.ext", "MyLib.Nat"}) {
		t.Errorf("ModuleNames() = %v", got)
	}
	if deps := m.Modules["MyLib.Ext.Plus"].Deps; !slices.Equal(deps, []string{"MyLib.Nat", "MyLib.Base"}) {
		t.Errorf("deps of Plus = %v", deps)
	}
	if deps := m.Modules["MyLib.Base"].Deps; deps != nil {
		t.Errorf("module without deps should have nil deps, got %v", deps)
	}
	if len(m.Deps) != 0 {
		t.Errorf("a self-contained project has no package deps, got %v", m.Deps)
	}
}

func TestToArchive_Deterministic(t *testing.T) {
	t.Parallel()
	build := func() []byte {
		p := New("mylib", Options{})
		if err := p.FromDirectory(builtTree(t), "/lib/theories", searchpath.LogicalName{"MyLib"}); err != nil {
			t.Fatal(err)
		}
		if _, err := p.ComputeDeps(); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if err := p.ToArchive(&buf, p.CreateManifest()); err != nil {
			t.Fatalf("ToArchive() failed: %v", err)
		}
		return buf.Bytes()
	}
	first, second := build(), build()
	if !bytes.Equal(first, second) {
		t.Fatal("rebuilding unchanged sources produced a different archive")
	}

	pkg, err := coqpkg.OpenArchive(first)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		coqpkg.ManifestEntry,
		"MyLib/Base.vo",
		"MyLib/Ext/Plus.vo",
		"MyLib/Ext/ext.cma",
		"MyLib/Nat.vo",
	}
	if got := pkg.Volume.Files(); !slices.Equal(got, want) {
		t.Errorf("archive entries = %v, want %v", got, want)
	}
}

func TestToArchive_Patterns(t *testing.T) {
	t.Parallel()
	p := New("mylib", Options{})
	if err := p.FromDirectory(builtTree(t), "/lib/theories", searchpath.LogicalName{"MyLib"}); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := p.ToArchive(&buf, nil, "MyLib/Ext/**"); err != nil {
		t.Fatal(err)
	}
	a, err := volume.OpenArchive(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	// Sources are modules too, so a broad pattern packs them.
	want := []string{"MyLib/Ext/Plus.v", "MyLib/Ext/Plus.vo", "MyLib/Ext/ext.cma"}
	if got := a.Files(); !slices.Equal(got, want) {
		t.Errorf("entries = %v, want %v", got, want)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	t.Parallel()
	orig := New("mylib", Options{})
	if err := orig.FromDirectory(builtTree(t), "/lib/theories", searchpath.LogicalName{"MyLib"}); err != nil {
		t.Fatal(err)
	}
	if _, err := orig.ComputeDeps(); err != nil {
		t.Fatal(err)
	}
	orig.Deps = []string{"coq"}
	want := orig.CreateManifest()

	var buf bytes.Buffer
	if err := orig.ToArchive(&buf, want); err != nil {
		t.Fatal(err)
	}
	pkg, err := coqpkg.OpenArchive(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	reopened := New("mylib", Options{})
	if err := reopened.FromArchive(pkg); err != nil {
		t.Fatal(err)
	}
	got := reopened.CreateManifest()

	if !slices.Equal(got.ModuleNames(), want.ModuleNames()) {
		t.Errorf("module set = %v, want %v", got.ModuleNames(), want.ModuleNames())
	}
	if !maps.EqualFunc(got.ModuleDeps(), want.ModuleDeps(), slices.Equal[[]string]) {
		t.Errorf("module deps = %v, want %v", got.ModuleDeps(), want.ModuleDeps())
	}
	if !slices.Equal(got.Deps, want.Deps) {
		t.Errorf("package deps = %v, want %v", got.Deps, want.Deps)
	}
}

func TestSave(t *testing.T) {
	t.Parallel()
	vol := builtTree(t)
	p := New("mylib", Options{})
	if err := p.FromDirectory(vol, "/lib/theories", searchpath.LogicalName{"MyLib"}); err != nil {
		t.Fatal(err)
	}
	if _, err := p.ComputeDeps(); err != nil {
		t.Fatal(err)
	}

	t.Run("current", func(t *testing.T) {
		out := volume.NewMemory()
		res, err := p.Save(out, "/out", SaveOptions{})
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		if res.ManifestPath != "/out/mylib.json" || res.ArchivePath != "/out/mylib.coq-pkg" {
			t.Errorf("Save() = %+v", res)
		}
		data, err := out.ReadFile(res.ManifestPath)
		if err != nil {
			t.Fatal(err)
		}
		m, err := coqpkg.Decode(data)
		if err != nil {
			t.Fatal(err)
		}
		if len(m.Modules) != 4 {
			t.Errorf("saved manifest has %d modules", len(m.Modules))
		}
	})

	t.Run("legacy", func(t *testing.T) {
		out := volume.NewMemory()
		res, err := p.Save(out, "/out", SaveOptions{Legacy: true, EmbedManifest: true})
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		data, err := out.ReadFile(res.ManifestPath)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Contains(data, []byte(`"pkg_id"`)) {
			t.Errorf("expected legacy layout:\n%s", data)
		}
		archive, err := out.ReadFile(res.ArchivePath)
		if err != nil {
			t.Fatal(err)
		}
		pkg, err := coqpkg.OpenArchive(archive)
		if err != nil || pkg.Manifest == nil {
			t.Errorf("expected an embedded manifest, got %v, %v", pkg, err)
		}
	})

	t.Run("unwritable", func(t *testing.T) {
		ro, err := volume.OpenArchive(emptyArchive(t))
		if err != nil {
			t.Fatal(err)
		}
		_, err = p.Save(ro, "out", SaveOptions{})
		if !errors.Is(err, volume.ErrIO) || !errors.Is(err, volume.ErrReadOnly) {
			t.Errorf("Save() error = %v, want read-only IOError", err)
		}
	})
}

func emptyArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := coqpkg.NewArchiveWriter(&buf).Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
