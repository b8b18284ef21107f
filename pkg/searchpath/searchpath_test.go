// SPDX-License-Identifier: MPL-2.0

package searchpath

import (
	"errors"
	"slices"
	"testing"

	"coqpkg/pkg/volume"
)

func newTree(t *testing.T, files ...string) *volume.Memory {
	t.Helper()
	m := volume.NewMemory()
	for _, f := range files {
		if err := m.WriteFile(f, []byte("(* "+f+" *)")); err != nil {
			t.Fatalf("WriteFile(%s) failed: %v", f, err)
		}
	}
	return m
}

func keys(ms []Module) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Key())
	}
	return out
}

func collect(sp *SearchPath) []string {
	var out []string
	for m := range sp.Modules() {
		out = append(out, m.Key())
	}
	return out
}

func TestParseLogicalName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want LogicalName
	}{
		{"", nil},
		{"Coq", LogicalName{"Coq"}},
		{"Coq.Init.Logic", LogicalName{"Coq", "Init", "Logic"}},
		{".Coq..Init.", LogicalName{"Coq", "Init"}},
	}
	for _, tt := range tests {
		if got := ParseLogicalName(tt.in); !got.Equal(tt.want) {
			t.Errorf("ParseLogicalName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLogicalName_Matches(t *testing.T) {
	t.Parallel()
	name := LogicalName{"Coq", "Init", "Logic"}
	tests := []struct {
		prefix, suffix string
		exact          bool
		want           bool
	}{
		{"", "", false, true},
		{"", "Logic", false, true},
		{"Coq", "Logic", false, true},
		{"Coq.Init", "Logic", false, true},
		{"Coq.Init", "Logic", true, true},
		{"", "Init.Logic", false, true},
		{"", "Logic", true, false},
		{"Init", "Logic", false, false},
		{"", "Init", false, false},
	}
	for _, tt := range tests {
		got := name.Matches(ParseLogicalName(tt.prefix), ParseLogicalName(tt.suffix), tt.exact)
		if got != tt.want {
			t.Errorf("Matches(%q, %q, %v) = %v, want %v", tt.prefix, tt.suffix, tt.exact, got, tt.want)
		}
	}
}

func TestAdd_RequiresDirectory(t *testing.T) {
	t.Parallel()
	vol := newTree(t, "/src/A.v")
	sp := New()

	if err := sp.Add(vol, "/missing", LogicalName{"X"}, ""); !errors.Is(err, volume.ErrIO) {
		t.Errorf("expected IOError for missing directory, got %v", err)
	}
	if err := sp.Add(vol, "/src/A.v", LogicalName{"X"}, ""); !errors.Is(err, volume.ErrIO) {
		t.Errorf("expected IOError for file path, got %v", err)
	}
	if err := sp.Add(vol, "/src", LogicalName{"X"}, ""); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if err := sp.Add(vol, "/src/", LogicalName{"X"}, ""); err != nil {
		t.Fatalf("Add() of duplicate failed: %v", err)
	}
	if n := len(sp.Entries()); n != 1 {
		t.Errorf("expected duplicate registration to be ignored, got %d entries", n)
	}
}

func TestAddRecursive(t *testing.T) {
	t.Parallel()
	vol := newTree(t,
		"/theories/Init/Logic.v",
		"/theories/Init/Logic.vo",
		"/theories/Init/Datatypes.v",
		"/theories/Arith/PeanoNat.v",
		"/theories/Arith/README.md",
		"/theories/.git/config.v",
		"/theories/top.v",
	)
	sp := New()
	if err := sp.AddRecursive(vol, "/theories", LogicalName{"Coq"}, "init"); err != nil {
		t.Fatalf("AddRecursive() failed: %v", err)
	}

	var phys []string
	for _, e := range sp.Entries() {
		phys = append(phys, e.Physical)
	}
	if !slices.Equal(phys, []string{"/theories", "/theories/Arith", "/theories/Init"}) {
		t.Errorf("entries = %v", phys)
	}

	expected := []string{"Coq.top", "Coq.Arith.PeanoNat", "Coq.Init.Datatypes", "Coq.Init.Logic", "Coq.Init.Logic"}
	if got := collect(sp); !slices.Equal(got, expected) {
		t.Errorf("Modules() = %v, expected %v", got, expected)
	}
	// The sequence is restartable.
	if got := collect(sp); len(got) != len(expected) {
		t.Errorf("second iteration yielded %d modules", len(got))
	}
}

func TestFindModules(t *testing.T) {
	t.Parallel()
	vol := newTree(t, "/a/Coq/Init/Logic.vo", "/b/Other/Logic.vo", "/c/MyLib/Coq/Init/Logic.vo")

	build := func(t *testing.T, dirs ...string) *SearchPath {
		t.Helper()
		sp := New()
		for _, d := range dirs {
			if err := sp.AddRecursive(vol, d, nil, ""); err != nil {
				t.Fatalf("AddRecursive(%s) failed: %v", d, err)
			}
		}
		return sp
	}

	for _, indexed := range []bool{false, true} {
		name := "traversal"
		if indexed {
			name = "indexed"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			sp := build(t, "/a", "/b")
			if indexed {
				sp.CreateIndex()
			}
			got := keys(sp.FindModules(nil, LogicalName{"Logic"}, false))
			if !slices.Equal(got, []string{"Coq.Init.Logic", "Other.Logic"}) {
				t.Errorf("suffix-only lookup = %v", got)
			}
			got = keys(sp.FindModules(ParseLogicalName("Coq.Init"), LogicalName{"Logic"}, false))
			if !slices.Equal(got, []string{"Coq.Init.Logic"}) {
				t.Errorf("prefixed lookup = %v", got)
			}
			got = keys(sp.FindModules(nil, LogicalName{"Logic"}, true))
			if len(got) != 0 {
				t.Errorf("exact lookup without qualification = %v", got)
			}
		})
	}

	t.Run("suffix matching is dual-ended", func(t *testing.T) {
		t.Parallel()
		sp := build(t, "/a", "/c")
		got := keys(sp.FindModules(nil, ParseLogicalName("Coq.Init.Logic"), false))
		if !slices.Equal(got, []string{"Coq.Init.Logic", "MyLib.Coq.Init.Logic"}) {
			t.Errorf("non-exact lookup = %v", got)
		}
		got = keys(sp.FindModules(ParseLogicalName("Coq.Init"), LogicalName{"Logic"}, true))
		if !slices.Equal(got, []string{"Coq.Init.Logic"}) {
			t.Errorf("exact lookup = %v", got)
		}
	})
}

func TestCreateIndex_InvalidatedByAdd(t *testing.T) {
	t.Parallel()
	vol := newTree(t, "/a/A.v", "/b/B.v")
	sp := New()
	if err := sp.Add(vol, "/a", LogicalName{"L"}, ""); err != nil {
		t.Fatal(err)
	}
	idx := sp.CreateIndex()
	if idx.Len() != 1 {
		t.Fatalf("index has %d modules, expected 1", idx.Len())
	}
	if _, ok := idx.Lookup("L.A"); !ok {
		t.Error("expected L.A in index")
	}
	if err := sp.Add(vol, "/b", LogicalName{"L"}, ""); err != nil {
		t.Fatal(err)
	}
	if _, ok := sp.FindModule(nil, LogicalName{"B"}, false); !ok {
		t.Error("expected L.B to be visible after registering a new entry")
	}
}

func TestModulesOfPackage(t *testing.T) {
	t.Parallel()
	vol := newTree(t, "/init/Logic.v", "/arith/PeanoNat.v")
	sp := New()
	if err := sp.Add(vol, "/init", ParseLogicalName("Coq.Init"), "init"); err != nil {
		t.Fatal(err)
	}
	if err := sp.Add(vol, "/arith", ParseLogicalName("Coq.Arith"), "arith"); err != nil {
		t.Fatal(err)
	}
	var got []string
	for m := range sp.ModulesOfPackage("arith") {
		got = append(got, m.Key())
	}
	if !slices.Equal(got, []string{"Coq.Arith.PeanoNat"}) {
		t.Errorf("ModulesOfPackage() = %v", got)
	}
}

func TestToLogicalName(t *testing.T) {
	t.Parallel()
	vol := newTree(t, "/src/Init/Logic.v")
	sp := New()
	if err := sp.AddRecursive(vol, "/src", LogicalName{"Coq"}, ""); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"/src/Init/Logic.v", "Coq.Init.Logic", true},
		{"/src/Init/Logic.vo", "Coq.Init.Logic", true},
		{"/src/Init/notes.txt", "", false},
		{"/elsewhere/Logic.v", "", false},
	}
	for _, tt := range tests {
		got, ok := sp.ToLogicalName(tt.path)
		if ok != tt.ok || got.String() != tt.want {
			t.Errorf("ToLogicalName(%q) = (%q, %v), want (%q, %v)", tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAddFrom(t *testing.T) {
	t.Parallel()
	vol := newTree(t, "/a/A.v", "/b/B.vo")
	first, second := New(), New()
	if err := first.Add(vol, "/a", LogicalName{"P"}, "p"); err != nil {
		t.Fatal(err)
	}
	if err := second.Add(vol, "/b", LogicalName{"Q"}, "q"); err != nil {
		t.Fatal(err)
	}
	combined := New()
	combined.AddFrom(first)
	combined.AddFrom(second)
	combined.AddFrom(first)
	if got := collect(combined); !slices.Equal(got, []string{"P.A", "Q.B"}) {
		t.Errorf("Modules() = %v", got)
	}
}
