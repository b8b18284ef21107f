// SPDX-License-Identifier: MPL-2.0

package project

import (
	"slices"
	"testing"

	"coqpkg/internal/testutil"
	"coqpkg/pkg/searchpath"
	"coqpkg/pkg/volume"
)

func TestWorkspace(t *testing.T) {
	t.Parallel()
	vol := volume.NewMemory()
	testutil.MustWriteFiles(t, vol, map[string]string{
		"/src/coq/Init/Logic.v":  "",
		"/src/coq/Init/Logic.vo": "obj:Logic",
		"/ws/addon/src/Thm.v":    "From Coq Require Import Init.Logic. Require Import Lemma.",
		"/ws/addon/src/Lemma.v":  "",
		"/ws/other/Util.v":       "Require Import Addon.Thm.",
	})

	// Publish the dependency the way a boot build would.
	coq := New("coq", Options{})
	if err := coq.FromDirectory(vol, "/src/coq", searchpath.LogicalName{"Coq"}); err != nil {
		t.Fatal(err)
	}
	if _, err := coq.Save(vol, "/bin/coq", SaveOptions{EmbedManifest: true}); err != nil {
		t.Fatal(err)
	}

	ws := NewWorkspace(Options{})
	if err := ws.LoadDeps(vol, []string{"coq"}, "/bin/coq"); err != nil {
		t.Fatalf("LoadDeps() failed: %v", err)
	}
	specs := map[string]Spec{
		"other": {"other": {Prefix: "Other"}},
		"addon": {"addon/src": {Prefix: "Addon"}},
	}
	if err := ws.OpenProjects(vol, specs, "/ws"); err != nil {
		t.Fatalf("OpenProjects() failed: %v", err)
	}
	if got := ws.Names(); !slices.Equal(got, []string{"addon", "other"}) {
		t.Errorf("Names() = %v", got)
	}
	if idx := ws.CreateIndex(); idx.Len() != 4 {
		t.Errorf("index holds %d module files, want 4", idx.Len())
	}

	addon, _ := ws.Project("addon")
	if _, err := addon.ComputeDeps(); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(addon.Deps, []string{"coq"}) {
		t.Errorf("addon deps = %v, want [coq]", addon.Deps)
	}
	if got := addon.ModuleDeps["Addon.Thm"]; !slices.Equal(got, []string{"Coq.Init.Logic", "Addon.Lemma"}) {
		t.Errorf("Addon.Thm deps = %v", got)
	}

	other, _ := ws.Project("other")
	if _, err := other.ComputeDeps(); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(other.Deps, []string{"addon"}) {
		t.Errorf("other deps = %v, want [addon]", other.Deps)
	}

	if len(ws.Dependencies()) != 1 {
		t.Errorf("Dependencies() = %d, want 1", len(ws.Dependencies()))
	}
}

func TestWorkspace_LoadDepsMissing(t *testing.T) {
	t.Parallel()
	ws := NewWorkspace(Options{})
	err := ws.LoadDeps(volume.NewMemory(), []string{"nope"}, "/bin")
	if err == nil {
		t.Fatal("expected an error for a missing dependency archive")
	}

	vol := volume.NewMemory()
	if err := vol.WriteFile("/bin/bad.coq-pkg", []byte("not a zip")); err != nil {
		t.Fatal(err)
	}
	if err := ws.LoadDeps(vol, []string{"bad"}, "/bin"); err == nil {
		t.Error("expected an error for a corrupt dependency archive")
	}
}

func TestWorkspace_EmptyProjectPlansNothing(t *testing.T) {
	t.Parallel()
	vol := volume.NewMemory()
	testutil.MustWriteFiles(t, vol, map[string]string{
		"/ws/empty/README.md": "no modules yet",
		"/ws/full/A.v":        "",
		"/ws/full/B.v":        "Require Import A.",
	})

	ws := NewWorkspace(Options{})
	specs := map[string]Spec{
		"empty": {"empty": {Prefix: "E"}},
		"full":  {"full": {Prefix: "F"}},
	}
	if err := ws.OpenProjects(vol, specs, "/ws"); err != nil {
		t.Fatalf("OpenProjects() failed: %v", err)
	}
	ws.CreateIndex()

	empty, _ := ws.Project("empty")
	deps, err := empty.ComputeDeps()
	if err != nil {
		t.Fatal(err)
	}
	if plan := deps.BuildOrder(empty.Modules()); len(plan.Order) != 0 {
		keys := make([]string, 0, len(plan.Order))
		for _, m := range plan.Order {
			keys = append(keys, m.Key()+"["+m.Package+"]")
		}
		t.Errorf("empty project scheduled %v", keys)
	}

	full, _ := ws.Project("full")
	deps, err = full.ComputeDeps()
	if err != nil {
		t.Fatal(err)
	}
	plan := deps.BuildOrder(full.Modules())
	if len(plan.Order) != 2 || plan.Order[0].Key() != "F.A" || plan.Order[1].Key() != "F.B" {
		t.Errorf("full project plan = %v", plan.Order)
	}
}
