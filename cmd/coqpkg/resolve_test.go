// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"slices"
	"testing"

	"coqpkg/internal/testutil"
	"coqpkg/pkg/engine"
	"coqpkg/pkg/pkgindex"
)

func TestEnginePoster(t *testing.T) {
	t.Parallel()

	poster := &enginePoster{}
	loader := pkgindex.PostLoader(poster)
	uris := []string{"/pkgs/init.coq-pkg"}

	err := loader.LoadPackages(context.Background(), uris)
	if !errors.Is(err, errEngineNotStarted) {
		t.Fatalf("LoadPackages() before start error = %v, want errEngineNotStarted", err)
	}

	fake := testutil.NewFakeEngine(nil)
	session := engine.NewSession(fake, engine.SessionOptions{})
	t.Cleanup(testutil.DeferClose(t, session))
	poster.session.Store(session)

	if err := loader.LoadPackages(context.Background(), uris); err != nil {
		t.Fatalf("LoadPackages() error = %v", err)
	}
	if err := poster.Post(context.Background(), engine.RefreshLoadPath{}); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if got := fake.SentTags(); !slices.Equal(got, []string{"LoadPkg", "RefreshLoadPath"}) {
		t.Fatalf("sent %v, want [LoadPkg RefreshLoadPath]", got)
	}
	if load := fake.Sent()[0].(engine.LoadPkg); !slices.Equal(load.URIs, uris) {
		t.Errorf("LoadPkg URIs = %v, want %v", load.URIs, uris)
	}
}
