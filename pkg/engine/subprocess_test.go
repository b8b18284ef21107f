// SPDX-License-Identifier: MPL-2.0

package engine_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"coqpkg/pkg/engine"
)

const fakeIcoq = `#!/bin/sh
while IFS= read -r line; do
  case "$line" in
    *Compile*) echo '[["Feedback",{}],["Compiled","out.vo"]]' ;;
    *) echo 'garbage' ;;
  esac
done
`

func TestFindExecutable(t *testing.T) {
	t.Parallel()
	bin := t.TempDir()

	prog, args, err := engine.FindExecutable(bin, engine.ModeBest)
	if err != nil || prog != "ocamlrun" || len(args) != 1 || args[0] != filepath.Join(bin, "icoq.bc") {
		t.Errorf("best without native = %s %v %v", prog, args, err)
	}
	if err := os.WriteFile(filepath.Join(bin, "icoq.exe"), nil, 0o755); err != nil {
		t.Fatal(err)
	}
	prog, _, err = engine.FindExecutable(bin, engine.ModeBest)
	if err != nil || prog != filepath.Join(bin, "icoq.exe") {
		t.Errorf("best with native = %s %v", prog, err)
	}
	prog, _, _ = engine.FindExecutable(bin, engine.ModeByte)
	if prog != "ocamlrun" {
		t.Errorf("byte = %s", prog)
	}
	if _, _, err := engine.FindExecutable(bin, "fast"); err == nil {
		t.Error("expected an error for an unknown mode")
	}
}

func TestSubprocess(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	bin := t.TempDir()
	work := t.TempDir()
	if err := os.WriteFile(filepath.Join(bin, "icoq.exe"), []byte(fakeIcoq), 0o755); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sp, err := engine.Start(ctx, engine.SubprocessOptions{
		BinDir:  bin,
		Mode:    engine.ModeNative,
		WorkDir: work,
		Env:     []string{"PATH=" + os.Getenv("PATH")},
	})
	if err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	recv := func() engine.Message {
		t.Helper()
		m, err := sp.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive() failed: %v", err)
		}
		return m
	}
	if m := recv(); m.Tag() != engine.TagBoot {
		t.Fatalf("first message = %s, want Boot", m.Tag())
	}

	if err := sp.Send(ctx, engine.Put{Path: "src/A.v", Data: []byte("Require A.")}); err != nil {
		t.Fatalf("Send(Put) failed: %v", err)
	}
	if data, err := os.ReadFile(filepath.Join(work, "src", "A.v")); err != nil || string(data) != "Require A." {
		t.Errorf("Put wrote %q, %v", data, err)
	}
	if err := sp.Send(ctx, engine.Get{Path: "src/A.v"}); err != nil {
		t.Fatal(err)
	}
	if m, ok := recv().(engine.Got); !ok || string(m.Data) != "Require A." {
		t.Errorf("Get answered %#v", m)
	}

	if err := sp.Send(ctx, engine.Compile{Path: "out.vo"}); err != nil {
		t.Fatal(err)
	}
	if m := recv(); m.Tag() != engine.TagFeedback {
		t.Errorf("got %s, want Feedback", m.Tag())
	}
	if m, ok := recv().(engine.Compiled); !ok || m.Path != "out.vo" {
		t.Errorf("got %#v, want Compiled", m)
	}

	if err := sp.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if _, err := sp.Receive(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Receive() after exit = %v, want io.EOF", err)
	}
}
