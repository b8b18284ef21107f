// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"coqpkg/pkg/volume"
)

// Mode selects which engine build a Subprocess runs.
type Mode string

const (
	// ModeByte runs the bytecode build under ocamlrun.
	ModeByte Mode = "byte"
	// ModeNative runs the native executable.
	ModeNative Mode = "native"
	// ModeBest prefers native and falls back to bytecode.
	ModeBest Mode = "best"
)

const (
	byteProgram   = "icoq.bc"
	nativeProgram = "icoq.exe"
	maxLineSize   = 64 << 20
)

type (
	// SubprocessOptions configures Start. Nothing is read from the
	// ambient environment; callers pass every path and variable explicitly.
	SubprocessOptions struct {
		// BinDir holds icoq.bc and/or icoq.exe.
		BinDir string
		// Mode defaults to ModeBest.
		Mode Mode
		// WorkDir is the engine's working directory. Put and Get are
		// served from it.
		WorkDir string
		// Env is the complete process environment, as KEY=VALUE pairs.
		Env []string
		// LibPath is prepended to CAML_LD_LIBRARY_PATH; BinDir is always included.
		LibPath []string
		// Packages serves LoadPkg on the host. When nil, LoadPkg is sent
		// to the engine.
		Packages *PackageDirectory
		// Logger defaults to slog.Default().
		Logger *slog.Logger
	}

	// Subprocess is a Transport over an engine child process speaking
	// JSON lines on stdio: one command per input line, one array of
	// messages per output line.
	Subprocess struct {
		cmd      *exec.Cmd
		stdin    io.WriteCloser
		work     volume.Volume
		workDir  string
		packages *PackageDirectory
		logger   *slog.Logger

		incoming chan Message
		exited   chan struct{}
		waitErr  error
		wmu      sync.Mutex
	}
)

// FindExecutable returns the program and arguments running the engine in
// binDir under mode.
func FindExecutable(binDir string, mode Mode) (string, []string, error) {
	bytecode := filepath.Join(binDir, byteProgram)
	native := filepath.Join(binDir, nativeProgram)
	switch mode {
	case ModeByte:
		return "ocamlrun", []string{bytecode}, nil
	case ModeNative:
		return native, nil, nil
	case ModeBest, "":
		if _, err := os.Stat(native); err == nil {
			return native, nil, nil
		}
		return "ocamlrun", []string{bytecode}, nil
	default:
		return "", nil, fmt.Errorf("invalid engine mode %q (expected byte, native or best)", mode)
	}
}

// Start launches the engine. The first message received is always Boot.
func Start(ctx context.Context, opts SubprocessOptions) (*Subprocess, error) {
	prog, args, err := FindExecutable(opts.BinDir, opts.Mode)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	libPath := append(slices.Clone(opts.LibPath), opts.BinDir)
	cmd := exec.CommandContext(ctx, prog, append(args, "-stdin")...)
	cmd.Dir = opts.WorkDir
	cmd.Env = append(withoutVar(opts.Env, "CAML_LD_LIBRARY_PATH"),
		"CAML_LD_LIBRARY_PATH="+strings.Join(libPath, string(os.PathListSeparator)))
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %s: %w", prog, err)
	}
	logger.Debug("engine started", "program", prog, "pid", cmd.Process.Pid)

	s := &Subprocess{
		cmd:      cmd,
		stdin:    stdin,
		work:     volume.NewDisk(""),
		workDir:  opts.WorkDir,
		packages: opts.Packages,
		logger:   logger,
		incoming: make(chan Message, 64),
		exited:   make(chan struct{}),
	}
	s.incoming <- Boot{}
	go s.readLoop(stdout)
	return s, nil
}

func withoutVar(env []string, name string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, name+"=") {
			out = append(out, kv)
		}
	}
	return out
}

func (s *Subprocess) readLoop(stdout io.Reader) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	for sc.Scan() {
		msgs, err := DecodeBatch(sc.Bytes())
		if err != nil {
			s.logger.Error("undecodable engine output", "error", err, "line", truncate(sc.Text(), 200))
		}
		for _, m := range msgs {
			s.emit(m)
		}
	}
	if err := sc.Err(); err != nil {
		s.logger.Error("engine output", "error", err)
	}
	s.waitErr = s.cmd.Wait()
	close(s.exited)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (s *Subprocess) emit(m Message) {
	select {
	case s.incoming <- m:
	case <-s.exited:
	}
}

// Send implements Transport. Put and Get are served from the working
// directory and LoadPkg by the package directory, without involving the
// engine process.
func (s *Subprocess) Send(ctx context.Context, cmd Command) error {
	switch c := cmd.(type) {
	case Put:
		return s.work.WriteFile(s.hostPath(c.Path), c.Data)
	case Get:
		data, err := s.work.ReadFile(s.hostPath(c.Path))
		if err != nil {
			return err
		}
		s.emit(Got{Path: c.Path, Data: data})
		return nil
	case LoadPkg:
		if s.packages != nil {
			go s.packages.LoadPackages(ctx, c.URIs, s.emit)
			return nil
		}
	}

	line, err := Encode(cmd)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if _, err := s.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Tag(), err)
	}
	return nil
}

// hostPath resolves an engine path: relative paths are taken from the
// engine's working directory.
func (s *Subprocess) hostPath(p string) string {
	if filepath.IsAbs(filepath.FromSlash(p)) || s.workDir == "" {
		return p
	}
	return filepath.Join(s.workDir, filepath.FromSlash(p))
}

// Receive implements Transport.
func (s *Subprocess) Receive(ctx context.Context) (Message, error) {
	select {
	case m := <-s.incoming:
		return m, nil
	default:
	}
	select {
	case m := <-s.incoming:
		return m, nil
	case <-s.exited:
		select {
		case m := <-s.incoming:
			return m, nil
		default:
		}
		if s.waitErr != nil {
			return nil, fmt.Errorf("engine exited: %w", s.waitErr)
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close ends the engine's input and waits for it to exit.
func (s *Subprocess) Close() error {
	err := s.stdin.Close()
	<-s.exited
	if err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
