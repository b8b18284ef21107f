// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"encoding/json"
	"fmt"
)

type (
	// Command is one outbound request.
	Command interface {
		Tag() string
		args() []any
	}

	// Init starts a new document. TopName sets the logical name of the
	// module being compiled.
	Init struct {
		TopName string
	}

	// Add submits sentence Text as SID. With Resolve set the engine answers
	// Pending instead of failing when a required module is missing.
	Add struct {
		SID     int
		Text    string
		Resolve bool
	}

	// Load processes a whole source file.
	Load struct {
		Path string
	}

	// Compile writes the compiled object of the loaded document.
	Compile struct {
		Path string
	}

	// Put writes a file into the engine's file system.
	Put struct {
		Path string
		Data []byte
	}

	// Get reads a file from the engine's file system; the answer is Got.
	Get struct {
		Path string
	}

	// LoadPkg installs packages by URI. "+NAME" names a bundled package.
	LoadPkg struct {
		URIs []string
	}

	// RefreshLoadPath makes the engine rescan its library directories.
	RefreshLoadPath struct{}
)

func (Init) Tag() string            { return "Init" }
func (Add) Tag() string             { return "Add" }
func (Load) Tag() string            { return "Load" }
func (Compile) Tag() string         { return "Compile" }
func (Put) Tag() string             { return "Put" }
func (Get) Tag() string             { return "Get" }
func (LoadPkg) Tag() string         { return "LoadPkg" }
func (RefreshLoadPath) Tag() string { return "RefreshLoadPath" }

func (c Init) args() []any {
	opts := map[string]any{}
	if c.TopName != "" {
		opts["top_name"] = c.TopName
	}
	return []any{opts}
}

func (c Add) args() []any           { return []any{nil, c.SID, c.Text, c.Resolve} }
func (c Load) args() []any          { return []any{c.Path} }
func (c Compile) args() []any       { return []any{c.Path} }
func (c Put) args() []any           { return []any{c.Path, c.Data} }
func (c Get) args() []any           { return []any{c.Path} }
func (c LoadPkg) args() []any       { return []any{c.URIs} }
func (RefreshLoadPath) args() []any { return nil }

// Encode serializes cmd as a tagged array.
func Encode(cmd Command) ([]byte, error) {
	data, err := json.Marshal(append([]any{cmd.Tag()}, cmd.args()...))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd.Tag(), err)
	}
	return data, nil
}
