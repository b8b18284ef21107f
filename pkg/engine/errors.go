// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEngine is wrapped by every EngineError.
	ErrEngine = errors.New("proof engine error")

	// ErrClosed is returned once the transport has shut down.
	ErrClosed = errors.New("engine session closed")
)

// EngineError reports a fatal message received while a command was in
// flight. The payload is kept opaque.
type EngineError struct {
	// Command is the tag of the command that failed.
	Command string
	// Message is the fatal message.
	Message Message
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	detail := e.Message.Tag()
	switch m := e.Message.(type) {
	case CoqExn:
		if text := m.Text(); text != "" {
			detail = fmt.Sprintf("%s: %s", detail, text)
		}
	case JSONExn:
		detail = fmt.Sprintf("%s: %s", detail, m.Msg)
	}
	return fmt.Sprintf("%s failed: %s", e.Command, detail)
}

// Unwrap returns ErrEngine for errors.Is().
func (e *EngineError) Unwrap() error {
	return ErrEngine
}
