// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound message tags.
const (
	TagBoot        = "Boot"
	TagReady       = "Ready"
	TagAdded       = "Added"
	TagLoaded      = "Loaded"
	TagCompiled    = "Compiled"
	TagCoqExn      = "CoqExn"
	TagJSONExn     = "JsonExn"
	TagLoadedPkg   = "LoadedPkg"
	TagLibProgress = "LibProgress"
	TagLibError    = "LibError"
	TagPending     = "Pending"
	TagGot         = "Got"
	TagFeedback    = "Feedback"
)

// ErrMalformedMessage is returned for inbound data that is not a tagged array.
var ErrMalformedMessage = errors.New("malformed engine message")

type (
	// Message is one inbound message. The set of implementations is closed;
	// tags this package does not know decode to Unknown.
	Message interface {
		Tag() string
		isMessage()
	}

	// Boot announces that the engine process is up.
	Boot struct{}

	// Ready follows a successful Init.
	Ready struct{}

	// Added acknowledges an Add for sentence SID.
	Added struct {
		SID int
	}

	// Loaded acknowledges a Load.
	Loaded struct {
		Args []json.RawMessage
	}

	// Compiled reports a written compiled object.
	Compiled struct {
		Path string
	}

	// CoqExn reports a failure while processing or compiling.
	CoqExn struct {
		Args []json.RawMessage
	}

	// JSONExn reports a command the engine could not parse.
	JSONExn struct {
		Msg string
	}

	// LoadedPkg names packages whose installation finished.
	LoadedPkg struct {
		URIs []string
	}

	// LibProgress reports progress installing one package.
	LibProgress struct {
		URI        string
		Done       bool
		Downloaded int64
		Total      int64
	}

	// LibError reports that one package failed to install.
	LibError struct {
		URI string
		Msg string
	}

	// Pending says the engine is blocked on sentence SID until modules
	// matching Prefix and ModRefs are available.
	Pending struct {
		SID     int
		Prefix  string
		ModRefs []string
	}

	// Got carries a file read from the engine's file system.
	Got struct {
		Path string
		Data []byte
	}

	// Feedback is an opaque progress or diagnostic message.
	Feedback struct {
		Payload json.RawMessage
	}

	// Unknown holds a message with an unrecognized tag.
	Unknown struct {
		Name string
		Args []json.RawMessage
	}

	libProgressPayload struct {
		URI      string `json:"uri"`
		Done     bool   `json:"done"`
		Download *struct {
			Downloaded int64 `json:"downloaded"`
			Total      int64 `json:"total"`
		} `json:"download,omitempty"`
	}
)

func (Boot) Tag() string        { return TagBoot }
func (Ready) Tag() string       { return TagReady }
func (Added) Tag() string       { return TagAdded }
func (Loaded) Tag() string      { return TagLoaded }
func (Compiled) Tag() string    { return TagCompiled }
func (CoqExn) Tag() string      { return TagCoqExn }
func (JSONExn) Tag() string     { return TagJSONExn }
func (LoadedPkg) Tag() string   { return TagLoadedPkg }
func (LibProgress) Tag() string { return TagLibProgress }
func (LibError) Tag() string    { return TagLibError }
func (Pending) Tag() string     { return TagPending }
func (Got) Tag() string         { return TagGot }
func (Feedback) Tag() string    { return TagFeedback }
func (u Unknown) Tag() string   { return u.Name }

func (Boot) isMessage()        {}
func (Ready) isMessage()       {}
func (Added) isMessage()       {}
func (Loaded) isMessage()      {}
func (Compiled) isMessage()    {}
func (CoqExn) isMessage()      {}
func (JSONExn) isMessage()     {}
func (LoadedPkg) isMessage()   {}
func (LibProgress) isMessage() {}
func (LibError) isMessage()    {}
func (Pending) isMessage()     {}
func (Got) isMessage()         {}
func (Feedback) isMessage()    {}
func (Unknown) isMessage()     {}

// Text returns the human-readable part of the exception, if any. The
// engine places it last.
func (e CoqExn) Text() string {
	for i := len(e.Args) - 1; i >= 0; i-- {
		var s string
		if json.Unmarshal(e.Args[i], &s) == nil && s != "" {
			return s
		}
	}
	return ""
}

// IsFatal reports whether msg aborts the command in flight.
func IsFatal(msg Message) bool {
	switch msg.(type) {
	case CoqExn, JSONExn:
		return true
	default:
		return false
	}
}

// Is returns a predicate matching messages with the given tag.
func Is(tag string) func(Message) bool {
	return func(m Message) bool { return m.Tag() == tag }
}

// Decode parses one tagged array.
func Decode(data []byte) (Message, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrMalformedMessage)
	}
	var tag string
	if err := json.Unmarshal(raw[0], &tag); err != nil {
		return nil, fmt.Errorf("%w: tag: %w", ErrMalformedMessage, err)
	}
	msg, err := decodeArgs(tag, raw[1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedMessage, tag, err)
	}
	return msg, nil
}

// DecodeBatch parses one line of engine output, which holds an array of
// tagged arrays.
func DecodeBatch(data []byte) ([]Message, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	out := make([]Message, 0, len(items))
	for _, item := range items {
		msg, err := Decode(item)
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func decodeArgs(tag string, args []json.RawMessage) (Message, error) {
	arg := func(i int, v any) error {
		if i >= len(args) || string(args[i]) == "null" {
			return nil
		}
		return json.Unmarshal(args[i], v)
	}

	switch tag {
	case TagBoot:
		return Boot{}, nil
	case TagReady:
		return Ready{}, nil
	case TagAdded:
		var m Added
		err := arg(0, &m.SID)
		return m, err
	case TagLoaded:
		return Loaded{Args: args}, nil
	case TagCompiled:
		var m Compiled
		err := arg(0, &m.Path)
		return m, err
	case TagCoqExn:
		return CoqExn{Args: args}, nil
	case TagJSONExn:
		var m JSONExn
		err := arg(0, &m.Msg)
		return m, err
	case TagLoadedPkg:
		var m LoadedPkg
		if len(args) > 0 && len(args[0]) > 0 && args[0][0] == '"' {
			var uri string
			if err := arg(0, &uri); err != nil {
				return nil, err
			}
			m.URIs = []string{uri}
			return m, nil
		}
		err := arg(0, &m.URIs)
		return m, err
	case TagLibProgress:
		var p libProgressPayload
		if err := arg(0, &p); err != nil {
			return nil, err
		}
		m := LibProgress{URI: p.URI, Done: p.Done}
		if p.Download != nil {
			m.Downloaded, m.Total = p.Download.Downloaded, p.Download.Total
		}
		return m, nil
	case TagLibError:
		var m LibError
		if err := arg(0, &m.URI); err != nil {
			return nil, err
		}
		err := arg(1, &m.Msg)
		return m, err
	case TagPending:
		var m Pending
		if err := arg(0, &m.SID); err != nil {
			return nil, err
		}
		if err := arg(1, &m.Prefix); err != nil {
			return nil, err
		}
		err := arg(2, &m.ModRefs)
		return m, err
	case TagGot:
		var m Got
		if err := arg(0, &m.Path); err != nil {
			return nil, err
		}
		err := arg(1, &m.Data)
		return m, err
	case TagFeedback:
		var m Feedback
		if len(args) > 0 {
			m.Payload = args[0]
		}
		return m, nil
	default:
		return Unknown{Name: tag, Args: args}, nil
	}
}
