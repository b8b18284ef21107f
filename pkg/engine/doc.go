// SPDX-License-Identifier: MPL-2.0

// Package engine is the boundary to the proof engine.
//
// The engine speaks JSON arrays whose first element is a tag, e.g.
// ["Compile", "/lib/A.vo"] outbound and ["Compiled", "/lib/A.vo"] inbound.
// Outbound commands and inbound messages are closed sets of Go types; a
// Session pairs each command with its response and hands every other
// message to a single handler.
package engine
