// SPDX-License-Identifier: MPL-2.0

// Package build compiles proof modules in dependency order through a proof
// engine session and writes each compiled object next to its source.
package build
