// SPDX-License-Identifier: MPL-2.0

// Package project groups modules under a named package and turns them into
// a manifest plus archive.
//
// A Project owns the search path entries of its sources. A Workspace opens
// several projects over one shared search path so references between them
// (and to previously built dependency packages) resolve during scanning.
package project
