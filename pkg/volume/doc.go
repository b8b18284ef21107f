// SPDX-License-Identifier: MPL-2.0

// Package volume provides the hierarchical byte store that search paths,
// projects and the package loader read from and write into.
//
// A [Volume] addresses entries with slash-separated paths. Three backends are
// provided:
//   - [Disk]: the native filesystem, optionally rooted at a directory
//   - [Memory]: an in-process map, used as the proof engine's virtual filesystem
//     and throughout the tests
//   - [Archive]: a read-only view over a package archive (zip container)
//
// Volumes are shared by reference. Search paths and projects never own the
// volumes they point at, so one archive can back several resolution spaces.
package volume
