// SPDX-License-Identifier: MPL-2.0

// Package coqpkg defines the package manifest and the package archive
// container.
//
// A package is published as two resources: a JSON manifest (NAME.json) and
// a zip archive (NAME.coq-pkg) holding one compiled object per module. The
// archive may embed the manifest as coq-pkg.json so a single download is
// self-describing. Archives are written with a fixed timestamp and a stable
// entry order, so rebuilding unchanged sources yields identical bytes.
package coqpkg
