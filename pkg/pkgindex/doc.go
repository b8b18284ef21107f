// SPDX-License-Identifier: MPL-2.0

// Package pkgindex tracks packages at run time: which manifests are known,
// which module each package provides, and which packages the engine has
// loaded.
//
// Each package moves through Unknown, Indexed, Loading and Loaded. Loads
// are requested in batches and complete asynchronously when the engine
// reports them; every package has at most one load in flight, and callers
// asking for the same package share its Future.
package pkgindex
