// SPDX-License-Identifier: MPL-2.0

// Package searchpath maps dotted logical module names (Coq.Init.Logic) to
// physical files stored in one or more volumes.
//
// Entries are registered with [SearchPath.Add] or [SearchPath.AddRecursive].
// Modules are not stored: [SearchPath.Modules] re-lists the registered
// directories every time it is iterated, unless [SearchPath.CreateIndex] has
// materialized a snapshot. Lookups use dual-ended matching: a module matches
// a (prefix, suffix) query when its logical name starts with prefix and ends
// with suffix, which is how a partially qualified Require finds a module.
package searchpath
