// SPDX-License-Identifier: MPL-2.0

// Package coqdep extracts module dependencies from proof sources and plans
// the order in which modules must be compiled.
//
// [ExtractReferences] recognizes "From P Require Import A B." sentences after
// stripping (nested) comments. [CoqDep] resolves those references against a
// search path and records one [Edge] per source module; [CoqDep.BuildOrder]
// sorts the recorded graph so every prerequisite precedes its dependents.
//
// References that match no module are dropped: they usually name libraries
// outside the tracked tree, and the proof engine reports them itself.
package coqdep
