// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by tests: file fixtures written
// through a volume, and FakeEngine, an in-memory engine transport.
package testutil
