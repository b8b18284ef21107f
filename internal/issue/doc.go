// SPDX-License-Identifier: MPL-2.0

// Package issue turns failures into user-facing messages: an ActionableError
// names what was attempted and on what, and a catalog of known issues carries
// Markdown guidance that the CLI renders for the user.
package issue
