// SPDX-License-Identifier: MPL-2.0

package searchpath

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrInvalidLogicalName is returned when a logical name has an empty component.
var ErrInvalidLogicalName = errors.New("invalid logical name")

// LogicalName is an ordered sequence of non-empty name components.
type LogicalName []string

// ParseLogicalName splits a dotted name. Empty components are dropped, so
// "" parses to the empty name and "Coq..Init." to [Coq Init].
func ParseLogicalName(dotted string) LogicalName {
	var out LogicalName
	for part := range strings.SplitSeq(dotted, ".") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// String returns the dotted form.
func (n LogicalName) String() string {
	return strings.Join(n, ".")
}

// Validate reports an error if any component is empty or contains a dot.
func (n LogicalName) Validate() error {
	for i, c := range n {
		if c == "" || strings.Contains(c, ".") {
			return fmt.Errorf("%w: component %d of %q", ErrInvalidLogicalName, i, n.String())
		}
	}
	return nil
}

// Equal compares component-wise.
func (n LogicalName) Equal(o LogicalName) bool {
	return slices.Equal(n, o)
}

// HasPrefix reports whether n starts with prefix. The empty prefix matches
// every name.
func (n LogicalName) HasPrefix(prefix LogicalName) bool {
	return len(prefix) <= len(n) && slices.Equal(n[:len(prefix)], prefix)
}

// HasSuffix reports whether n ends with suffix. The empty suffix matches
// every name.
func (n LogicalName) HasSuffix(suffix LogicalName) bool {
	return len(suffix) <= len(n) && slices.Equal(n[len(n)-len(suffix):], suffix)
}

// Append returns a new name with the given components added.
func (n LogicalName) Append(components ...string) LogicalName {
	out := make(LogicalName, 0, len(n)+len(components))
	out = append(out, n...)
	return append(out, components...)
}

// Dir returns every component except the last.
func (n LogicalName) Dir() LogicalName {
	if len(n) == 0 {
		return nil
	}
	return slices.Clone(n[:len(n)-1])
}

// Matches applies the lookup rule used by FindModules: with exact set the
// name must equal prefix+suffix, otherwise it must start with prefix and end
// with suffix.
func (n LogicalName) Matches(prefix, suffix LogicalName, exact bool) bool {
	if exact {
		return n.Equal(prefix.Append(suffix...))
	}
	return n.HasPrefix(prefix) && n.HasSuffix(suffix)
}
