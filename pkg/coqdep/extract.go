// SPDX-License-Identifier: MPL-2.0

package coqdep

import (
	"fmt"
	"regexp"
	"strings"

	"coqpkg/pkg/searchpath"
)

var (
	sentenceEnd = regexp.MustCompile(`\.(?:\s|$)`)
	requireRe   = regexp.MustCompile(`(?s)^\s*(?:From\s+(\S+)\s+)?Require((?:\s+(?:Import|Export))*)\s+(.*)$`)
)

// Reference is one module named by a Require sentence.
type Reference struct {
	// Prefix is the qualifying "From" path; empty when absent.
	Prefix searchpath.LogicalName
	// Name is the (possibly partially qualified) module name.
	Name searchpath.LogicalName
}

// String returns "Prefix:Name" or just "Name".
func (r Reference) String() string {
	if len(r.Prefix) == 0 {
		return r.Name.String()
	}
	return fmt.Sprintf("%s:%s", r.Prefix, r.Name)
}

// StripComments replaces every (possibly nested) "(* ... *)" comment with a
// single space. An unterminated comment swallows the rest of the text.
func StripComments(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	depth := 0
	for i := 0; i < len(text); {
		switch {
		case strings.HasPrefix(text[i:], "(*"):
			depth++
			i += 2
		case depth > 0 && strings.HasPrefix(text[i:], "*)"):
			depth--
			i += 2
			if depth == 0 {
				b.WriteByte(' ')
			}
		default:
			if depth == 0 {
				b.WriteByte(text[i])
			}
			i++
		}
	}
	return b.String()
}

// ExtractReferences returns the references made by every Require sentence
// of text, in order of appearance.
func ExtractReferences(text string) []Reference {
	var refs []Reference
	for _, sentence := range sentenceEnd.Split(StripComments(text), -1) {
		mo := requireRe.FindStringSubmatch(sentence)
		if mo == nil {
			continue
		}
		prefix := searchpath.ParseLogicalName(mo[1])
		for _, name := range strings.Fields(mo[3]) {
			if name == "Import" || name == "Export" {
				continue
			}
			ln := searchpath.ParseLogicalName(name)
			if len(ln) == 0 {
				continue
			}
			refs = append(refs, Reference{Prefix: prefix, Name: ln})
		}
	}
	return refs
}
