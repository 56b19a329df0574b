// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pep440

import (
	"fmt"
	"strings"
)

// A span is a contiguous range of versions. A nil endpoint means the span
// is unbounded on that side. Within a Constraint the spans are disjoint,
// non-empty and sorted ascending.
type span struct {
	min, max         *Version
	minOpen, maxOpen bool
}

// A Constraint is a set of versions, held in canonical form as a union of
// disjoint spans. The zero Constraint matches every version. Constraints
// are immutable; Intersect returns new values.
//
// Matching ignores the pre-release admission policy: a constraint such as
// "<2.0" contains 2.0a1's predecessors including other pre-releases, and
// whether pre-releases are admissible at all is decided by the caller.
// Versions carrying a local label match only point constraints that name
// them exactly.
type Constraint struct {
	spans []span
	// empty marks the explicitly unsatisfiable set, as produced by
	// intersecting incompatible constraints. It is distinct from the zero
	// Constraint, which matches everything.
	empty bool
}

// AnyVersion matches every version.
var AnyVersion = Constraint{}

// NoVersion matches no version.
var NoVersion = Constraint{empty: true}

// ParseConstraint parses a comma-separated list of PEP 440 specifier
// clauses, such as ">=1.2,<2.0,!=1.4.1", into their intersection. The
// empty string parses to AnyVersion.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AnyVersion, nil
	}
	c := AnyVersion
	for _, clause := range strings.Split(s, ",") {
		spec, err := ParseSpecifier(clause)
		if err != nil {
			return Constraint{}, fmt.Errorf("constraint %q: %w", s, err)
		}
		c = c.Intersect(constraintFromSpans(spec.spans()))
	}
	return c, nil
}

// MustParseConstraint is like ParseConstraint but panics on error.
// For tests and constants.
func MustParseConstraint(s string) Constraint {
	c, err := ParseConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ConstraintFor returns the constraint expressed by a single specifier.
func ConstraintFor(spec Specifier) Constraint {
	return constraintFromSpans(spec.spans())
}

// PinnedTo returns the constraint matching exactly v.
func PinnedTo(v *Version) Constraint {
	return Constraint{spans: []span{{min: v, max: v}}}
}

func constraintFromSpans(spans []span) Constraint {
	keep := spans[:0]
	for _, sp := range spans {
		if !sp.degenerate() {
			keep = append(keep, sp)
		}
	}
	if len(keep) == 0 {
		return NoVersion
	}
	return Constraint{spans: keep}
}

// degenerate reports whether the span contains no versions at all.
func (s span) degenerate() bool {
	if s.min == nil || s.max == nil {
		return false
	}
	switch s.min.Compare(s.max) {
	case 1:
		return true
	case 0:
		return s.minOpen || s.maxOpen
	}
	return false
}

// unit reports whether the span contains exactly one version.
func (s span) unit() bool {
	return s.min != nil && s.max != nil && !s.minOpen && !s.maxOpen && s.min.Equal(s.max)
}

func (s span) contains(v *Version) bool {
	if v.IsLocal() && !(s.unit() && s.min.IsLocal()) {
		return false
	}
	if s.min != nil {
		if c := v.Compare(s.min); c < 0 || c == 0 && s.minOpen {
			return false
		}
	}
	if s.max != nil {
		if c := v.Compare(s.max); c > 0 || c == 0 && s.maxOpen {
			return false
		}
	}
	return true
}

// Match reports whether v is in the constraint's version set.
func (c Constraint) Match(v *Version) bool {
	if c.empty {
		return false
	}
	if len(c.spans) == 0 {
		return true
	}
	for _, sp := range c.spans {
		if sp.contains(v) {
			return true
		}
	}
	return false
}

// IsAny reports whether the constraint matches every version.
func (c Constraint) IsAny() bool { return !c.empty && len(c.spans) == 0 }

// IsSatisfiable reports whether the constraint's version set is non-empty.
// It is a pure property of the constraint, independent of which versions
// any package happens to publish.
func (c Constraint) IsSatisfiable() bool { return !c.empty }

// Pin returns the single version the constraint admits, if it is an exact
// point constraint, and nil otherwise.
func (c Constraint) Pin() *Version {
	if !c.empty && len(c.spans) == 1 && c.spans[0].unit() {
		return c.spans[0].min
	}
	return nil
}

// MentionsPrerelease reports whether any span boundary is itself a
// pre-release or dev release written by the user, which under the usual
// PyPI policy makes pre-releases admissible for the dependency.
// Boundary sentinels synthesized by the specifier translation do not count.
func (c Constraint) MentionsPrerelease() bool {
	mentions := func(v *Version) bool {
		return v != nil && !v.sentinel && v.IsPrerelease()
	}
	for _, sp := range c.spans {
		if mentions(sp.min) || mentions(sp.max) {
			return true
		}
	}
	return false
}

// Intersect returns the constraint matching exactly the versions matched
// by both c and d. It is commutative and associative. Intersecting
// incompatible constraints yields NoVersion, not an error: an empty set is
// a legitimate value for the solver to observe and backtrack from.
func (c Constraint) Intersect(d Constraint) Constraint {
	if c.empty || d.empty {
		return NoVersion
	}
	if c.IsAny() {
		return d
	}
	if d.IsAny() {
		return c
	}
	var out []span
	for _, a := range c.spans {
		for _, b := range d.spans {
			if both, ok := a.intersect(b); ok {
				out = append(out, both)
			}
		}
	}
	if len(out) == 0 {
		return NoVersion
	}
	// Input spans are disjoint and sorted, so the pairwise intersections
	// are too; a merge pass is not needed.
	return Constraint{spans: out}
}

// intersect returns the overlap of two spans, if any.
func (s span) intersect(t span) (span, bool) {
	out := span{min: s.min, minOpen: s.minOpen, max: s.max, maxOpen: s.maxOpen}
	if t.min != nil {
		if out.min == nil {
			out.min, out.minOpen = t.min, t.minOpen
		} else if c := t.min.Compare(out.min); c > 0 {
			out.min, out.minOpen = t.min, t.minOpen
		} else if c == 0 {
			out.minOpen = out.minOpen || t.minOpen
		}
	}
	if t.max != nil {
		if out.max == nil {
			out.max, out.maxOpen = t.max, t.maxOpen
		} else if c := t.max.Compare(out.max); c < 0 {
			out.max, out.maxOpen = t.max, t.maxOpen
		} else if c == 0 {
			out.maxOpen = out.maxOpen || t.maxOpen
		}
	}
	if out.degenerate() {
		return span{}, false
	}
	return out, true
}

// String renders the constraint as its canonical span set, in the style
// "{[1.2:2.0),[3.0:3.0]}". An unbounded endpoint is left blank and the
// empty and universal sets render as "{}" and "{[:]}".
func (c Constraint) String() string {
	if c.empty {
		return "{}"
	}
	var b strings.Builder
	b.WriteByte('{')
	if len(c.spans) == 0 {
		b.WriteString("[:]")
	}
	for i, sp := range c.spans {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(sp.String())
	}
	b.WriteByte('}')
	return b.String()
}

func (s span) String() string {
	var b strings.Builder
	if s.minOpen {
		b.WriteByte('(')
	} else {
		b.WriteByte('[')
	}
	if s.min != nil {
		b.WriteString(s.min.Canon())
	}
	b.WriteByte(':')
	if s.max != nil {
		b.WriteString(s.max.Canon())
	}
	if s.maxOpen {
		b.WriteByte(')')
	} else {
		b.WriteByte(']')
	}
	return b.String()
}
