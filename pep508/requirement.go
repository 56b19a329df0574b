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

package pep508

import (
	"fmt"
	"sort"
	"strings"

	"deps.dev/util/pylock/pep440"
)

// Requirement is a parsed PEP 508 dependency specification.
type Requirement struct {
	// Name is the depended-on package, canonicalized per PEP 503.
	Name string
	// Extras are the requested extras, canonicalized and sorted.
	Extras []string
	// Constraint is the version constraint; the zero Constraint if the
	// requirement names no versions.
	Constraint pep440.Constraint
	// Marker is the environment marker, or nil if there is none.
	Marker *Marker

	str string
}

// CanonName returns the PEP 503 canonical form of a package or extra name:
// lower case, with every run of dots, dashes and underscores replaced by a
// single dash.
func CanonName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	sep := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '.' || c == '-' || c == '_' {
			sep = true
			continue
		}
		if sep {
			if b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
		}
		if 'A' <= c && c <= 'Z' {
			c |= 0x20
		}
		b.WriteByte(c)
	}
	return b.String()
}

// ParseRequirement parses a PEP 508 dependency specification such as
//
//	requests[security] >=2.8.1, ==2.8.* ; python_version < "3.11"
//
// URL requirements (the "name @ url" form) are not supported.
func ParseRequirement(raw string) (*Requirement, error) {
	input := strings.TrimSpace(raw)
	req := &Requirement{str: input}

	name, rest, err := parseName(input)
	if err != nil {
		return nil, fmt.Errorf("requirement %q: %w", raw, err)
	}
	req.Name = CanonName(name)
	rest = strings.TrimLeft(rest, " \t")

	if strings.HasPrefix(rest, "[") {
		extras, r, err := parseExtras(rest)
		if err != nil {
			return nil, fmt.Errorf("requirement %q: %w", raw, err)
		}
		req.Extras, rest = extras, strings.TrimLeft(r, " \t")
	}

	if strings.HasPrefix(rest, "@") {
		return nil, fmt.Errorf("requirement %q: URL requirements are not supported", raw)
	}

	spec := rest
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		spec, rest = rest[:i], rest[i+1:]
	} else {
		rest = ""
	}

	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "(") {
		if !strings.HasSuffix(spec, ")") {
			return nil, fmt.Errorf("requirement %q: unclosed version list", raw)
		}
		spec = spec[1 : len(spec)-1]
	}
	req.Constraint, err = pep440.ParseConstraint(spec)
	if err != nil {
		return nil, fmt.Errorf("requirement %q: %w", raw, err)
	}

	if rest != "" {
		m, err := ParseMarker(rest)
		if err != nil {
			return nil, fmt.Errorf("requirement %q: marker: %w", raw, err)
		}
		req.Marker = m
	}
	return req, nil
}

// MustParseRequirement is like ParseRequirement but panics on error.
// For tests and constants.
func MustParseRequirement(raw string) *Requirement {
	r, err := ParseRequirement(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// parseName reads a package name from the start of the input:
// letter or digit, then letters, digits, dots, dashes and underscores,
// ending with a letter or digit.
func parseName(input string) (name, rest string, err error) {
	i := 0
	for ; i < len(input); i++ {
		c := input[i]
		if isNameByte(c) || (i > 0 && (c == '.' || c == '-' || c == '_')) {
			continue
		}
		break
	}
	// Trailing separators belong to whatever follows, not the name.
	for i > 0 && !isNameByte(input[i-1]) {
		i--
	}
	if i == 0 {
		return "", "", fmt.Errorf("missing package name")
	}
	return input[:i], input[i:], nil
}

func isNameByte(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c|0x20 && c|0x20 <= 'z'
}

// parseExtras reads a bracketed extras list from the start of the input.
func parseExtras(input string) (extras []string, rest string, err error) {
	end := strings.IndexByte(input, ']')
	if end < 0 {
		return nil, "", fmt.Errorf("unclosed extras list")
	}
	seen := make(map[string]bool)
	for _, e := range strings.Split(input[1:end], ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			return nil, "", fmt.Errorf("empty extra name")
		}
		name, r, err := parseName(e)
		if err != nil || r != "" {
			return nil, "", fmt.Errorf("invalid extra name %q", e)
		}
		name = CanonName(name)
		if !seen[name] {
			seen[name] = true
			extras = append(extras, name)
		}
	}
	sort.Strings(extras)
	return extras, input[end+1:], nil
}

// String returns the requirement as it was written.
func (r *Requirement) String() string { return r.str }

// Evaluate reports whether the requirement applies under the environment
// and the requested extras (keyed by canonical name). A requirement with no
// marker always applies.
func (r *Requirement) Evaluate(env *Environment, extras map[string]bool) bool {
	if r.Marker == nil {
		return true
	}
	return r.Marker.Eval(env, extras)
}
