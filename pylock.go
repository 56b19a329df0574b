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

/*
Package pylock resolves PyPI dependencies: given a set of root
requirements it finds one concrete version for every package they
transitively require, such that every requirement's version constraint is
satisfied by the chosen version of its target, with environment markers
evaluated against a single target environment and extras accumulated from
all requirers.

Resolution is a backtracking search. Candidate versions are tried highest
first, and when a package's accumulated constraints admit no candidate the
solver backjumps to the most recent decision that contributed to the
conflict rather than blindly to the previous one. An unsatisfiable run
fails with an error that names the packages involved and the requirement
chains from the roots that produced the conflict.

Package metadata is supplied by a Client. LocalClient serves from memory,
APIClient from the deps.dev Insights API, and CachingClient memoizes any
other Client.
*/
package pylock

import (
	"fmt"
	"sort"
	"strings"

	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// An Atom is a concrete (package, version) pair, the unit of a resolver
// decision. Names are canonical per PEP 503.
type Atom struct {
	Name    string
	Version *pep440.Version
}

func (a Atom) String() string {
	if a.Version == nil {
		return a.Name
	}
	return a.Name + " " + a.Version.String()
}

// atomID returns a map key identifying the atom. Versions are keyed by
// canonical spelling so "1.0" and "1.0.0" denote the same decision.
func (a Atom) atomID() string {
	if a.Version == nil {
		return a.Name
	}
	return a.Name + " " + a.Version.Canon()
}

// SortAtoms orders atoms by name then ascending version, in place.
func SortAtoms(atoms []Atom) {
	sort.Slice(atoms, func(i, j int) bool {
		if atoms[i].Name != atoms[j].Name {
			return atoms[i].Name < atoms[j].Name
		}
		return atoms[i].Version.Compare(atoms[j].Version) < 0
	})
}

// ParseRequirements parses a list of PEP 508 requirement strings, such as
// the contents of a requirements.in, skipping blank lines and # comments.
func ParseRequirements(lines []string) ([]*pep508.Requirement, error) {
	var reqs []*pep508.Requirement
	for _, line := range lines {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		req, err := pep508.ParseRequirement(line)
		if err != nil {
			return nil, fmt.Errorf("parsing requirements: %w", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
