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

package pylock

import (
	"fmt"
	"sort"
	"strings"

	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// A Pin is one fully resolved package: the chosen version, the extras that
// ended up enabled for it, and the provenance of the decision.
type Pin struct {
	Name    string
	Version *pep440.Version
	Extras  []string
	// Requirers are the atoms whose requirements kept this pin in the
	// result; Root for direct requirements.
	Requirers []Atom
	// Deps are the canonical names of the packages this pin's applicable
	// requirements target, sorted.
	Deps []string
}

// Atom returns the pin's (package, version) pair.
func (p Pin) Atom() Atom { return Atom{Name: p.Name, Version: p.Version} }

// A Resolution is a complete, consistent assignment: exactly one pin per
// package reachable from the root requirements.
type Resolution struct {
	// Roots are the requirements the resolution was computed for, with
	// any whose markers do not apply to the environment already removed.
	Roots []*pep508.Requirement
	// Pins is sorted by package name.
	Pins []Pin

	byName map[string]int
}

// result assembles the Resolution from the solver's final state, keeping
// only the packages still reachable from the root requirements: decisions
// whose every requirer was backtracked away are dropped.
func (s *solver) result(roots []*pep508.Requirement) (*Resolution, error) {
	res := &Resolution{byName: make(map[string]int)}
	for _, req := range roots {
		if req.Evaluate(s.r.env, nil) {
			res.Roots = append(res.Roots, req)
		}
	}

	// Breadth-first from the roots over applied requirement edges.
	var queue []string
	seen := make(map[string]bool)
	for _, req := range res.Roots {
		if !seen[req.Name] {
			seen[req.Name] = true
			queue = append(queue, req.Name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		idx, ok := s.decided[name]
		if !ok {
			return nil, &InvariantError{Msg: fmt.Sprintf("required package %s has no decision", name)}
		}
		f := s.frames[idx]
		if !s.graph.Constraint(name).Match(f.atom.Version) {
			return nil, &InvariantError{
				Msg: fmt.Sprintf("pin %v violates constraint %v", f.atom, s.graph.Constraint(name)),
			}
		}
		pin := Pin{
			Name:      name,
			Version:   f.atom.Version,
			Extras:    f.extras,
			Requirers: s.graph.Requirers(name),
		}
		depSeen := make(map[string]bool)
		for _, req := range f.applied {
			if !depSeen[req.Name] {
				depSeen[req.Name] = true
				pin.Deps = append(pin.Deps, req.Name)
			}
			if !seen[req.Name] {
				seen[req.Name] = true
				queue = append(queue, req.Name)
			}
		}
		sort.Strings(pin.Deps)
		res.Pins = append(res.Pins, pin)
	}

	sort.Slice(res.Pins, func(i, j int) bool { return res.Pins[i].Name < res.Pins[j].Name })
	for i, p := range res.Pins {
		res.byName[p.Name] = i
	}
	return res, nil
}

// Pin returns the pin for the named package, if present.
func (r *Resolution) Pin(name string) (Pin, bool) {
	if i, ok := r.byName[pep508.CanonName(name)]; ok {
		return r.Pins[i], true
	}
	return Pin{}, false
}

// String renders the resolution in the flat pinned style of a compiled
// requirements file, one "name==version  # via ..." line per pin.
func (r *Resolution) String() string {
	var b strings.Builder
	for _, p := range r.Pins {
		name := p.Name
		if len(p.Extras) > 0 {
			name += "[" + strings.Join(p.Extras, ",") + "]"
		}
		fmt.Fprintf(&b, "%s==%s", name, p.Version.Canon())
		var via []string
		for _, a := range p.Requirers {
			via = append(via, a.Name)
		}
		sort.Strings(via)
		fmt.Fprintf(&b, "  # via %s\n", strings.Join(via, ", "))
	}
	return b.String()
}

// Tree renders the resolution as an indented dependency tree from the
// roots. A package that already appeared higher in the tree is printed
// with a trailing "(*)" and not expanded again, which also cuts cycles.
func (r *Resolution) Tree() string {
	var b strings.Builder
	printed := make(map[string]bool)
	var walk func(name string, depth int)
	walk = func(name string, depth int) {
		p, ok := r.Pin(name)
		if !ok {
			return
		}
		fmt.Fprintf(&b, "%s%s %s", strings.Repeat("  ", depth), p.Name, p.Version.Canon())
		if printed[name] {
			b.WriteString(" (*)\n")
			return
		}
		b.WriteByte('\n')
		printed[name] = true
		for _, dep := range p.Deps {
			walk(dep, depth+1)
		}
	}
	for _, req := range r.Roots {
		walk(req.Name, 0)
	}
	return b.String()
}
