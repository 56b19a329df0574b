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

	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// Root is the requirer of the root requirements.
var Root = Atom{Name: "(root)"}

// A contribution is one requirement placed on a package by one requirer.
// The same requirer may contribute several requirements to the same
// package (for instance via several marker-gated declarations).
type contribution struct {
	requirer Atom
	req      *pep508.Requirement
}

// A Graph accumulates the requirements placed on each package as the
// solver explores, and answers the derived questions: the effective
// constraint on a package (the intersection of every live requirement's
// constraint) and the extras requested for it (the union across live
// requirements). Contributions are added when a version's dependencies are
// expanded and removed when that decision is unwound, so at any moment the
// graph describes exactly the current search state.
type Graph struct {
	// contribs holds the live contributions per package, in arrival order.
	contribs map[string][]contribution
	// order records package discovery order, the solver's tie-break for
	// which package to decide next.
	order []string
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{contribs: make(map[string][]contribution)}
}

// AddRequirement records that requirer requires req.
func (g *Graph) AddRequirement(requirer Atom, req *pep508.Requirement) {
	if _, ok := g.contribs[req.Name]; !ok {
		g.order = append(g.order, req.Name)
	}
	g.contribs[req.Name] = append(g.contribs[req.Name], contribution{requirer, req})
}

// RemoveRequirements removes every contribution made by the requirer, as
// the exact inverse of the AddRequirement calls made when its dependencies
// were expanded. It returns the names of the packages that lost a
// contribution.
func (g *Graph) RemoveRequirements(requirer Atom) []string {
	var touched []string
	id := requirer.atomID()
	for _, name := range g.order {
		cs := g.contribs[name]
		keep := cs[:0]
		for _, c := range cs {
			if c.requirer.atomID() != id {
				keep = append(keep, c)
			}
		}
		if len(keep) != len(cs) {
			touched = append(touched, name)
			g.contribs[name] = keep
		}
	}
	return touched
}

// Constraint returns the effective constraint on the package: the
// intersection of every live requirement's constraint. A package with no
// live contributions is unconstrained.
func (g *Graph) Constraint(name string) pep440.Constraint {
	c := pep440.AnyVersion
	for _, contrib := range g.contribs[name] {
		c = c.Intersect(contrib.req.Constraint)
	}
	return c
}

// Extras returns the union of the extras requested for the package across
// its live contributions, sorted.
func (g *Graph) Extras(name string) []string {
	seen := make(map[string]bool)
	var extras []string
	for _, contrib := range g.contribs[name] {
		for _, e := range contrib.req.Extras {
			if !seen[e] {
				seen[e] = true
				extras = append(extras, e)
			}
		}
	}
	sort.Strings(extras)
	return extras
}

// Required reports whether the package has any live contribution.
func (g *Graph) Required(name string) bool {
	return len(g.contribs[name]) > 0
}

// Requirers returns the atoms with a live requirement on the package, in
// arrival order without duplicates.
func (g *Graph) Requirers(name string) []Atom {
	seen := make(map[string]bool)
	var atoms []Atom
	for _, c := range g.contribs[name] {
		if id := c.requirer.atomID(); !seen[id] {
			seen[id] = true
			atoms = append(atoms, c.requirer)
		}
	}
	return atoms
}

// requirements returns the live contributions on the package.
func (g *Graph) requirements(name string) []contribution {
	return g.contribs[name]
}

// packages returns the required packages in discovery order.
func (g *Graph) packages() []string {
	var names []string
	for _, name := range g.order {
		if len(g.contribs[name]) > 0 {
			names = append(names, name)
		}
	}
	return names
}

// An InvariantError reports that the solver's bookkeeping has been
// corrupted; it indicates a bug, not a property of the input.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("internal invariant violated: %s", e.Msg)
}

// checkBalanced verifies that undoing a requirer left no contribution
// behind, guarding the add/remove inverse property.
func (g *Graph) checkBalanced(requirer Atom) error {
	id := requirer.atomID()
	for name, cs := range g.contribs {
		for _, c := range cs {
			if c.requirer.atomID() == id {
				return &InvariantError{
					Msg: fmt.Sprintf("stale requirement %v on %s from %v", c.req, name, requirer),
				}
			}
		}
	}
	return nil
}
