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
	"strings"

	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// A ConflictCause is one requirement implicated in an unsatisfiable
// conflict, together with the requirement chain that led from the root to
// its requirer.
type ConflictCause struct {
	Requirer    Atom
	Requirement *pep508.Requirement
	// Chain runs from Root to the requirer.
	Chain []Atom
}

// An UnsatisfiableError reports that no version of a package can satisfy
// the requirements placed on it. It is a property of the input, not a
// transient failure: retrying cannot succeed. Causes holds every
// requirement live on the package when the conflict was found.
type UnsatisfiableError struct {
	// Package is the package no version of which was admissible.
	Package string
	// Constraint is the effective constraint on the package, the
	// intersection of the causes' constraints. It may be the empty set,
	// or a satisfiable set that no published version falls in.
	Constraint pep440.Constraint
	Causes     []ConflictCause
}

func unsatisfiable(d *deadEnd) *UnsatisfiableError {
	return &UnsatisfiableError{
		Package:    d.name,
		Constraint: d.constraint,
		Causes:     d.causes,
	}
}

// Error renders the conflict with one line per cause, in the style:
//
//	cannot resolve boto3: no version satisfies {[1.20:1.21.dev0)}
//	  (root) requires boto3<1.21 (via (root))
//	  aiobotocore 2.1.0 requires boto3==1.20.24 (via (root) -> aiobotocore 2.1.0)
func (e *UnsatisfiableError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cannot resolve %s: no version satisfies %v", e.Package, e.Constraint)
	for _, c := range e.Causes {
		fmt.Fprintf(&b, "\n  %v requires %v (via %s)", c.Requirer, c.Requirement, chainString(c.Chain))
	}
	return b.String()
}

// A PackageNotFoundError reports a requirement on a package the Client has
// no versions for, with the requirement chain that reached it.
type PackageNotFoundError struct {
	Package string
	Chain   []Atom
	Err     error
}

func (e *PackageNotFoundError) Error() string {
	return fmt.Sprintf("package %s (via %s): %v", e.Package, chainString(e.Chain), e.Err)
}

func (e *PackageNotFoundError) Unwrap() error { return e.Err }

func chainString(chain []Atom) string {
	if len(chain) == 0 {
		return Root.Name
	}
	parts := make([]string, len(chain))
	for i, a := range chain {
		parts[i] = a.String()
	}
	return strings.Join(parts, " -> ")
}
