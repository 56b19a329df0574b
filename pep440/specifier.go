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
	"math"
	"strings"
)

// Op identifies a PEP 440 specifier operator.
type Op int

const (
	OpEqual        Op = iota // ==, including the ==X.Y.* prefix form
	OpNotEqual               // !=, including the !=X.Y.* prefix form
	OpLessEqual              // <=
	OpGreaterEqual           // >=
	OpLess                   // <
	OpGreater                // >
	OpCompatible             // ~=
	OpArbitrary              // ===
)

func (o Op) String() string {
	switch o {
	case OpEqual:
		return "=="
	case OpNotEqual:
		return "!="
	case OpLessEqual:
		return "<="
	case OpGreaterEqual:
		return ">="
	case OpLess:
		return "<"
	case OpGreater:
		return ">"
	case OpCompatible:
		return "~="
	case OpArbitrary:
		return "==="
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Specifier is a single parsed version clause, such as ">=1.2" or "==1.4.*".
type Specifier struct {
	Op      Op
	Version *Version
	// Prefix indicates the trailing ".*" wildcard form, valid only with
	// OpEqual and OpNotEqual. The wildcard itself is not part of Version.
	Prefix bool
}

// specifierOps maps operator spellings to operators, longest spelling first
// so that "===" is not read as "==" followed by "=".
var specifierOps = []struct {
	text string
	op   Op
}{
	{"===", OpArbitrary},
	{"==", OpEqual},
	{"!=", OpNotEqual},
	{"<=", OpLessEqual},
	{">=", OpGreaterEqual},
	{"~=", OpCompatible},
	{"<", OpLess},
	{">", OpGreater},
}

// ParseSpecifier parses a single version specifier clause.
//
// The === operator is specified by PEP 440 as a string-equality escape
// hatch for versions the scheme cannot express. Every version this package
// reaches has already been parsed, so === is accepted only for parseable
// versions and then behaves as structural equality.
func ParseSpecifier(s string) (Specifier, error) {
	s = strings.TrimSpace(s)
	var spec Specifier
	found := false
	for _, o := range specifierOps {
		if strings.HasPrefix(s, o.text) {
			spec.Op = o.op
			s = strings.TrimSpace(s[len(o.text):])
			found = true
			break
		}
	}
	if !found {
		return Specifier{}, fmt.Errorf("missing operator in specifier %q", s)
	}
	if strings.HasSuffix(s, ".*") {
		if spec.Op != OpEqual && spec.Op != OpNotEqual {
			return Specifier{}, fmt.Errorf("prefix match not allowed with %s: %q", spec.Op, s)
		}
		spec.Prefix = true
		s = strings.TrimSuffix(s, ".*")
	}
	v, err := Parse(s)
	if err != nil {
		return Specifier{}, err
	}
	if spec.Prefix && (v.pre != "" || v.postPresent || v.devPresent || v.local != "") {
		return Specifier{}, fmt.Errorf("prefix match requires a plain release: %q", s)
	}
	if spec.Op == OpCompatible {
		if len(v.release) < 2 {
			return Specifier{}, fmt.Errorf("~= requires at least two release segments: %q", s)
		}
		if v.local != "" {
			return Specifier{}, fmt.Errorf("~= cannot take a local version: %q", s)
		}
	}
	if v.local != "" && spec.Op != OpEqual && spec.Op != OpNotEqual && spec.Op != OpArbitrary {
		return Specifier{}, fmt.Errorf("local version not allowed with %s: %q", spec.Op, s)
	}
	spec.Version = v
	return spec, nil
}

func (s Specifier) String() string {
	if s.Prefix {
		return s.Op.String() + s.Version.String() + ".*"
	}
	return s.Op.String() + s.Version.String()
}

// infNum stands in for an unbounded numeric suffix when building sentinel
// boundary versions.
const infNum = math.MaxInt32

// devFloor returns the least version sharing v's epoch and release: its
// dev0 release. It is the exclusive upper bound for "<v" and the inclusive
// lower bound of a prefix match, so that "<1.0" rejects 1.0rc1 and
// "==1.2.*" admits 1.2.dev3.
func devFloor(epoch int, release []int) *Version {
	v := &Version{epoch: epoch, release: release, devPresent: true, sentinel: true}
	v.str = v.Canon()
	return v
}

// postCeiling returns the greatest version sharing v's epoch and release,
// a sentinel post-release. It makes ">v" reject post-releases and local
// versions of v, per PEP 440.
func postCeiling(epoch int, release []int) *Version {
	v := &Version{epoch: epoch, release: release, postPresent: true, postNum: infNum, local: "~", sentinel: true}
	v.str = v.Canon()
	return v
}

// bumpRelease returns release with its final segment incremented.
func bumpRelease(release []int) []int {
	next := make([]int, len(release))
	copy(next, release)
	next[len(next)-1]++
	return next
}

// spans translates the specifier into its interval form.
func (s Specifier) spans() []span {
	v := s.Version
	switch s.Op {
	case OpEqual:
		if s.Prefix {
			// [X.Y.dev0, X.(Y+1).dev0)
			return []span{{
				min:     devFloor(v.epoch, v.release),
				max:     devFloor(v.epoch, bumpRelease(v.release)),
				maxOpen: true,
			}}
		}
		return []span{{min: v, max: v}}
	case OpNotEqual:
		if s.Prefix {
			return []span{
				{max: devFloor(v.epoch, v.release), maxOpen: true},
				{min: devFloor(v.epoch, bumpRelease(v.release))},
			}
		}
		return []span{
			{max: v, maxOpen: true},
			{min: v, minOpen: true},
		}
	case OpLessEqual:
		return []span{{max: v}}
	case OpGreaterEqual:
		return []span{{min: v}}
	case OpLess:
		if v.IsPrerelease() || v.postPresent || v.local != "" {
			return []span{{max: v, maxOpen: true}}
		}
		// An exclusive upper bound also excludes pre-releases of the
		// bound itself.
		return []span{{max: devFloor(v.epoch, v.release), maxOpen: true}}
	case OpGreater:
		if v.IsPrerelease() || v.postPresent || v.local != "" {
			return []span{{min: v, minOpen: true}}
		}
		// An exclusive lower bound also excludes post-releases and local
		// versions of the bound itself.
		return []span{{min: postCeiling(v.epoch, v.release), minOpen: true}}
	case OpCompatible:
		// ~=X.Y.Z is >=X.Y.Z, ==X.Y.*
		return []span{{
			min:     v,
			max:     devFloor(v.epoch, bumpRelease(v.release[:len(v.release)-1])),
			maxOpen: true,
		}}
	case OpArbitrary:
		return []span{{min: v, max: v}}
	}
	return nil
}
