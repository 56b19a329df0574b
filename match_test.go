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
	"testing"

	"github.com/google/go-cmp/cmp"

	"deps.dev/util/pylock/pep440"
)

func TestMatchingVersions(t *testing.T) {
	published := []string{"0.9", "1.0a1", "1.0", "1.1", "2.0b1", "2.0.dev1"}
	var vs []*pep440.Version
	for _, s := range published {
		vs = append(vs, pep440.MustParse(s))
	}
	pep440.Sort(vs)

	tests := []struct {
		constraint string
		allowPre   bool
		want       []string
	}{
		{">=1.0", false, []string{"1.0", "1.1"}},
		{">=1.0", true, []string{"1.0", "1.1", "2.0.dev1", "2.0b1"}},
		// A constraint mentioning a pre-release admits pre-releases.
		{">=2.0b1", false, []string{"2.0b1"}},
		{">=2.0.dev1", false, []string{"2.0.dev1", "2.0b1"}},
		{"<1.0", false, []string{"0.9"}},
		{">3.0", false, nil},
	}
	for _, test := range tests {
		c := pep440.MustParseConstraint(test.constraint)
		var got []string
		for _, v := range MatchingVersions(c, vs, test.allowPre) {
			got = append(got, v.String())
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("MatchingVersions(%q, allowPre=%v): (- want, + got):\n%s",
				test.constraint, test.allowPre, diff)
		}
	}
}

func TestMatchingVersionsFallback(t *testing.T) {
	// Only pre-releases satisfy the constraint: they are admitted even
	// though nothing opted the package in.
	vs := []*pep440.Version{
		pep440.MustParse("0.9"),
		pep440.MustParse("1.0rc1"),
		pep440.MustParse("1.0rc2"),
	}
	got := MatchingVersions(pep440.MustParseConstraint(">=1.0"), vs, false)
	if len(got) != 2 || got[0].String() != "1.0rc1" || got[1].String() != "1.0rc2" {
		t.Errorf("MatchingVersions = %v, want [1.0rc1 1.0rc2]", got)
	}
}
