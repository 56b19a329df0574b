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

import "deps.dev/util/pylock/pep440"

// MatchingVersions returns the versions from vs that satisfy the
// constraint, ascending, honoring the PyPI pre-release admission policy:
// pre-releases and dev releases are admitted only if allowPrereleases is
// set, the constraint itself mentions a pre-release, or no final release
// satisfies the constraint at all. The last case mirrors pip: a package
// that has only ever published pre-releases is still installable.
func MatchingVersions(c pep440.Constraint, vs []*pep440.Version, allowPrereleases bool) []*pep440.Version {
	allowPre := allowPrereleases || c.MentionsPrerelease()
	var finals, pres []*pep440.Version
	for _, v := range vs {
		if !c.Match(v) {
			continue
		}
		if v.IsPrerelease() && !allowPre {
			pres = append(pres, v)
			continue
		}
		finals = append(finals, v)
	}
	if len(finals) == 0 {
		return pres
	}
	return finals
}

// highestFirst returns a copy of vs in descending order, the order the
// solver tries candidates in.
func highestFirst(vs []*pep440.Version) []*pep440.Version {
	out := make([]*pep440.Version, len(vs))
	for i, v := range vs {
		out[len(vs)-1-i] = v
	}
	return out
}
