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
Package pep440 implements the PyPI version scheme defined by PEP 440
(https://www.python.org/dev/peps/pep-0440/): parsing and total ordering of
version identifiers, and an interval-set constraint algebra over them built
from the PEP 440 specifier operators.

Versions compare structurally, not textually. Release segments are
zero-padded for comparison, so "1.0" and "1.0.0" are equal. Pre-release
versions (including dev releases) order strictly before their corresponding
final release, and post-releases strictly after.
*/
package pep440

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Version is a parsed PEP 440 version identifier.
// Versions are immutable once created.
type Version struct {
	str string // Input as provided, surrounding space trimmed.

	epoch   int
	release []int // As written; comparison zero-pads.

	// Pre-release segment: pre is "", "a", "b" or "rc" after
	// canonicalization ("alpha" -> "a", "c" -> "rc", and so on).
	pre    string
	preNum int

	postPresent bool
	postNum     int

	devPresent bool
	devNum     int

	// Local version label, separators canonicalized to dots.
	local string

	// sentinel marks boundary versions synthesized by the specifier
	// translation rather than written by a user.
	sentinel bool
}

// preStrings lists the accepted pre-release spellings with their canonical
// forms. Longer spellings sharing a prefix must come first.
var preStrings = []struct{ text, canon string }{
	{"alpha", "a"},
	{"a", "a"},
	{"beta", "b"},
	{"b", "b"},
	{"preview", "rc"},
	{"pre", "rc"},
	{"rc", "rc"},
	{"c", "rc"},
}

// postStrings lists the accepted post-release spellings.
// Longer spellings sharing a prefix must come first.
var postStrings = []string{"post", "rev", "r"}

// Parse parses a PEP 440 version identifier.
func Parse(s string) (*Version, error) {
	v := &Version{str: strings.TrimSpace(s)}
	input := v.str
	for _, r := range input {
		if r <= ' ' || r >= 0x7F {
			return nil, fmt.Errorf("invalid character %q in %q", r, s)
		}
	}

	// Epoch, if any.
	if bang := strings.IndexByte(input, '!'); bang >= 0 {
		e, err := strconv.Atoi(input[:bang])
		if err != nil || e < 0 {
			return nil, fmt.Errorf("invalid epoch in %q", s)
		}
		v.epoch = e
		input = input[bang+1:]
	}

	// A single leading v is tolerated.
	if len(input) > 0 && (input[0] == 'v' || input[0] == 'V') {
		input = input[1:]
	}

	// Release segments.
	for {
		i := 0
		for i < len(input) && isDigit(input[i]) {
			i++
		}
		if i == 0 {
			break
		}
		n, err := strconv.Atoi(input[:i])
		if err != nil {
			return nil, fmt.Errorf("invalid release segment in %q", s)
		}
		v.release = append(v.release, n)
		input = input[i:]
		if !strings.HasPrefix(input, ".") || len(input) == 1 || !isDigit(input[1]) {
			break
		}
		input = input[1:]
	}
	if len(v.release) == 0 {
		return nil, fmt.Errorf("no release segments in %q", s)
	}

	var err error
	if input, err = v.parsePre(input); err != nil {
		return nil, err
	}
	if input, err = v.parsePost(input); err != nil {
		return nil, err
	}
	if input, err = v.parseDev(input); err != nil {
		return nil, err
	}
	if input, err = v.parseLocal(input); err != nil {
		return nil, err
	}
	if input != "" {
		return nil, fmt.Errorf("trailing text %q in version %q", input, s)
	}
	return v, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Version) parsePre(input string) (string, error) {
	rest := allowSeparator(input)
	for _, p := range preStrings {
		if hasPrefixFold(rest, p.text) {
			v.pre = p.canon
			v.preNum, rest = number(rest[len(p.text):])
			return rest, nil
		}
	}
	return input, nil
}

func (v *Version) parsePost(input string) (string, error) {
	if input == "" {
		return input, nil
	}
	dash := input[0] == '-'
	rest := allowSeparator(input)
	for _, p := range postStrings {
		if hasPrefixFold(rest, p) {
			v.postPresent = true
			v.postNum, rest = number(rest[len(p):])
			return rest, nil
		}
	}
	// A bare "-N" is an implicit post-release.
	if dash && len(rest) > 0 && isDigit(rest[0]) {
		v.postPresent = true
		v.postNum, rest = number(rest)
		return rest, nil
	}
	return input, nil
}

func (v *Version) parseDev(input string) (string, error) {
	rest := allowSeparator(input)
	if hasPrefixFold(rest, "dev") {
		v.devPresent = true
		v.devNum, rest = number(rest[len("dev"):])
		return rest, nil
	}
	return input, nil
}

func (v *Version) parseLocal(input string) (string, error) {
	if input == "" {
		return input, nil
	}
	if input[0] != '+' || len(input) < 2 {
		return input, nil
	}
	label := input[1:]
	for i := 0; i < len(label); i++ {
		c := label[i]
		if c != '.' && c != '-' && c != '_' && !isAlphanumeric(c) {
			return input, fmt.Errorf("invalid local version label in %q", v.str)
		}
	}
	if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
		return input, fmt.Errorf("invalid local version label in %q", v.str)
	}
	label = strings.ReplaceAll(label, "-", ".")
	label = strings.ReplaceAll(label, "_", ".")
	v.local = strings.ToLower(label)
	return "", nil
}

// allowSeparator skips a single optional dot, dash or underscore.
func allowSeparator(input string) string {
	if len(input) > 0 {
		if c := input[0]; c == '.' || c == '-' || c == '_' {
			return input[1:]
		}
	}
	return input
}

// number reads an optional decimal number, preceded by an optional
// separator, defaulting to zero.
func number(input string) (int, string) {
	input = allowSeparator(input)
	i := 0
	for i < len(input) && isDigit(input[i]) {
		i++
	}
	if i == 0 {
		return 0, input
	}
	n, _ := strconv.Atoi(input[:i])
	return n, input[i:]
}

func isDigit(c byte) bool        { return '0' <= c && c <= '9' }
func isAlphanumeric(c byte) bool { return isDigit(c) || 'a' <= c|0x20 && c|0x20 <= 'z' }

// hasPrefixFold reports whether str begins with the (lower-case, ASCII)
// pattern, ignoring case.
func hasPrefixFold(str, pat string) bool {
	if len(str) < len(pat) {
		return false
	}
	for i := 0; i < len(pat); i++ {
		if str[i]|0x20 != pat[i] {
			return false
		}
	}
	return true
}

// String returns the version as it was written.
func (v *Version) String() string { return v.str }

// Canon returns the canonical spelling of the version.
func (v *Version) Canon() string {
	var b strings.Builder
	if v.epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.epoch)
	}
	for i, n := range v.release {
		if i > 0 {
			b.WriteByte('.')
		}
		fmt.Fprintf(&b, "%d", n)
	}
	if v.pre != "" {
		fmt.Fprintf(&b, "%s%d", v.pre, v.preNum)
	}
	if v.postPresent {
		fmt.Fprintf(&b, ".post%d", v.postNum)
	}
	if v.devPresent {
		fmt.Fprintf(&b, ".dev%d", v.devNum)
	}
	if v.local != "" {
		fmt.Fprintf(&b, "+%s", v.local)
	}
	return b.String()
}

// IsPrerelease reports whether the version is a pre-release or dev release.
func (v *Version) IsPrerelease() bool { return v.pre != "" || v.devPresent }

// IsPostrelease reports whether the version is a post-release.
func (v *Version) IsPostrelease() bool { return v.postPresent }

// IsLocal reports whether the version carries a local version label.
func (v *Version) IsLocal() bool { return v.local != "" }

// releaseNum returns the i'th release segment, zero-padding past the end.
func (v *Version) releaseNum(i int) int {
	if i < len(v.release) {
		return v.release[i]
	}
	return 0
}

// The attachment ranks, in comparison order. A version has exactly one
// primary rank; dev releases attach below everything else at the same
// release and break ties last. For instance, 1.0.post0 > 1.0 > 1.0rc0 >
// 1.0b0 > 1.0a0 > 1.0.dev0.
const (
	rankDev = iota
	rankAlpha
	rankBeta
	rankRC
	rankFinal
	rankLocal
	rankPost
)

func (v *Version) rank() int {
	switch {
	case v.pre == "a":
		return rankAlpha
	case v.pre == "b":
		return rankBeta
	case v.pre == "rc":
		return rankRC
	case v.postPresent:
		return rankPost
	case v.devPresent:
		return rankDev
	case v.local != "":
		return rankLocal
	}
	return rankFinal
}

// Compare returns -1, 0 or 1 depending on whether v orders before, equal
// to, or after w in the PEP 440 total order.
func (v *Version) Compare(w *Version) int {
	if c := sgn(v.epoch, w.epoch); c != 0 {
		return c
	}
	n := len(v.release)
	if len(w.release) > n {
		n = len(w.release)
	}
	for i := 0; i < n; i++ {
		if c := sgn(v.releaseNum(i), w.releaseNum(i)); c != 0 {
			return c
		}
	}

	vr, wr := v.rank(), w.rank()
	if vr != wr {
		return sgn(vr, wr)
	}

	switch vr {
	case rankAlpha, rankBeta, rankRC:
		if c := sgn(v.preNum, w.preNum); c != 0 {
			return c
		}
	case rankPost:
		if c := sgn(v.postNum, w.postNum); c != 0 {
			return c
		}
	}

	// Dev can attach to a pre, post or final release and sorts before the
	// otherwise-identical version without it.
	if v.devPresent != w.devPresent {
		if v.devPresent {
			return -1
		}
		return 1
	}
	if v.devPresent {
		if c := sgn(v.devNum, w.devNum); c != 0 {
			return c
		}
	}
	return compareLocal(v.local, w.local)
}

// Equal reports whether the two versions compare equal, which is structural
// equality: "1.0" and "1.0.0" are equal.
func (v *Version) Equal(w *Version) bool { return v.Compare(w) == 0 }

// compareLocal compares local version labels elementwise: numeric elements
// are compared numerically and dominate textual ones, per PEP 440.
func compareLocal(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareLocalElem(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return sgn(len(as), len(bs))
}

func compareLocalElem(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	aNum, bNum := aerr == nil, berr == nil
	if aNum != bNum {
		if aNum {
			return 1
		}
		return -1
	}
	if aNum {
		return sgn(an, bn)
	}
	return strings.Compare(a, b)
}

func sgn(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Sort orders versions ascending, in place.
func Sort(vs []*Version) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Compare(vs[j]) < 0 })
}
