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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// buildClient constructs a LocalClient from a compact description mapping
// package name to version to requirement strings.
func buildClient(t *testing.T, universe map[string]map[string][]string) *LocalClient {
	t.Helper()
	lc := NewLocalClient()
	for name, versions := range universe {
		for v, reqs := range versions {
			var rs []*pep508.Requirement
			for _, r := range reqs {
				req, err := pep508.ParseRequirement(r)
				if err != nil {
					t.Fatalf("requirement %q: %v", r, err)
				}
				rs = append(rs, req)
			}
			lc.AddVersion(name, pep440.MustParse(v), rs)
		}
	}
	return lc
}

// mustResolve resolves the given root requirement strings, failing the test
// on any error.
func mustResolve(t *testing.T, c Client, opts Options, roots ...string) *Resolution {
	t.Helper()
	res, err := resolve(t, c, opts, roots...)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res
}

func resolve(t *testing.T, c Client, opts Options, roots ...string) (*Resolution, error) {
	t.Helper()
	reqs, err := ParseRequirements(roots)
	if err != nil {
		t.Fatalf("ParseRequirements: %v", err)
	}
	return NewResolver(c, opts).Resolve(context.Background(), reqs)
}

// pins flattens a resolution to "name version" strings, sorted by name.
func pins(res *Resolution) []string {
	var out []string
	for _, p := range res.Pins {
		out = append(out, p.Name+" "+p.Version.Canon())
	}
	return out
}

func TestResolveHighest(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"a": {
			"1.0": {"b >= 1.0"},
			"2.0": {"b >= 2.0"},
		},
		"b": {"1.0": nil, "2.0": nil, "2.5": nil},
	})
	res := mustResolve(t, lc, Options{}, "a")
	want := []string{"a 2.0", "b 2.5"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
}

func TestResolveNarrowing(t *testing.T) {
	// Two requirers narrow b below its highest version.
	lc := buildClient(t, map[string]map[string][]string{
		"a": {"1.0": {"b >= 1.0, < 2.0"}},
		"c": {"1.0": {"b != 1.5"}},
		"b": {"1.0": nil, "1.5": nil, "1.9": nil, "2.0": nil},
	})
	res := mustResolve(t, lc, Options{}, "a", "c")
	want := []string{"a 1.0", "b 1.9", "c 1.0"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
}

func TestResolveBackjump(t *testing.T) {
	// The highest menu needs a dropdown that pins icons to 2.0, which
	// conflicts with the root pin. The solver has to walk menu back.
	lc := buildClient(t, map[string]map[string][]string{
		"menu": {
			"1.0": {"dropdown < 2.0"},
			"1.5": {"dropdown >= 2.0"},
		},
		"dropdown": {
			"1.8": {"icons == 1.0"},
			"2.3": {"icons == 2.0"},
		},
		"icons": {"1.0": nil, "2.0": nil},
	})
	res := mustResolve(t, lc, Options{}, "menu", "icons == 1.0")
	want := []string{"dropdown 1.8", "icons 1.0", "menu 1.0"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
}

func TestResolveDeepBacktrack(t *testing.T) {
	// Only the lowest version of a is compatible with the root's pin on
	// d, via a chain of intermediaries.
	universe := map[string]map[string][]string{
		"a": {},
		"b": {},
		"d": {"1.0": nil, "2.0": nil, "3.0": nil},
	}
	for _, v := range []string{"1.0", "2.0", "3.0"} {
		universe["a"][v] = []string{"b == " + v}
		universe["b"][v] = []string{"d == " + v}
	}
	res := mustResolve(t, lc(t, universe), Options{}, "a", "d < 2.0")
	want := []string{"a 1.0", "b 1.0", "d 1.0"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
}

// lc is shorthand for buildClient in table-driven tests.
func lc(t *testing.T, universe map[string]map[string][]string) *LocalClient {
	t.Helper()
	return buildClient(t, universe)
}

func TestResolveUnsatisfiable(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"lib": {"1.0": nil, "2.0": nil},
		"app": {"1.0": {"lib == 2.0"}},
	})
	_, err := resolve(t, lc, Options{}, "app", "lib == 1.0")
	var unsat *UnsatisfiableError
	if !errors.As(err, &unsat) {
		t.Fatalf("Resolve error = %v, want UnsatisfiableError", err)
	}
	if unsat.Package != "lib" {
		t.Errorf("Package = %q, want lib", unsat.Package)
	}
	if unsat.Constraint.IsSatisfiable() {
		t.Errorf("Constraint = %v, want unsatisfiable", unsat.Constraint)
	}
	if len(unsat.Causes) != 2 {
		t.Fatalf("Causes = %v, want 2 entries", unsat.Causes)
	}
	msg := err.Error()
	for _, want := range []string{
		"cannot resolve lib",
		"(root) requires lib == 1.0 (via (root))",
		"app 1.0 requires lib == 2.0 (via (root) -> app 1.0)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error %q missing %q", msg, want)
		}
	}
}

func TestResolveVersionGap(t *testing.T) {
	// The effective constraint is satisfiable but nothing published
	// falls inside it.
	lc := buildClient(t, map[string]map[string][]string{
		"lib": {"1.0": nil, "2.0": nil},
	})
	_, err := resolve(t, lc, Options{}, "lib > 1.0, < 2.0")
	var unsat *UnsatisfiableError
	if !errors.As(err, &unsat) {
		t.Fatalf("Resolve error = %v, want UnsatisfiableError", err)
	}
	if !unsat.Constraint.IsSatisfiable() {
		t.Errorf("Constraint = %v, want satisfiable", unsat.Constraint)
	}
}

func TestResolvePackageNotFound(t *testing.T) {
	_, err := resolve(t, NewLocalClient(), Options{}, "ghost >= 1.0")
	var nf *PackageNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve error = %v, want PackageNotFoundError", err)
	}
	if nf.Package != "ghost" || !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want not-found for ghost", err)
	}

	// A transitive miss reports the chain that reached the package.
	c := buildClient(t, map[string]map[string][]string{
		"app": {"1.0": {"ghost >= 1.0"}},
	})
	delete(c.versions, "ghost") // AddVersion creates dependency packages
	_, err = resolve(t, c, Options{}, "app")
	if !errors.As(err, &nf) {
		t.Fatalf("Resolve error = %v, want PackageNotFoundError", err)
	}
	if got, want := nf.Error(), "package ghost (via (root) -> app 1.0)"; !strings.Contains(got, want) {
		t.Errorf("error %q missing %q", got, want)
	}
}

func TestResolveExtras(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"app": {"1.0": {`srv[fast] >= 1.0`}},
		"srv": {"1.0": {
			`zstd >= 1.0; extra == "fast"`,
			`sockets >= 1.0; extra == "ws"`,
			"base >= 1.0",
		}},
		"zstd":    {"1.0": nil},
		"sockets": {"1.0": nil},
		"base":    {"1.0": nil},
	})
	res := mustResolve(t, lc, Options{}, "app")
	want := []string{"app 1.0", "base 1.0", "srv 1.0", "zstd 1.0"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
	p, _ := res.Pin("srv")
	if diff := cmp.Diff([]string{"fast"}, p.Extras); diff != "" {
		t.Errorf("srv extras: (- want, + got):\n%s", diff)
	}
}

func TestResolveExtrasGrowLate(t *testing.T) {
	// srv is decided before app asks for its extra; its dependencies
	// must be reexpanded under the grown union.
	lc := buildClient(t, map[string]map[string][]string{
		"srv": {"1.0": {`zstd >= 1.0; extra == "fast"`}},
		"app": {"1.0": {`srv[fast] >= 1.0`}},
		"zstd": {"1.0": nil},
	})
	res := mustResolve(t, lc, Options{}, "srv", "app")
	want := []string{"app 1.0", "srv 1.0", "zstd 1.0"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
}

func TestResolveExtrasRetractOnBackjump(t *testing.T) {
	// a 2.0 requests p's fast extra, activating p's pin on b 2.0, and
	// then fails against the root pin on b 1.0. Walking a back must also
	// retract the extra-gated requirement, or the abandoned attempt keeps
	// constraining b.
	lc := buildClient(t, map[string]map[string][]string{
		"p": {"1.0": {`b == 2.0; extra == "fast"`}},
		"a": {
			"2.0": {"b == 2.0", `p[fast]`},
			"1.0": {"b == 1.0"},
		},
		"b": {"1.0": nil, "2.0": nil},
	})
	res := mustResolve(t, lc, Options{}, "p", "a", "b == 1.0")
	want := []string{"a 1.0", "b 1.0", "p 1.0"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
	p, _ := res.Pin("p")
	if len(p.Extras) != 0 || len(p.Deps) != 0 {
		t.Errorf("p pinned with extras %v deps %v after the extra was retracted", p.Extras, p.Deps)
	}
}

func TestResolveExtrasRetractDependency(t *testing.T) {
	// z is reachable only through p's fast extra, which only the
	// abandoned a 2.0 requested. It must not survive into the result.
	lc := buildClient(t, map[string]map[string][]string{
		"p": {"1.0": {`z >= 1.0; extra == "fast"`}},
		"a": {
			"2.0": {`p[fast]`, "b == 2.0"},
			"1.0": {"b == 1.0"},
		},
		"b": {"1.0": nil},
		"z": {"1.0": nil},
	})
	res := mustResolve(t, lc, Options{}, "p", "a", "b == 1.0")
	want := []string{"a 1.0", "b 1.0", "p 1.0"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
	if _, ok := res.Pin("z"); ok {
		t.Error("z pinned with no live requester of the fast extra")
	}
}

func TestResolveMarkers(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"app":   {"1.0": {`tomli >= 1.0; python_version < "3.11"`}},
		"tomli": {"1.0": nil},
	})

	old := pep508.DefaultEnvironment()
	old.PythonVersion = "3.10"
	res := mustResolve(t, lc, Options{Env: old}, "app")
	if _, ok := res.Pin("tomli"); !ok {
		t.Errorf("python 3.10: tomli not pinned: %v", pins(res))
	}

	newer := pep508.DefaultEnvironment()
	newer.PythonVersion = "3.12"
	res = mustResolve(t, lc, Options{Env: newer}, "app")
	if _, ok := res.Pin("tomli"); ok {
		t.Errorf("python 3.12: tomli pinned: %v", pins(res))
	}
}

func TestResolveRootMarker(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"posixlib": {"1.0": nil},
	})
	env := pep508.DefaultEnvironment()
	env.SysPlatform = "win32"
	res := mustResolve(t, lc, Options{Env: env}, `posixlib; sys_platform != "win32"`)
	if len(res.Roots) != 0 || len(res.Pins) != 0 {
		t.Errorf("got roots %v pins %v, want empty resolution", res.Roots, pins(res))
	}
}

func TestResolvePrereleases(t *testing.T) {
	universe := map[string]map[string][]string{
		"lib":  {"1.0": nil, "2.0b1": nil},
		"edge": {"0.1.dev3": nil},
	}
	tests := []struct {
		root string
		opts Options
		want string
	}{
		{"lib >= 1.0", Options{}, "lib 1.0"},
		{"lib >= 1.0", Options{AllowPrereleases: true}, "lib 2.0b1"},
		// Mentioning a pre-release opts the package in.
		{"lib >= 2.0b1", Options{}, "lib 2.0b1"},
		// Only pre-releases published: admitted as a fallback.
		{"edge", Options{}, "edge 0.1.dev3"},
	}
	for _, test := range tests {
		res := mustResolve(t, lc(t, universe), test.opts, test.root)
		if diff := cmp.Diff([]string{test.want}, pins(res)); diff != "" {
			t.Errorf("%q: (- want, + got):\n%s", test.root, diff)
		}
	}
}

func TestResolveLockedAndPrefer(t *testing.T) {
	universe := map[string]map[string][]string{
		"lib": {"1.0": nil, "1.1": nil, "2.0": nil},
	}
	v := func(s string) map[string]*pep440.Version {
		return map[string]*pep440.Version{"lib": pep440.MustParse(s)}
	}
	tests := []struct {
		name string
		root string
		opts Options
		want string
	}{
		{"locked holds", "lib >= 1.0", Options{Locked: v("1.1")}, "lib 1.1"},
		{"locked inadmissible", "lib >= 1.5", Options{Locked: v("1.1")}, "lib 2.0"},
		{"upgrade all", "lib >= 1.0", Options{Locked: v("1.1"), Upgrade: true}, "lib 2.0"},
		{"upgrade lib", "lib >= 1.0", Options{Locked: v("1.1"), Upgrade: true, UpgradePackages: []string{"lib"}}, "lib 2.0"},
		{"upgrade other", "lib >= 1.0", Options{Locked: v("1.1"), Upgrade: true, UpgradePackages: []string{"other"}}, "lib 1.1"},
		{"prefer", "lib >= 1.0", Options{Prefer: v("1.0")}, "lib 1.0"},
		{"prefer over locked", "lib >= 1.0", Options{Locked: v("1.1"), Prefer: v("1.0")}, "lib 1.0"},
	}
	for _, test := range tests {
		res := mustResolve(t, lc(t, universe), test.opts, test.root)
		if diff := cmp.Diff([]string{test.want}, pins(res)); diff != "" {
			t.Errorf("%s: (- want, + got):\n%s", test.name, diff)
		}
	}
}

func TestResolveCycle(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"ping": {"1.0": {"pong"}},
		"pong": {"1.0": {"ping"}},
		"self": {"1.0": {"self"}},
	})
	res := mustResolve(t, lc, Options{}, "ping", "self")
	want := []string{"ping 1.0", "pong 1.0", "self 1.0"}
	if diff := cmp.Diff(want, pins(res)); diff != "" {
		t.Errorf("pins: (- want, + got):\n%s", diff)
	}
}

func TestResolveProvenance(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"a": {"1.0": {"b >= 1.0", "c"}},
		"b": {"1.0": {"c"}},
		"c": {"2.0": nil},
	})
	res := mustResolve(t, lc, Options{}, "a")

	c, ok := res.Pin("c")
	if !ok {
		t.Fatal("c not pinned")
	}
	var requirers []string
	for _, a := range c.Requirers {
		requirers = append(requirers, a.String())
	}
	if diff := cmp.Diff([]string{"a 1.0", "b 1.0"}, requirers); diff != "" {
		t.Errorf("c requirers: (- want, + got):\n%s", diff)
	}

	wantString := `a==1.0  # via (root)
b==1.0  # via a
c==2.0  # via a, b
`
	if got := res.String(); got != wantString {
		t.Errorf("String() = %q, want %q", got, wantString)
	}

	wantTree := `a 1.0
  b 1.0
    c 2.0
  c 2.0 (*)
`
	if got := res.Tree(); got != wantTree {
		t.Errorf("Tree() = %q, want %q", got, wantTree)
	}
}

func TestResolveDeterministic(t *testing.T) {
	universe := map[string]map[string][]string{
		"a": {"1.0": {"c >= 1.0", "b >= 1.0"}},
		"b": {"1.0": {"d"}, "2.0": {"d"}},
		"c": {"1.0": {"d"}},
		"d": {"1.0": nil, "1.5": nil},
	}
	first := mustResolve(t, lc(t, universe), Options{}, "a").String()
	for i := 0; i < 5; i++ {
		if got := mustResolve(t, lc(t, universe), Options{}, "a").String(); got != first {
			t.Fatalf("run %d differs:\n%s\nwant:\n%s", i, got, first)
		}
	}
}

func TestResolveCanceled(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"lib": {"1.0": nil},
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewResolver(lc, Options{}).Resolve(ctx, []*pep508.Requirement{
		pep508.MustParseRequirement("lib"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve = %v, want context.Canceled", err)
	}
}

func TestResolveTooDeep(t *testing.T) {
	lc := buildClient(t, map[string]map[string][]string{
		"a": {"1.0": {"b"}},
		"b": {"1.0": {"c"}},
		"c": {"1.0": nil},
	})
	_, err := resolve(t, lc, Options{MaxAttempts: 2}, "a")
	if !errors.Is(err, ErrResolutionTooDeep) {
		t.Errorf("Resolve = %v, want ErrResolutionTooDeep", err)
	}
}
