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
Package lockfile reads and writes the TOML lock produced from a
resolution. The lock is deterministic: resolving the same inputs writes
byte-identical output, so locks diff cleanly under version control. An
inputs digest over the root requirements and the target environment lets a
later run detect whether the lock is stale before resolving anything.
*/
package lockfile

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sort"

	"github.com/BurntSushi/toml"

	"deps.dev/util/pylock"
	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// Lock is the on-disk form of a resolution.
type Lock struct {
	Meta     Meta      `toml:"meta"`
	Packages []Package `toml:"package"`
}

// Meta records what the lock was computed from.
type Meta struct {
	// Requires holds the root requirements as written, sorted.
	Requires []string `toml:"requires"`
	// InputsDigest is a sha256 over the root requirements and the target
	// environment. If it matches, the lock answers the same question the
	// caller is asking.
	InputsDigest string `toml:"inputs-digest"`
}

// Package is one pinned package.
type Package struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	// Extras are the extras enabled for the package, sorted.
	Extras []string `toml:"extras,omitempty"`
	// Dependencies are the canonical names of the packages this one
	// depends on in the lock, sorted.
	Dependencies []string `toml:"dependencies,omitempty"`
	// Via names the packages whose requirements pulled this one in,
	// sorted, with "(root)" for direct requirements.
	Via []string `toml:"via,omitempty"`
}

// New builds a Lock from a resolution and the environment it was resolved
// for.
func New(res *pylock.Resolution, env *pep508.Environment) *Lock {
	l := &Lock{}
	for _, req := range res.Roots {
		l.Meta.Requires = append(l.Meta.Requires, req.String())
	}
	sort.Strings(l.Meta.Requires)
	l.Meta.InputsDigest = InputsDigest(l.Meta.Requires, env)

	for _, pin := range res.Pins {
		p := Package{
			Name:         pin.Name,
			Version:      pin.Version.Canon(),
			Extras:       pin.Extras,
			Dependencies: pin.Deps,
		}
		for _, a := range pin.Requirers {
			p.Via = append(p.Via, a.Name)
		}
		sort.Strings(p.Via)
		p.Via = dedup(p.Via)
		l.Packages = append(l.Packages, p)
	}
	// Resolution pins are already sorted by name; keep the lock
	// independent of that detail.
	sort.Slice(l.Packages, func(i, j int) bool { return l.Packages[i].Name < l.Packages[j].Name })
	return l
}

// Write writes the lock as TOML. The output is deterministic for a given
// lock.
func (l *Lock) Write(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(l); err != nil {
		return fmt.Errorf("writing lock: %w", err)
	}
	return nil
}

// Read reads a TOML lock.
func Read(r io.Reader) (*Lock, error) {
	l := new(Lock)
	if _, err := toml.NewDecoder(r).Decode(l); err != nil {
		return nil, fmt.Errorf("reading lock: %w", err)
	}
	return l, nil
}

// Pins returns the locked versions keyed by canonical package name, in the
// form the resolver's Locked option takes.
func (l *Lock) Pins() (map[string]*pep440.Version, error) {
	pins := make(map[string]*pep440.Version, len(l.Packages))
	for _, p := range l.Packages {
		v, err := pep440.Parse(p.Version)
		if err != nil {
			return nil, fmt.Errorf("lock entry %s: %w", p.Name, err)
		}
		pins[pep508.CanonName(p.Name)] = v
	}
	return pins, nil
}

// Matches reports whether the lock was computed from the given root
// requirements and environment.
func (l *Lock) Matches(requires []string, env *pep508.Environment) bool {
	rs := append([]string(nil), requires...)
	sort.Strings(rs)
	return l.Meta.InputsDigest == InputsDigest(rs, env)
}

// InputsDigest computes the digest of the resolution inputs: the sorted
// root requirements and the environment marker values, in a fixed order.
func InputsDigest(requires []string, env *pep508.Environment) string {
	if env == nil {
		env = pep508.DefaultEnvironment()
	}
	h := sha256.New()
	for _, r := range requires {
		fmt.Fprintf(h, "require %s\n", r)
	}
	fmt.Fprintf(h, "os_name %s\n", env.OSName)
	fmt.Fprintf(h, "sys_platform %s\n", env.SysPlatform)
	fmt.Fprintf(h, "platform_machine %s\n", env.PlatformMachine)
	fmt.Fprintf(h, "platform_python_implementation %s\n", env.PlatformPythonImpl)
	fmt.Fprintf(h, "platform_release %s\n", env.PlatformRelease)
	fmt.Fprintf(h, "platform_system %s\n", env.PlatformSystem)
	fmt.Fprintf(h, "platform_version %s\n", env.PlatformVersion)
	fmt.Fprintf(h, "python_version %s\n", env.PythonVersion)
	fmt.Fprintf(h, "python_full_version %s\n", env.PythonFullVersion)
	fmt.Fprintf(h, "implementation_name %s\n", env.ImplementationName)
	fmt.Fprintf(h, "implementation_version %s\n", env.ImplementationVersion)
	return fmt.Sprintf("sha256:%x", h.Sum(nil))
}

func dedup(ss []string) []string {
	out := ss[:0]
	for i, s := range ss {
		if i == 0 || s != ss[i-1] {
			out = append(out, s)
		}
	}
	return out
}
