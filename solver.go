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
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// Options configures a Resolver. The zero value resolves for the default
// environment, preferring the highest admissible version of every package.
type Options struct {
	// Env supplies the environment marker variables of the target
	// interpreter and platform. Nil means pep508.DefaultEnvironment.
	Env *pep508.Environment

	// AllowPrereleases admits pre-release and dev versions for every
	// package. Without it they are admitted per package only when a
	// constraint mentions a pre-release or nothing else matches.
	AllowPrereleases bool

	// Locked holds the versions pinned by an existing lock, keyed by
	// canonical package name. A locked version that still satisfies the
	// constraints is preferred over newer ones, keeping repeated
	// resolutions stable.
	Locked map[string]*pep440.Version

	// Upgrade ignores Locked for the packages named in UpgradePackages,
	// or for all packages if UpgradePackages is empty, so that they float
	// to the highest admissible version again.
	Upgrade         bool
	UpgradePackages []string

	// Prefer overrides the candidate order per package: the named version
	// is tried first when it is admissible. It takes precedence over
	// Locked.
	Prefer map[string]*pep440.Version

	// MaxAttempts caps the number of candidate installations before the
	// search is abandoned, guarding against pathological backtracking.
	// Zero means a generous default.
	MaxAttempts int

	// Logger receives a trace of decisions, backjumps and dead ends at
	// debug level. Nil disables tracing.
	Logger logrus.FieldLogger
}

const defaultMaxAttempts = 200000

// ErrResolutionTooDeep is reported when the search exceeds MaxAttempts.
var ErrResolutionTooDeep = errors.New("resolution too deep")

// A Resolver finds concrete versions satisfying root requirements. It is
// safe for concurrent use as long as its Client is.
type Resolver struct {
	client Client
	opts   Options
	env    *pep508.Environment
	log    logrus.FieldLogger
}

// NewResolver creates a Resolver fetching package data from the client.
func NewResolver(client Client, opts Options) *Resolver {
	env := opts.Env
	if env == nil {
		env = pep508.DefaultEnvironment()
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	return &Resolver{client: client, opts: opts, env: env, log: log}
}

// Resolve finds a version for every package transitively required by the
// root requirements. On an unsatisfiable input the returned error is an
// *UnsatisfiableError; an unknown package reports *PackageNotFoundError.
func (r *Resolver) Resolve(ctx context.Context, reqs []*pep508.Requirement) (*Resolution, error) {
	s := &solver{
		r:       r,
		graph:   NewGraph(),
		decided: make(map[string]int),
	}
	for _, req := range reqs {
		if !req.Evaluate(r.env, nil) {
			continue
		}
		s.graph.AddRequirement(Root, req)
	}
	return s.solve(ctx, reqs)
}

// A frame is one decision on the solver's stack: a package, the candidate
// currently installed for it, and the candidates not yet tried.
type frame struct {
	name      string
	atom      Atom
	remaining []*pep440.Version

	// raw holds the chosen version's declared dependencies as fetched;
	// applied holds the subset live in the graph under the extras and
	// environment in force.
	raw     []*pep508.Requirement
	applied []*pep508.Requirement
	// extras is the extras union the dependencies were expanded under.
	extras []string

	// cset accumulates the decision levels implicated in failures of the
	// subtree below this frame, for backjumping past it when it exhausts.
	cset map[int]bool
}

// A deadEnd captures a conflict at the moment it is discovered: the
// package, the effective constraint that admitted no candidate, and the
// live requirements on it with their chains from the root. The chains must
// be taken now because backjumping unwinds the graph they are read from.
type deadEnd struct {
	name       string
	constraint pep440.Constraint
	causes     []ConflictCause
	// decidedAt is the package's own decision level, or -1 if the package
	// was not yet decided when the conflict appeared.
	decidedAt int
}

type solver struct {
	r       *Resolver
	graph   *Graph
	frames  []*frame
	decided map[string]int // canonical package name to frame index

	pending  *deadEnd
	attempts int
}

const rootLevel = -1

// level returns the decision level of an atom: its frame index, or
// rootLevel for the root.
func (s *solver) level(a Atom) int {
	if a.atomID() == Root.atomID() {
		return rootLevel
	}
	if i, ok := s.decided[a.Name]; ok {
		return i
	}
	return rootLevel
}

func (s *solver) solve(ctx context.Context, roots []*pep508.Requirement) (*Resolution, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.pending != nil {
			if err := s.backjump(ctx); err != nil {
				return nil, err
			}
			continue
		}
		name, ok := s.nextUndecided()
		if !ok {
			return s.result(roots)
		}
		if err := s.decide(ctx, name); err != nil {
			return nil, err
		}
	}
}

// nextUndecided returns the first required package, in discovery order,
// that has no decision yet.
func (s *solver) nextUndecided() (string, bool) {
	for _, name := range s.graph.packages() {
		if _, ok := s.decided[name]; !ok {
			return name, true
		}
	}
	return "", false
}

// decide pushes a decision frame for the package and installs its first
// candidate. A package admitting no candidate becomes the pending dead
// end; an unknown package is a hard error.
func (s *solver) decide(ctx context.Context, name string) error {
	c := s.graph.Constraint(name)
	if !c.IsSatisfiable() {
		s.fail(name)
		return nil
	}
	vs, err := s.r.client.Versions(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return &PackageNotFoundError{Package: name, Chain: s.chainTo(name), Err: err}
	}
	if err != nil {
		return err
	}
	cands := s.orderCandidates(name, MatchingVersions(c, vs, s.r.opts.AllowPrereleases))
	if len(cands) == 0 {
		s.fail(name)
		return nil
	}
	f := &frame{name: name, remaining: cands, cset: make(map[int]bool)}
	s.frames = append(s.frames, f)
	s.decided[name] = len(s.frames) - 1
	return s.install(ctx, f)
}

// orderCandidates puts the matching versions (given ascending) into the
// order the solver should try them: any preferred version first, then the
// locked version unless the package is being upgraded, then highest first.
func (s *solver) orderCandidates(name string, matching []*pep440.Version) []*pep440.Version {
	cands := highestFirst(matching)
	if locked := s.r.opts.Locked[name]; locked != nil && !s.upgrading(name) {
		moveToFront(cands, locked)
	}
	if pref := s.r.opts.Prefer[name]; pref != nil {
		moveToFront(cands, pref)
	}
	return cands
}

func (s *solver) upgrading(name string) bool {
	if !s.r.opts.Upgrade {
		return false
	}
	if len(s.r.opts.UpgradePackages) == 0 {
		return true
	}
	for _, p := range s.r.opts.UpgradePackages {
		if pep508.CanonName(p) == name {
			return true
		}
	}
	return false
}

// moveToFront moves v to the front of cands if present.
func moveToFront(cands []*pep440.Version, v *pep440.Version) {
	for i, c := range cands {
		if c.Equal(v) {
			copy(cands[1:i+1], cands[:i])
			cands[0] = c
			return
		}
	}
}

// install takes the frame's next candidate and expands its dependencies.
func (s *solver) install(ctx context.Context, f *frame) error {
	s.attempts++
	if s.attempts > s.r.opts.MaxAttempts {
		return fmt.Errorf("%w: abandoned after %d attempts, last considering %s",
			ErrResolutionTooDeep, s.attempts-1, f.name)
	}
	v := f.remaining[0]
	f.remaining = f.remaining[1:]
	f.atom = Atom{Name: f.name, Version: v}
	s.r.log.WithFields(logrus.Fields{
		"package": f.name,
		"version": v.String(),
		"depth":   len(s.frames),
	}).Debug("selecting version")

	raw, err := s.r.client.Requirements(ctx, f.name, v)
	if errors.Is(err, ErrNotFound) {
		return &PackageNotFoundError{Package: f.name, Chain: s.chainTo(f.name), Err: err}
	}
	if err != nil {
		return err
	}
	f.raw = raw
	return s.apply(f)
}

// apply adds the frame's dependencies to the graph under the extras
// currently requested for it, then rechecks the packages they newly
// constrain. It is rerun when the frame's extras union grows: markers can
// only test extras with equality, so a grown union strictly widens the
// applicable set and reapplying is safe.
func (s *solver) apply(f *frame) error {
	f.extras = s.graph.Extras(f.name)
	extras := make(map[string]bool, len(f.extras))
	for _, e := range f.extras {
		extras[e] = true
	}
	f.applied = f.applied[:0]
	for _, req := range f.raw {
		if !req.Evaluate(s.r.env, extras) {
			continue
		}
		s.graph.AddRequirement(f.atom, req)
		f.applied = append(f.applied, req)
	}
	return s.recheck(f)
}

// recheck examines every package the frame requires: a decided package
// whose effective constraint no longer matches its chosen version becomes
// the pending dead end, and a decided package whose extras union grew has
// its dependencies reapplied.
func (s *solver) recheck(f *frame) error {
	// Reapplication below can reach back to f itself (dependency cycles
	// with extras), so iterate over a snapshot.
	applied := append([]*pep508.Requirement(nil), f.applied...)
	for _, req := range applied {
		idx, ok := s.decided[req.Name]
		if !ok {
			continue
		}
		tf := s.frames[idx]
		if !s.graph.Constraint(req.Name).Match(tf.atom.Version) {
			s.fail(req.Name)
			return nil
		}
		if !equalStrings(s.graph.Extras(req.Name), tf.extras) {
			s.r.log.WithFields(logrus.Fields{
				"package": req.Name,
				"extras":  s.graph.Extras(req.Name),
			}).Debug("reexpanding with grown extras")
			s.graph.RemoveRequirements(tf.atom)
			if err := s.apply(tf); err != nil {
				return err
			}
			if s.pending != nil {
				return nil
			}
		}
	}
	return nil
}

// reconcile reexpands every decided frame whose extras union changed after
// contributions were retracted: the mirror image of the grow path in
// recheck, which only runs while requirements are being added. skip is the
// frame currently unwound for its next candidate. Retraction only removes
// requirements, so reexpansion cascades to a fixpoint without creating new
// conflicts.
func (s *solver) reconcile(skip *frame) error {
	for changed := true; changed; {
		changed = false
		for _, f := range s.frames {
			if f == skip || equalStrings(s.graph.Extras(f.name), f.extras) {
				continue
			}
			s.r.log.WithFields(logrus.Fields{
				"package": f.name,
				"extras":  s.graph.Extras(f.name),
			}).Debug("reexpanding with retracted extras")
			s.graph.RemoveRequirements(f.atom)
			if err := s.apply(f); err != nil {
				return err
			}
			changed = true
		}
	}
	return nil
}

// fail records the conflict on the package as the pending dead end.
func (s *solver) fail(name string) {
	d := &deadEnd{
		name:       name,
		constraint: s.graph.Constraint(name),
		decidedAt:  rootLevel,
	}
	if idx, ok := s.decided[name]; ok {
		d.decidedAt = idx
	}
	for _, contrib := range s.graph.requirements(name) {
		d.causes = append(d.causes, ConflictCause{
			Requirer:    contrib.requirer,
			Requirement: contrib.req,
			Chain:       s.chainTo(contrib.requirer.Name),
		})
	}
	s.r.log.WithFields(logrus.Fields{
		"package":    name,
		"constraint": d.constraint.String(),
	}).Debug("dead end")
	s.pending = d
}

// backjump unwinds the stack to the deepest decision implicated in the
// pending dead end and tries its next candidate. A decision that is itself
// exhausted transfers its blame and the jump continues past it; running
// out of implicated decisions means the input is unsatisfiable.
func (s *solver) backjump(ctx context.Context) error {
	d := s.pending
	s.pending = nil

	cset := make(map[int]bool)
	for _, cause := range d.causes {
		s.implicate(cset, s.level(cause.Requirer))
	}
	s.implicate(cset, d.decidedAt)

	for {
		j := maxLevel(cset)
		if j <= rootLevel {
			return unsatisfiable(d)
		}
		s.popAbove(j)
		f := s.frames[j]
		if err := s.unwind(f); err != nil {
			return err
		}
		if err := s.reconcile(f); err != nil {
			return err
		}
		delete(cset, j)
		for l := range cset {
			f.cset[l] = true
		}
		if len(f.remaining) > 0 {
			s.r.log.WithFields(logrus.Fields{
				"package": f.name,
				"depth":   j,
			}).Debug("backjumping")
			return s.install(ctx, f)
		}
		// This decision is exhausted: every requirer of its package, and
		// every level its own subtree blamed, inherits the conflict.
		for l := range f.cset {
			cset[l] = true
		}
		for _, a := range s.graph.Requirers(f.name) {
			s.implicate(cset, s.level(a))
		}
		delete(cset, j)
		s.frames = s.frames[:j]
		delete(s.decided, f.name)
	}
}

// popAbove removes every frame deeper than level j, undoing its
// requirement contributions.
func (s *solver) popAbove(j int) {
	for i := len(s.frames) - 1; i > j; i-- {
		f := s.frames[i]
		s.graph.RemoveRequirements(f.atom)
		delete(s.decided, f.name)
	}
	s.frames = s.frames[:j+1]
}

// unwind removes the frame's own contributions, leaving the frame in
// place for its next candidate, and verifies the graph balanced out.
func (s *solver) unwind(f *frame) error {
	s.graph.RemoveRequirements(f.atom)
	if err := s.graph.checkBalanced(f.atom); err != nil {
		return err
	}
	f.applied = nil
	f.raw = nil
	return nil
}

// chainTo returns a requirement chain from the root to the named package,
// for error reports. The chain starts at Root; an atom for the package
// itself is appended when it has a decision.
func (s *solver) chainTo(name string) []Atom {
	if name == Root.Name {
		return []Atom{Root}
	}
	var chain []Atom
	visited := map[string]bool{name: true}
	cur := name
	for {
		req := s.graph.Requirers(cur)
		if len(req) == 0 {
			break
		}
		parent := req[0]
		if parent.atomID() == Root.atomID() {
			break
		}
		if visited[parent.Name] {
			break
		}
		visited[parent.Name] = true
		chain = append([]Atom{parent}, chain...)
		cur = parent.Name
	}
	chain = append([]Atom{Root}, chain...)
	if idx, ok := s.decided[name]; ok {
		chain = append(chain, s.frames[idx].atom)
	}
	return chain
}

// implicate adds the decision level to the conflict set along with,
// transitively, the levels of the requirers of its package: both the
// constraint and the extras union on a package flow from its requirers, so
// changing any of them could lift the conflict.
func (s *solver) implicate(cset map[int]bool, l int) {
	if l <= rootLevel || cset[l] {
		return
	}
	cset[l] = true
	for _, a := range s.graph.Requirers(s.frames[l].name) {
		s.implicate(cset, s.level(a))
	}
}

func maxLevel(set map[int]bool) int {
	max := rootLevel
	for l := range set {
		if l > max {
			max = l
		}
	}
	return max
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
