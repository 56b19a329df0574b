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
	"sync"

	"github.com/golang/groupcache/lru"

	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// Client defines an interface to fetch the data needed for dependency
// resolutions. Package names passed to a Client are canonical per PEP 503.
type Client interface {
	// Versions returns all the known versions of a package, sorted
	// ascending. It reports ErrNotFound for an unknown package.
	Versions(ctx context.Context, name string) ([]*pep440.Version, error)
	// Requirements returns the declared dependencies of a concrete
	// version, including ones gated behind extras or environment markers;
	// the resolver decides which of them apply.
	Requirements(ctx context.Context, name string, version *pep440.Version) ([]*pep508.Requirement, error)
}

// ErrNotFound is returned by Clients to indicate the requested data could not
// be located.
var ErrNotFound = errors.New("not found")

// LocalClient is a Client that serves package data from memory.
type LocalClient struct {
	// versions holds all the known versions of every package, sorted.
	versions map[string][]*pep440.Version
	// requirements holds the direct dependencies of every version.
	requirements map[string][]*pep508.Requirement
}

// NewLocalClient creates a new, empty, LocalClient.
func NewLocalClient() *LocalClient {
	return &LocalClient{
		versions:     make(map[string][]*pep440.Version),
		requirements: make(map[string][]*pep508.Requirement),
	}
}

// AddVersion adds a version to the client along with its direct
// dependencies. Any existing equal version is replaced. Also ensures all
// packages in the dependencies have an entry in the versions map, although
// it may be empty.
func (lc *LocalClient) AddVersion(name string, v *pep440.Version, reqs []*pep508.Requirement) {
	name = pep508.CanonName(name)
	atom := Atom{Name: name, Version: v}

	versions := lc.versions[name]
	existed := false
	for i, w := range versions {
		if w.Equal(v) {
			existed = true
			versions[i] = v
		}
	}
	if !existed {
		versions = append(versions, v)
		pep440.Sort(versions)
	}
	lc.versions[name] = versions
	lc.requirements[atom.atomID()] = reqs

	// Ensure dependency packages exist, even though we might not have
	// versions for them.
	for _, r := range reqs {
		if _, ok := lc.versions[r.Name]; !ok {
			lc.versions[r.Name] = []*pep440.Version{}
		}
	}
}

// AddPackage ensures the package exists, possibly with no versions.
func (lc *LocalClient) AddPackage(name string) {
	name = pep508.CanonName(name)
	if _, ok := lc.versions[name]; !ok {
		lc.versions[name] = []*pep440.Version{}
	}
}

// Versions implements Client, returning all of the known versions of the
// given package.
func (lc *LocalClient) Versions(ctx context.Context, name string) ([]*pep440.Version, error) {
	if vs, ok := lc.versions[name]; ok {
		return vs, nil
	}
	return nil, fmt.Errorf("package %s: %w", name, ErrNotFound)
}

// Requirements implements Client, returning the direct dependencies of a
// version.
func (lc *LocalClient) Requirements(ctx context.Context, name string, v *pep440.Version) ([]*pep508.Requirement, error) {
	atom := Atom{Name: name, Version: v}
	if reqs, ok := lc.requirements[atom.atomID()]; ok {
		return reqs, nil
	}
	return nil, fmt.Errorf("version %v: %w", atom, ErrNotFound)
}

// CachingClient is a Client that memoizes the results of another Client,
// including ErrNotFound responses. Backtracking revisits the same packages
// many times, so even a modest cache removes nearly all repeat fetches. It
// is safe for concurrent use.
type CachingClient struct {
	c Client

	// mu controls access to both caches.
	mu           sync.Mutex
	versions     *lru.Cache
	requirements *lru.Cache
}

// cachingClientEntries is the per-cache capacity of a CachingClient.
// Comfortably more packages than any realistic resolution touches.
const cachingClientEntries = 16384

type versionsResult struct {
	versions []*pep440.Version
	err      error
}

type requirementsResult struct {
	requirements []*pep508.Requirement
	err          error
}

// NewCachingClient creates a CachingClient wrapping the provided Client.
func NewCachingClient(c Client) *CachingClient {
	return &CachingClient{
		c:            c,
		versions:     lru.New(cachingClientEntries),
		requirements: lru.New(cachingClientEntries),
	}
}

func (cc *CachingClient) Versions(ctx context.Context, name string) ([]*pep440.Version, error) {
	cc.mu.Lock()
	if r, ok := cc.versions.Get(name); ok {
		cc.mu.Unlock()
		res := r.(versionsResult)
		return res.versions, res.err
	}
	cc.mu.Unlock()

	vs, err := cc.c.Versions(ctx, name)
	if err == nil || errors.Is(err, ErrNotFound) {
		cc.mu.Lock()
		cc.versions.Add(name, versionsResult{vs, err})
		cc.mu.Unlock()
	}
	return vs, err
}

func (cc *CachingClient) Requirements(ctx context.Context, name string, v *pep440.Version) ([]*pep508.Requirement, error) {
	key := Atom{Name: name, Version: v}.atomID()
	cc.mu.Lock()
	if r, ok := cc.requirements.Get(key); ok {
		cc.mu.Unlock()
		res := r.(requirementsResult)
		return res.requirements, res.err
	}
	cc.mu.Unlock()

	reqs, err := cc.c.Requirements(ctx, name, v)
	if err == nil || errors.Is(err, ErrNotFound) {
		cc.mu.Lock()
		cc.requirements.Add(key, requirementsResult{reqs, err})
		cc.mu.Unlock()
	}
	return reqs, err
}
