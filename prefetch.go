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
	"sync"

	"deps.dev/util/pylock/pep508"
)

// Prefetch warms a caching Client before resolution by walking the likely
// dependency graph concurrently: for each requirement it fetches the
// package's versions, speculatively follows the highest admissible one,
// and recurses into its requirements. The walk is a heuristic, not a
// resolution: it may fetch versions the solver never tries and miss ones
// it backtracks to, but it front-loads most of the network round trips.
// Fetch failures are ignored; the resolver will surface them properly.
//
// workers bounds the number of concurrent fetches; zero means a default.
func Prefetch(ctx context.Context, c Client, env *pep508.Environment, reqs []*pep508.Requirement, workers int) {
	if workers <= 0 {
		workers = 8
	}
	if env == nil {
		env = pep508.DefaultEnvironment()
	}
	p := &prefetcher{
		c:    c,
		env:  env,
		seen: make(map[string]bool),
		sem:  make(chan struct{}, workers),
	}
	for _, req := range reqs {
		p.enqueue(ctx, req)
	}
	p.wg.Wait()
}

type prefetcher struct {
	c   Client
	env *pep508.Environment

	mu   sync.Mutex
	seen map[string]bool

	wg  sync.WaitGroup
	sem chan struct{}
}

func (p *prefetcher) enqueue(ctx context.Context, req *pep508.Requirement) {
	p.mu.Lock()
	if p.seen[req.Name] {
		p.mu.Unlock()
		return
	}
	p.seen[req.Name] = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-p.sem }()
		p.fetch(ctx, req)
	}()
}

func (p *prefetcher) fetch(ctx context.Context, req *pep508.Requirement) {
	vs, err := p.c.Versions(ctx, req.Name)
	if err != nil || len(vs) == 0 {
		return
	}
	matching := MatchingVersions(req.Constraint, vs, false)
	if len(matching) == 0 {
		return
	}
	// Follow the solver's first choice: the highest match. Speculatively
	// enable the requirement's extras so extra-gated dependencies are
	// warmed too.
	v := matching[len(matching)-1]
	deps, err := p.c.Requirements(ctx, req.Name, v)
	if err != nil {
		return
	}
	extras := make(map[string]bool, len(req.Extras))
	for _, e := range req.Extras {
		extras[e] = true
	}
	for _, d := range deps {
		if d.Evaluate(p.env, extras) {
			p.enqueue(ctx, d)
		}
	}
}
