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
Package resolvetest provides a way to define test data for the resolver.

Test data follows a simple format that describes universes: entire package
indexes, small enough to write inline in a test.

	Below is the definition of two universes, one named sample, the other
	named other. A package name starts at the left margin, its versions are
	indented one tab, and each version's requirements are indented two
	tabs, written as PEP 508 dependency specifications.

	-- universe sample
	alice
		1.0.0
			bob>=1
	bob
		1.0.0
		2.0.0
	-- end

	-- universe other
	eve
		1.0.0
			bob[fast]>=1 ; python_version >= "3.8"
	-- end
*/
package resolvetest

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"deps.dev/util/pylock"
	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

const (
	startBlockUniverse = "-- universe "
	endBlock           = "-- end"
)

// Artifact describes the parsed content from a test data file.
type Artifact struct {
	// Universe holds the defined universes, indexed by name.
	Universe map[string]*pylock.LocalClient
}

// ParseFiles parses the data from the given files into test artifacts.
func ParseFiles(files ...string) (*Artifact, error) {
	var b bytes.Buffer
	for _, file := range files {
		p, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}
		b.Write(p)
		b.WriteRune('\n')
	}
	return Parse(&b)
}

// Parse parses the data from the given reader into test artifacts.
func Parse(r io.Reader) (*Artifact, error) {
	a := &Artifact{Universe: make(map[string]*pylock.LocalClient)}
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		curLine := line
		l := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(strings.ToLower(l), startBlockUniverse) {
			continue
		}
		name := strings.TrimSpace(l[len(startBlockUniverse):])
		if name == "" {
			return nil, fmt.Errorf("line %d: universe name cannot be empty", curLine)
		}
		if a.Universe[name] != nil {
			return nil, fmt.Errorf("line %d: duplicate universe name: %q", curLine, name)
		}
		u, err := parseUniverse(sc, &line)
		if err != nil {
			return nil, fmt.Errorf("line %d: parsing universe %s: %w", curLine, name, err)
		}
		a.Universe[name] = u
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// NewUniverse builds a LocalClient from a single universe body, without
// the block markers. For tests that need just one universe inline.
func NewUniverse(s string) (*pylock.LocalClient, error) {
	sc := bufio.NewScanner(strings.NewReader(s + "\n" + endBlock))
	line := 0
	return parseUniverse(sc, &line)
}

func parseUniverse(sc *bufio.Scanner, line *int) (*pylock.LocalClient, error) {
	lc := pylock.NewLocalClient()
	var (
		pkg     string
		version *pep440.Version
		reqs    []*pep508.Requirement
	)
	flush := func() {
		if version != nil {
			lc.AddVersion(pkg, version, reqs)
			version, reqs = nil, nil
		}
	}
	for sc.Scan() {
		*line++
		l := sc.Text()
		if strings.TrimSpace(strings.ToLower(l)) == endBlock {
			flush()
			return lc, nil
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		switch depth := countTabs(l); depth {
		case 0:
			flush()
			pkg = strings.TrimSpace(l)
			lc.AddPackage(pkg)
		case 1:
			if pkg == "" {
				return nil, fmt.Errorf("line %d: version with no package", *line)
			}
			flush()
			v, err := pep440.Parse(strings.TrimSpace(l))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", *line, err)
			}
			version = v
		case 2:
			if version == nil {
				return nil, fmt.Errorf("line %d: requirement with no version", *line)
			}
			req, err := pep508.ParseRequirement(strings.TrimSpace(l))
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", *line, err)
			}
			reqs = append(reqs, req)
		default:
			return nil, fmt.Errorf("line %d: indent too deep: %q", *line, l)
		}
	}
	return nil, fmt.Errorf("%w, want %q", io.ErrUnexpectedEOF, endBlock)
}

func countTabs(l string) int {
	n := 0
	for n < len(l) && l[n] == '\t' {
		n++
	}
	return n
}
