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

package resolvetest

import (
	"context"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	in := `
-- universe sample
alice
	1.0.0
		bob>=1
	1.1.0
		bob>=2
bob
	1.0.0
	2.0.0
carol
-- end

-- universe other
eve
	1.0.0
		bob[fast]>=1 ; python_version >= "3.8"
-- end
`
	a, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(a.Universe) != 2 {
		t.Fatalf("got %d universes, want 2", len(a.Universe))
	}
	ctx := context.Background()
	sample := a.Universe["sample"]
	if sample == nil {
		t.Fatal("universe sample missing")
	}
	vs, err := sample.Versions(ctx, "bob")
	if err != nil {
		t.Fatalf("Versions(bob): %v", err)
	}
	if len(vs) != 2 || vs[0].String() != "1.0.0" || vs[1].String() != "2.0.0" {
		t.Errorf("Versions(bob) = %v", vs)
	}
	if _, err := sample.Versions(ctx, "carol"); err != nil {
		t.Errorf("Versions(carol): %v, want empty list", err)
	}
	alice, err := sample.Versions(ctx, "alice")
	if err != nil || len(alice) != 2 {
		t.Fatalf("Versions(alice) = %v, %v", alice, err)
	}
	reqs, err := sample.Requirements(ctx, "alice", alice[1])
	if err != nil {
		t.Fatalf("Requirements(alice 1.1.0): %v", err)
	}
	if len(reqs) != 1 || reqs[0].Name != "bob" {
		t.Errorf("Requirements(alice 1.1.0) = %v", reqs)
	}

	eve, err := a.Universe["other"].Versions(ctx, "eve")
	if err != nil || len(eve) != 1 {
		t.Fatalf("Versions(eve) = %v, %v", eve, err)
	}
	reqs, err = a.Universe["other"].Requirements(ctx, "eve", eve[0])
	if err != nil || len(reqs) != 1 {
		t.Fatalf("Requirements(eve 1.0.0) = %v, %v", reqs, err)
	}
	if req := reqs[0]; req.Name != "bob" || len(req.Extras) != 1 || req.Marker == nil {
		t.Errorf("Requirements(eve 1.0.0)[0] = %v", reqs[0])
	}
}

func TestNewUniverse(t *testing.T) {
	lc, err := NewUniverse(`
alice
	1.0.0
		bob>=1
bob
	1.0.0
`)
	if err != nil {
		t.Fatalf("NewUniverse: %v", err)
	}
	if _, err := lc.Versions(context.Background(), "alice"); err != nil {
		t.Errorf("Versions(alice): %v", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"-- universe \n-- end",                  // empty name
		"-- universe u\nalice\n\t1.0",           // no end marker
		"-- universe u\n\t1.0\n-- end",          // version before package
		"-- universe u\nalice\n\t\tbob\n-- end", // requirement before version
		"-- universe u\nalice\n\tbanana\n-- end",
		"-- universe u\nalice\n\t1.0\n\t\t>=1\n-- end",
		"-- universe u\nalice\n\t1.0\n\t\t\tbob\n-- end", // too deep
		"-- universe u\n-- end\n-- universe u\n-- end",   // duplicate
	}
	for _, in := range tests {
		if _, err := Parse(strings.NewReader(in)); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", in)
		}
	}
}
