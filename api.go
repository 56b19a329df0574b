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
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pb "deps.dev/api/v3"
	"deps.dev/util/pylock/pep440"
	"deps.dev/util/pylock/pep508"
)

// A RequirementSource supplies the declared dependencies of a concrete
// PyPI version, typically parsed from the Requires-Dist fields of its
// metadata. It reports ErrNotFound for an unknown version.
type RequirementSource interface {
	Requirements(ctx context.Context, name string, version *pep440.Version) ([]*pep508.Requirement, error)
}

// APIClient is a Client that fetches the known versions of packages from
// the deps.dev Insights API. The API does not expose PyPI requirement
// data, so the declared dependencies come from a separate
// RequirementSource. It performs no caching and every Versions call is an
// API call, so wrap it in a CachingClient when resolving; it is safe for
// concurrent use.
type APIClient struct {
	c    pb.InsightsClient
	reqs RequirementSource
}

// NewAPIClient creates a new APIClient using the provided gRPC client to
// call the deps.dev Insights service, and the RequirementSource for
// dependency data.
func NewAPIClient(c pb.InsightsClient, reqs RequirementSource) *APIClient {
	return &APIClient{c: c, reqs: reqs}
}

func (a *APIClient) Versions(ctx context.Context, name string) ([]*pep440.Version, error) {
	resp, err := a.c.GetPackage(ctx, &pb.GetPackageRequest{
		PackageKey: &pb.PackageKey{
			System: pb.System_PYPI,
			Name:   name,
		},
	})
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("package %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	raw := make([]string, len(resp.Versions))
	for i, v := range resp.Versions {
		raw[i] = v.VersionKey.Version
	}
	return parseVersions(raw), nil
}

// parseVersions parses and sorts the version strings reported for a
// package. PyPI predates PEP 440 enforcement and some ancient uploads
// carry unparseable versions; they cannot participate in constraint
// matching, so they are dropped.
func parseVersions(raw []string) []*pep440.Version {
	vers := make([]*pep440.Version, 0, len(raw))
	for _, r := range raw {
		v, err := pep440.Parse(r)
		if err != nil {
			continue
		}
		vers = append(vers, v)
	}
	pep440.Sort(vers)
	return vers
}

func (a *APIClient) Requirements(ctx context.Context, name string, version *pep440.Version) ([]*pep508.Requirement, error) {
	return a.reqs.Requirements(ctx, name, version)
}
