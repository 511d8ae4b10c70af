// Package aggregate builds the in-memory group / organization / project /
// target graph from the Snyk API.
package aggregate

import (
	"fmt"

	"github.com/snyk-tools/snyk-tag-updater/pkg/snyk"
)

// Graph is the aggregated resource hierarchy of one group. It lives only
// in memory; the presenter renders it and the updater re-fetches projects
// rather than trusting it.
type Graph struct {
	Group Group

	// BranchErrors collects per-organization fetch failures. A failed
	// branch never aborts its siblings; the failures are reported here
	// with identifying context.
	BranchErrors []BranchError
}

// Group is the aggregated top-level container.
type Group struct {
	ID   string
	Name string
	Orgs []Org
}

// Org is one organization with its targets and (optionally filtered)
// projects.
type Org struct {
	ID       string
	Name     string
	Targets  []snyk.Target
	Projects []Project
}

// Project is a project joined with the targets it references. A reference
// that matched no fetched target of the same organization is retained with
// Associated set to false, never dropped.
type Project struct {
	snyk.Project
	OrgID   string
	Targets []ProjectTarget
}

// ProjectTarget is one resolved (or unresolved) target reference.
type ProjectTarget struct {
	ID          string
	DisplayName string
	URL         string
	Associated  bool
}

// BranchError is a per-organization fetch failure with enough context to
// act on it.
type BranchError struct {
	OrgID    string
	OrgName  string
	Resource string
	Err      error
}

// Error implements the error interface.
func (e BranchError) Error() string {
	return fmt.Sprintf("org %s (%s): fetch %s: %v", e.OrgName, e.OrgID, e.Resource, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e BranchError) Unwrap() error {
	return e.Err
}

// Projects returns every aggregated project across all organizations, in
// aggregation order.
func (g *Graph) Projects() []Project {
	var all []Project
	for _, org := range g.Group.Orgs {
		all = append(all, org.Projects...)
	}
	return all
}

// ProjectByID looks up one aggregated project.
func (g *Graph) ProjectByID(id string) (Project, bool) {
	for _, org := range g.Group.Orgs {
		for _, p := range org.Projects {
			if p.ID == id {
				return p, true
			}
		}
	}
	return Project{}, false
}
