package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/snyk-tools/snyk-tag-updater/pkg/logging"
	"github.com/snyk-tools/snyk-tag-updater/pkg/snyk"
)

// Errors returned by the builder.
var (
	// ErrNoGroups is returned when the token sees no groups at all.
	ErrNoGroups = errors.New("no groups found")

	// ErrNoOrgs is returned when the group has no organizations.
	ErrNoOrgs = errors.New("no organizations found in the group")
)

// Builder aggregates the resource hierarchy through the typed API.
type Builder struct {
	api    *snyk.API
	logger zerolog.Logger
}

// NewBuilder creates a graph builder.
func NewBuilder(api *snyk.API) *Builder {
	return &Builder{
		api:    api,
		logger: logging.NewLogger("aggregator"),
	}
}

// Build fetches groups, the first group's organizations, and each
// organization's targets and projects (constrained by filter when non-nil),
// associating projects to targets by identifier.
//
// A failure fetching groups or organizations is fatal: there is nothing to
// aggregate without them. A failure inside one organization's branch is
// recorded on the graph and its siblings proceed.
func (b *Builder) Build(ctx context.Context, filter *snyk.ProjectFilter) (*Graph, error) {
	groups, err := b.api.Groups(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate groups: %w", err)
	}
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}

	// The tool operates on the token's first group, like the tagging
	// workflow it serves.
	group := groups[0]
	b.logger.Info().
		Str("group_id", group.ID).
		Str("group_name", group.Name).
		Int("groups_visible", len(groups)).
		Msg("Aggregating group")

	orgs, err := b.api.GroupOrgs(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("aggregate orgs: %w", err)
	}
	if len(orgs) == 0 {
		return nil, ErrNoOrgs
	}

	graph := &Graph{
		Group: Group{ID: group.ID, Name: group.Name},
	}

	for _, org := range orgs {
		entry := Org{ID: org.ID, Name: org.Name}

		targets, err := b.api.OrgTargets(ctx, org.ID)
		if err != nil {
			b.branchFailed(graph, org, "targets", err)
		}

		// Aggregation keys strictly by identifier; a target id emitted
		// twice (overlapping pages) collapses to its first occurrence.
		targetsByID := make(map[string]snyk.Target, len(targets))
		for _, t := range targets {
			if _, seen := targetsByID[t.ID]; seen {
				continue
			}
			targetsByID[t.ID] = t
			entry.Targets = append(entry.Targets, t)
		}

		projects, err := b.api.OrgProjects(ctx, org.ID, filter)
		if err != nil {
			b.branchFailed(graph, org, "projects", err)
			graph.Group.Orgs = append(graph.Group.Orgs, entry)
			continue
		}

		for _, p := range projects {
			entry.Projects = append(entry.Projects, joinProject(p, org.ID, targetsByID))
		}

		b.logger.Debug().
			Str("org_id", org.ID).
			Int("targets", len(entry.Targets)).
			Int("projects", len(entry.Projects)).
			Msg("Aggregated organization")

		graph.Group.Orgs = append(graph.Group.Orgs, entry)
	}

	return graph, nil
}

// joinProject resolves a project's target references against the org's
// targets. An unmatched reference stays in the list, marked unassociated.
func joinProject(p snyk.Project, orgID string, targetsByID map[string]snyk.Target) Project {
	joined := Project{Project: p, OrgID: orgID}

	for _, id := range p.TargetIDs {
		if t, ok := targetsByID[id]; ok {
			joined.Targets = append(joined.Targets, ProjectTarget{
				ID:          t.ID,
				DisplayName: t.DisplayName,
				URL:         t.URL,
				Associated:  true,
			})
			continue
		}
		joined.Targets = append(joined.Targets, ProjectTarget{
			ID:         id,
			Associated: false,
		})
	}

	return joined
}

// branchFailed records a per-organization failure and logs it with context.
func (b *Builder) branchFailed(graph *Graph, org snyk.Organization, resource string, err error) {
	branchErr := BranchError{
		OrgID:    org.ID,
		OrgName:  org.Name,
		Resource: resource,
		Err:      err,
	}
	graph.BranchErrors = append(graph.BranchErrors, branchErr)

	b.logger.Warn().
		Err(err).
		Str("org_id", org.ID).
		Str("org_name", org.Name).
		Str("resource", resource).
		Msg("Organization branch fetch failed, continuing with siblings")
}
