package snyk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/snyk-tools/snyk-tag-updater/pkg/client"
	"github.com/snyk-tools/snyk-tag-updater/pkg/pagination"
)

// API provides typed access to the Snyk resource collections.
type API struct {
	client  *client.Client
	fetcher *pagination.Fetcher
}

// NewAPI creates the typed API surface on top of a client.
func NewAPI(c *client.Client) *API {
	return &API{
		client:  c,
		fetcher: pagination.NewFetcher(c),
	}
}

// Client exposes the underlying HTTP client for the update protocol.
func (a *API) Client() *client.Client {
	return a.client
}

// listParams are the defaults for collection listings.
func listParams() url.Values {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(DefaultLimit))
	return params
}

// Groups retrieves all groups visible to the token.
func (a *API) Groups(ctx context.Context) ([]Group, error) {
	items, err := a.fetcher.FetchAll(ctx, "/groups", listParams())
	if err != nil {
		return nil, fmt.Errorf("fetch groups: %w", err)
	}

	groups := make([]Group, 0, len(items))
	for _, raw := range items {
		g, err := ParseGroup(raw)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// GroupOrgs retrieves the organizations of one group.
func (a *API) GroupOrgs(ctx context.Context, groupID string) ([]Organization, error) {
	path := fmt.Sprintf("/groups/%s/orgs", groupID)
	items, err := a.fetcher.FetchAll(ctx, path, listParams())
	if err != nil {
		return nil, fmt.Errorf("fetch orgs for group %s: %w", groupID, err)
	}

	orgs := make([]Organization, 0, len(items))
	for _, raw := range items {
		o, err := ParseOrganization(raw, groupID)
		if err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, nil
}

// OrgTargets retrieves all targets of one organization.
func (a *API) OrgTargets(ctx context.Context, orgID string) ([]Target, error) {
	path := fmt.Sprintf("/orgs/%s/targets", orgID)
	items, err := a.fetcher.FetchAll(ctx, path, listParams())
	if err != nil {
		return nil, fmt.Errorf("fetch targets for org %s: %w", orgID, err)
	}

	targets := make([]Target, 0, len(items))
	for _, raw := range items {
		t, err := ParseTarget(raw, orgID)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// OrgProjects retrieves the projects of one organization, optionally
// constrained by a filter. With a nil filter only the API version
// parameter constrains the query.
func (a *API) OrgProjects(ctx context.Context, orgID string, filter *ProjectFilter) ([]Project, error) {
	path := fmt.Sprintf("/orgs/%s/projects", orgID)
	items, err := a.fetcher.FetchAll(ctx, path, filter.Query())
	if err != nil {
		return nil, fmt.Errorf("fetch projects for org %s: %w", orgID, err)
	}

	projects := make([]Project, 0, len(items))
	for _, raw := range items {
		p, err := ParseProject(raw)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, nil
}

// ProjectDetail retrieves the full current representation of one project,
// attributes and relationships as raw JSON. The update protocol works on
// this, never on a possibly stale aggregate copy.
func (a *API) ProjectDetail(ctx context.Context, orgID, projectID string) (*Resource, error) {
	path := fmt.Sprintf("/orgs/%s/projects/%s", orgID, projectID)
	body, err := a.client.Get(ctx, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch project %s: %w", projectID, err)
	}

	var doc struct {
		Data Resource `json:"data"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: project %s: %v", ErrMalformedResource, projectID, err)
	}
	if doc.Data.ID == "" {
		return nil, fmt.Errorf("%w: project %s document without id", ErrMalformedResource, projectID)
	}

	return &doc.Data, nil
}
