package snyk

import (
	"net/url"
	"strconv"
)

// Filter defaults matching the Snyk project listing.
const (
	DefaultTargetRuntime = "net6.0"
	DefaultOrigins       = "azure-repos"
	DefaultLimit         = 100
)

// ProjectFilter constrains a project listing by exact match on runtime and
// origin, plus a page size. A nil filter means an unconstrained query: only
// the API version parameter is sent.
type ProjectFilter struct {
	// TargetRuntime filters by exact runtime match; empty disables it.
	TargetRuntime string

	// Origins filters by exact origin match; empty disables it.
	Origins string

	// Limit is the page size.
	Limit int
}

// DefaultProjectFilter returns the default filter configuration.
func DefaultProjectFilter() *ProjectFilter {
	return &ProjectFilter{
		TargetRuntime: DefaultTargetRuntime,
		Origins:       DefaultOrigins,
		Limit:         DefaultLimit,
	}
}

// Query encodes the filter as request parameters. The API version is added
// by the client on every request and is deliberately not repeated here.
func (f *ProjectFilter) Query() url.Values {
	params := url.Values{}
	if f == nil {
		return params
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	params.Set("limit", strconv.Itoa(limit))

	if f.TargetRuntime != "" {
		params.Set("target_runtime", f.TargetRuntime)
	}
	if f.Origins != "" {
		params.Set("origins", f.Origins)
	}

	return params
}
