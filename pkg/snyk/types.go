// Package snyk defines typed records for the Snyk REST API resources this
// tool works with, and endpoint helpers to retrieve them.
//
// Responses are parsed into explicit records at this boundary, validating
// required fields up front so malformed documents fail fast instead of
// propagating untyped maps into the update logic. Attribute and
// relationship payloads are retained as raw JSON where the tag update
// protocol must echo them back unchanged.
package snyk

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedResource is returned when a resource is missing required
// fields or carries attributes that do not parse.
var ErrMalformedResource = errors.New("malformed resource")

// Tag is a (key, value) metadata pair attached to a project. Keys are
// unique within a project; matching is case-sensitive.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Resource is one JSON:API resource object. Attributes and Relationships
// stay raw so unknown fields survive a round trip.
type Resource struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Attributes    json.RawMessage `json:"attributes,omitempty"`
	Relationships json.RawMessage `json:"relationships,omitempty"`
}

// Group is the top-level organizational container. Read-only.
type Group struct {
	ID   string
	Name string
}

// Organization is a group's child container owning projects and targets.
// Read-only.
type Organization struct {
	ID      string
	Name    string
	GroupID string
}

// Target is a monitored source (e.g. a repository) within an organization.
// Read-only.
type Target struct {
	ID          string
	DisplayName string
	URL         string
	OrgID       string
}

// Project is a scanned artifact within a target. Its tag list is the only
// field this tool ever writes.
type Project struct {
	ID            string
	Name          string
	Status        string
	TargetRuntime string
	Origin        string
	TargetIDs     []string
	Tags          []Tag
}

// relationshipData is the data member of a single relationship: either one
// linkage object or an array of them.
type relationshipData struct {
	Data json.RawMessage `json:"data"`
}

type linkage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// ParseGroup validates and converts one group resource.
func ParseGroup(raw json.RawMessage) (Group, error) {
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return Group{}, fmt.Errorf("%w: %v", ErrMalformedResource, err)
	}
	if r.ID == "" {
		return Group{}, fmt.Errorf("%w: group without id", ErrMalformedResource)
	}

	var attrs struct {
		Name string `json:"name"`
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return Group{}, fmt.Errorf("%w: group %s attributes: %v", ErrMalformedResource, r.ID, err)
		}
	}
	if attrs.Name == "" {
		attrs.Name = "Unknown"
	}

	return Group{ID: r.ID, Name: attrs.Name}, nil
}

// ParseOrganization validates and converts one org resource.
func ParseOrganization(raw json.RawMessage, groupID string) (Organization, error) {
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return Organization{}, fmt.Errorf("%w: %v", ErrMalformedResource, err)
	}
	if r.ID == "" {
		return Organization{}, fmt.Errorf("%w: org without id", ErrMalformedResource)
	}

	var attrs struct {
		Name string `json:"name"`
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return Organization{}, fmt.Errorf("%w: org %s attributes: %v", ErrMalformedResource, r.ID, err)
		}
	}
	if attrs.Name == "" {
		attrs.Name = "Unknown"
	}

	return Organization{ID: r.ID, Name: attrs.Name, GroupID: groupID}, nil
}

// ParseTarget validates and converts one target resource.
func ParseTarget(raw json.RawMessage, orgID string) (Target, error) {
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrMalformedResource, err)
	}
	if r.ID == "" {
		return Target{}, fmt.Errorf("%w: target without id", ErrMalformedResource)
	}

	var attrs struct {
		DisplayName string `json:"display_name"`
		URL         string `json:"url"`
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return Target{}, fmt.Errorf("%w: target %s attributes: %v", ErrMalformedResource, r.ID, err)
		}
	}

	return Target{
		ID:          r.ID,
		DisplayName: attrs.DisplayName,
		URL:         attrs.URL,
		OrgID:       orgID,
	}, nil
}

// ParseProject validates and converts one project resource, extracting its
// target references from either a plural targets relationship or a
// singular target relationship.
func ParseProject(raw json.RawMessage) (Project, error) {
	var r Resource
	if err := json.Unmarshal(raw, &r); err != nil {
		return Project{}, fmt.Errorf("%w: %v", ErrMalformedResource, err)
	}
	if r.ID == "" {
		return Project{}, fmt.Errorf("%w: project without id", ErrMalformedResource)
	}

	var attrs struct {
		Name          string `json:"name"`
		Status        string `json:"status"`
		TargetRuntime string `json:"target_runtime"`
		Origin        string `json:"origin"`
		Tags          []Tag  `json:"tags"`
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
			return Project{}, fmt.Errorf("%w: project %s attributes: %v", ErrMalformedResource, r.ID, err)
		}
	}
	if attrs.Name == "" {
		attrs.Name = "Unknown"
	}

	targetIDs, err := targetRefs(r.Relationships)
	if err != nil {
		return Project{}, fmt.Errorf("%w: project %s relationships: %v", ErrMalformedResource, r.ID, err)
	}

	return Project{
		ID:            r.ID,
		Name:          attrs.Name,
		Status:        attrs.Status,
		TargetRuntime: attrs.TargetRuntime,
		Origin:        attrs.Origin,
		TargetIDs:     targetIDs,
		Tags:          attrs.Tags,
	}, nil
}

// targetRefs pulls target linkage ids out of a project's relationships.
// The API has emitted both "targets" (array) and "target" (single object,
// occasionally an array); both forms are accepted.
func targetRefs(relationships json.RawMessage) ([]string, error) {
	if len(relationships) == 0 {
		return nil, nil
	}

	var rels map[string]relationshipData
	if err := json.Unmarshal(relationships, &rels); err != nil {
		return nil, err
	}

	data := rels["targets"].Data
	if len(data) == 0 {
		data = rels["target"].Data
	}
	if len(data) == 0 {
		return nil, nil
	}

	var many []linkage
	if err := json.Unmarshal(data, &many); err == nil {
		ids := make([]string, 0, len(many))
		for _, l := range many {
			if l.ID != "" {
				ids = append(ids, l.ID)
			}
		}
		return ids, nil
	}

	var one linkage
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	if one.ID == "" {
		return nil, nil
	}
	return []string{one.ID}, nil
}
