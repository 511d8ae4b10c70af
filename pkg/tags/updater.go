// Package tags implements the read-modify-write tag update protocol.
//
// The Snyk project update endpoint has PATCH semantics but requires the
// complete object: submitting attributes alone, or omitting relationships,
// silently erases fields. The updater therefore always fetches the current
// full representation, replaces only the tag list, echoes everything else
// back, and re-fetches afterwards to confirm the tag took.
package tags

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/snyk-tools/snyk-tag-updater/pkg/client"
	"github.com/snyk-tools/snyk-tag-updater/pkg/logging"
	"github.com/snyk-tools/snyk-tag-updater/pkg/snyk"
)

// Tag defaults used when the operator leaves the prompts blank.
const (
	DefaultKey   = "Testing"
	DefaultValue = "DefaultTest"
)

// Preview is the exact request about to be submitted, exposed for operator
// inspection before anything is written. The credential is redacted.
type Preview struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
}

// Confirmation reports a verified tag update.
type Confirmation struct {
	OrgID       string
	ProjectID   string
	ProjectName string
	Key         string
	Value       string
}

// String renders the confirmation as the change-log line shown to the
// operator.
func (c Confirmation) String() string {
	return fmt.Sprintf("Org: %s - Project: %s updated with %s tag: %s",
		c.OrgID, c.ProjectName, c.Key, c.Value)
}

// Updater applies a single tag to projects, one at a time. It never retries
// on its own: an update is not safely idempotent-retryable without
// re-running the whole fetch-merge-submit-verify cycle, so retry is the
// caller's explicit decision.
type Updater struct {
	api    *snyk.API
	logger zerolog.Logger

	// Confirm, when set, is called with the request preview before submit.
	// Returning false cancels the update with ErrCancelled. A nil Confirm
	// proceeds without asking (non-interactive use).
	Confirm func(Preview) bool
}

// NewUpdater creates a tag updater.
func NewUpdater(api *snyk.API) *Updater {
	return &Updater{
		api:    api,
		logger: logging.NewLogger("tag-updater"),
	}
}

// UpdateTag merges (key, value) into the project's tags and verifies the
// result. The protocol order is fixed: fetch-current, merge, submit,
// verify. The fetch always goes to the API, never to the aggregate, since
// another process may have mutated tags since aggregation.
func (u *Updater) UpdateTag(ctx context.Context, orgID, projectID, key, value string) (*Confirmation, error) {
	if key == "" {
		key = DefaultKey
	}
	if value == "" {
		value = DefaultValue
	}

	// Step 1: fetch the current full representation.
	current, err := u.api.ProjectDetail(ctx, orgID, projectID)
	if err != nil {
		return nil, &UpdateError{ProjectID: projectID, Step: StepFetch, Err: err}
	}

	// Step 2: merge the tag and rebuild the full payload.
	body, err := buildPayload(current, orgID, key, value)
	if err != nil {
		return nil, &UpdateError{ProjectID: projectID, Step: StepMerge, Err: err}
	}

	path := fmt.Sprintf("/orgs/%s/projects/%s", orgID, projectID)

	if u.Confirm != nil && !u.Confirm(u.preview(path, body)) {
		u.logger.Info().Str("project_id", projectID).Msg("Update cancelled at preview")
		return nil, &UpdateError{ProjectID: projectID, Step: StepSubmit, Err: ErrCancelled}
	}

	// Step 3: submit. A single attempt; see Updater doc.
	if _, err := u.api.Client().Patch(ctx, path, nil, body); err != nil {
		return nil, &UpdateError{ProjectID: projectID, Step: StepSubmit, Err: err}
	}

	u.logger.Info().
		Str("org_id", orgID).
		Str("project_id", projectID).
		Str("tag_key", key).
		Msg("Patch request sent")

	// Step 4: verify by re-fetching.
	updated, err := u.api.ProjectDetail(ctx, orgID, projectID)
	if err != nil {
		return nil, &UpdateError{
			ProjectID: projectID,
			Step:      StepVerify,
			Err:       fmt.Errorf("%w: re-fetch failed: %v", ErrVerificationFailed, err),
		}
	}

	name, tags, err := projectNameAndTags(updated)
	if err != nil {
		return nil, &UpdateError{
			ProjectID: projectID,
			Step:      StepVerify,
			Err:       fmt.Errorf("%w: %v", ErrVerificationFailed, err),
		}
	}

	if !hasTag(tags, key, value) {
		u.logger.Error().
			Str("project_id", projectID).
			Str("tag_key", key).
			Msg("Update not confirmed")
		return nil, &UpdateError{ProjectID: projectID, Step: StepVerify, Err: ErrVerificationFailed}
	}

	confirmation := &Confirmation{
		OrgID:       orgID,
		ProjectID:   projectID,
		ProjectName: name,
		Key:         key,
		Value:       value,
	}

	u.logger.Info().
		Str("org_id", orgID).
		Str("project_id", projectID).
		Str("project_name", name).
		Str("tag_key", key).
		Str("tag_value", value).
		Msg("Tag update verified")

	return confirmation, nil
}

// preview assembles the redacted request preview.
func (u *Updater) preview(path string, body []byte) Preview {
	c := u.api.Client()

	headers := http.Header{}
	headers.Set("Authorization", "Token REDACTED")
	headers.Set("Content-Type", client.ContentTypeJSONAPI)
	headers.Set("Accept", client.ContentTypeJSONAPI)

	pretty := body
	var buf map[string]any
	if err := json.Unmarshal(body, &buf); err == nil {
		if p, err := json.MarshalIndent(buf, "", "  "); err == nil {
			pretty = p
		}
	}

	return Preview{
		Method:  http.MethodPatch,
		URL:     fmt.Sprintf("%s%s?version=%s", c.BaseURL(), path, c.Version()),
		Headers: headers,
		Body:    pretty,
	}
}

// MergeTags returns the tag list with (key, value) merged in: an existing
// tag with the same key has its value replaced in place, otherwise the tag
// is appended. Sibling tags keep their order. Key matching is
// case-sensitive exact match.
func MergeTags(existing []snyk.Tag, key, value string) []snyk.Tag {
	merged := make([]snyk.Tag, len(existing))
	copy(merged, existing)

	for i := range merged {
		if merged[i].Key == key {
			merged[i].Value = value
			return merged
		}
	}

	return append(merged, snyk.Tag{Key: key, Value: value})
}

// buildPayload constructs the outgoing PATCH document: the fetched
// attributes with only the tag list replaced, and the fetched
// relationships normalized the way the update endpoint expects. Everything
// not touched is carried over as the raw bytes the API returned.
func buildPayload(current *snyk.Resource, orgID, key, value string) ([]byte, error) {
	var attrs map[string]json.RawMessage
	if len(current.Attributes) > 0 {
		if err := json.Unmarshal(current.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("parse attributes: %w", err)
		}
	}
	if attrs == nil {
		attrs = map[string]json.RawMessage{}
	}

	var existing []snyk.Tag
	if raw, ok := attrs["tags"]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return nil, fmt.Errorf("parse tags: %w", err)
		}
	}

	mergedTags, err := json.Marshal(MergeTags(existing, key, value))
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	attrs["tags"] = mergedTags

	relationships, err := buildRelationships(current.Relationships, orgID)
	if err != nil {
		return nil, err
	}

	resourceType := current.Type
	if resourceType == "" {
		resourceType = "project"
	}

	payload := map[string]any{
		"data": map[string]any{
			"id":            current.ID,
			"type":          resourceType,
			"attributes":    attrs,
			"relationships": relationships,
		},
	}

	return json.Marshal(payload)
}

// relationship is one outgoing relationship entry.
type relationship struct {
	Data  linkage           `json:"data"`
	Links map[string]string `json:"links,omitempty"`
}

type linkage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// buildRelationships carries over the fetched relationships, normalizing
// the three the endpoint requires. The target and importer linkages must
// be present in the fetched representation; the organization linkage falls
// back to the known org id.
func buildRelationships(raw json.RawMessage, orgID string) (map[string]relationship, error) {
	var fetched map[string]struct {
		Data json.RawMessage `json:"data"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fetched); err != nil {
			return nil, fmt.Errorf("parse relationships: %w", err)
		}
	}

	org := linkageOf(fetched["organization"].Data)
	if org.ID == "" {
		org.ID = orgID
	}
	org.Type = "org"

	target := linkageOf(fetched["target"].Data)
	if target.ID == "" {
		return nil, fmt.Errorf("%w: target", ErrMissingRelationship)
	}
	target.Type = "target"

	importer := linkageOf(fetched["importer"].Data)
	if importer.ID == "" {
		return nil, fmt.Errorf("%w: importer", ErrMissingRelationship)
	}
	importer.Type = "user"

	return map[string]relationship{
		"organization": {
			Data:  org,
			Links: map[string]string{"related": fmt.Sprintf("/rest/orgs/%s", org.ID)},
		},
		"target": {
			Data:  target,
			Links: map[string]string{"related": fmt.Sprintf("/rest/orgs/%s/targets/%s", orgID, target.ID)},
		},
		"importer": {
			Data:  importer,
			Links: map[string]string{"related": fmt.Sprintf("/orgs/%s/users/%s", orgID, importer.ID)},
		},
	}, nil
}

// linkageOf decodes a single relationship linkage, tolerating null.
func linkageOf(data json.RawMessage) linkage {
	var l linkage
	if len(data) > 0 {
		json.Unmarshal(data, &l)
	}
	return l
}

// projectNameAndTags pulls the display name and tag list out of a fetched
// project representation.
func projectNameAndTags(r *snyk.Resource) (string, []snyk.Tag, error) {
	var attrs struct {
		Name string     `json:"name"`
		Tags []snyk.Tag `json:"tags"`
	}
	if len(r.Attributes) == 0 {
		return "", nil, fmt.Errorf("project %s has no attributes", r.ID)
	}
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return "", nil, fmt.Errorf("parse project %s attributes: %v", r.ID, err)
	}
	if attrs.Name == "" {
		attrs.Name = "Unknown"
	}
	return attrs.Name, attrs.Tags, nil
}

// hasTag reports whether the list contains the exact (key, value) pair.
func hasTag(tags []snyk.Tag, key, value string) bool {
	for _, t := range tags {
		if t.Key == key && t.Value == value {
			return true
		}
	}
	return false
}
