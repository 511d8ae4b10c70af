package tags

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snyk-tools/snyk-tag-updater/internal/testutil"
	"github.com/snyk-tools/snyk-tag-updater/pkg/client"
	"github.com/snyk-tools/snyk-tag-updater/pkg/ratelimit"
	"github.com/snyk-tools/snyk-tag-updater/pkg/snyk"
)

func newTestUpdater(t *testing.T, mock *testutil.MockSnyk) *Updater {
	t.Helper()

	cfg := client.DefaultConfig("secret-token")
	cfg.BaseURL = mock.URL()
	cfg.RetryPolicy = ratelimit.Policy{MaxRetries: 2, DefaultBackoff: time.Millisecond}
	c, err := client.New(cfg)
	require.NoError(t, err)

	return NewUpdater(snyk.NewAPI(c))
}

// projectDetail builds a full project representation with the given tags.
func projectDetail(tags string) string {
	return fmt.Sprintf(`{
		"id": "p1",
		"type": "project",
		"attributes": {
			"name": "service-a",
			"status": "active",
			"target_runtime": "net6.0",
			"origin": "azure-repos",
			"custom_metadata": {"team": "platform"},
			"tags": %s
		},
		"relationships": {
			"organization": {"data": {"id": "o1", "type": "org"}},
			"target": {"data": {"id": "t1", "type": "target"}},
			"importer": {"data": {"id": "u1", "type": "user"}}
		}
	}`, tags)
}

func TestMergeTags_PreservesSiblings(t *testing.T) {
	existing := []snyk.Tag{{Key: "env", Value: "prod"}}

	merged := MergeTags(existing, "Testing", "DefaultTest")

	assert.Equal(t, []snyk.Tag{
		{Key: "env", Value: "prod"},
		{Key: "Testing", Value: "DefaultTest"},
	}, merged)
}

func TestMergeTags_OverwritesSameKey(t *testing.T) {
	existing := []snyk.Tag{{Key: "Testing", Value: "old"}}

	merged := MergeTags(existing, "Testing", "new")

	assert.Equal(t, []snyk.Tag{{Key: "Testing", Value: "new"}}, merged)
}

func TestMergeTags_CaseSensitiveKeys(t *testing.T) {
	// The API does not document case folding; keys match exactly.
	existing := []snyk.Tag{{Key: "testing", Value: "lower"}}

	merged := MergeTags(existing, "Testing", "upper")

	assert.Equal(t, []snyk.Tag{
		{Key: "testing", Value: "lower"},
		{Key: "Testing", Value: "upper"},
	}, merged)
}

func TestMergeTags_DoesNotMutateInput(t *testing.T) {
	existing := []snyk.Tag{{Key: "Testing", Value: "old"}}

	MergeTags(existing, "Testing", "new")

	assert.Equal(t, "old", existing[0].Value)
}

func TestBuildPayload(t *testing.T) {
	var current snyk.Resource
	require.NoError(t, json.Unmarshal([]byte(projectDetail(`[{"key": "env", "value": "prod"}]`)), &current))

	body, err := buildPayload(&current, "o1", "Testing", "DefaultTest")
	require.NoError(t, err)

	var payload struct {
		Data struct {
			ID         string                     `json:"id"`
			Type       string                     `json:"type"`
			Attributes map[string]json.RawMessage `json:"attributes"`
			Rels       map[string]struct {
				Data  linkage           `json:"data"`
				Links map[string]string `json:"links"`
			} `json:"relationships"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))

	assert.Equal(t, "p1", payload.Data.ID)
	assert.Equal(t, "project", payload.Data.Type)

	// Untouched attributes are carried over byte-for-byte.
	assert.JSONEq(t, `{"team": "platform"}`, string(payload.Data.Attributes["custom_metadata"]))
	assert.JSONEq(t, `"active"`, string(payload.Data.Attributes["status"]))

	// The tag list is the only changed field.
	assert.JSONEq(t,
		`[{"key": "env", "value": "prod"}, {"key": "Testing", "value": "DefaultTest"}]`,
		string(payload.Data.Attributes["tags"]))

	// Relationships are normalized with the types and links the endpoint expects.
	assert.Equal(t, linkage{ID: "o1", Type: "org"}, payload.Data.Rels["organization"].Data)
	assert.Equal(t, linkage{ID: "t1", Type: "target"}, payload.Data.Rels["target"].Data)
	assert.Equal(t, linkage{ID: "u1", Type: "user"}, payload.Data.Rels["importer"].Data)
	assert.Equal(t, "/rest/orgs/o1/targets/t1", payload.Data.Rels["target"].Links["related"])
	assert.Equal(t, "/orgs/o1/users/u1", payload.Data.Rels["importer"].Links["related"])
}

func TestBuildPayload_MissingTarget(t *testing.T) {
	current := &snyk.Resource{
		ID:         "p1",
		Type:       "project",
		Attributes: json.RawMessage(`{"name": "x", "tags": []}`),
		Relationships: json.RawMessage(`{
			"organization": {"data": {"id": "o1", "type": "org"}},
			"importer": {"data": {"id": "u1", "type": "user"}}
		}`),
	}

	_, err := buildPayload(current, "o1", "k", "v")
	assert.ErrorIs(t, err, ErrMissingRelationship)
	assert.Contains(t, err.Error(), "target")
}

func TestBuildPayload_MissingImporter(t *testing.T) {
	current := &snyk.Resource{
		ID:         "p1",
		Type:       "project",
		Attributes: json.RawMessage(`{"name": "x"}`),
		Relationships: json.RawMessage(`{
			"target": {"data": {"id": "t1", "type": "target"}}
		}`),
	}

	_, err := buildPayload(current, "o1", "k", "v")
	assert.ErrorIs(t, err, ErrMissingRelationship)
	assert.Contains(t, err.Error(), "importer")
}

// mockProject wires a stateful project endpoint: GETs serve the current
// tags, a successful PATCH swaps in the submitted ones.
func mockProject(mock *testutil.MockSnyk, initialTags string) *string {
	tags := initialTags
	path := "/orgs/o1/projects/p1"

	mock.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.Write([]byte(testutil.SingleDocument(projectDetail(tags))))
	})

	mock.SetHandler("PATCH "+path, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Data struct {
				Attributes struct {
					Tags json.RawMessage `json:"tags"`
				} `json:"attributes"`
			} `json:"data"`
		}
		json.Unmarshal(body, &payload)
		tags = string(payload.Data.Attributes.Tags)

		w.Header().Set("Content-Type", "application/vnd.api+json")
		w.Write([]byte(testutil.SingleDocument(projectDetail(tags))))
	})

	return &tags
}

func TestUpdateTag(t *testing.T) {
	mock := testutil.NewMockSnyk()
	defer mock.Close()
	serverTags := mockProject(mock, `[{"key": "env", "value": "prod"}]`)

	u := newTestUpdater(t, mock)

	confirmation, err := u.UpdateTag(context.Background(), "o1", "p1", "Testing", "DefaultTest")
	require.NoError(t, err)

	assert.Equal(t, "service-a", confirmation.ProjectName)
	assert.Equal(t, "Testing", confirmation.Key)
	assert.Equal(t, "DefaultTest", confirmation.Value)
	assert.Contains(t, confirmation.String(), "service-a")

	// The server ended up with the sibling preserved and the tag appended.
	assert.JSONEq(t,
		`[{"key": "env", "value": "prod"}, {"key": "Testing", "value": "DefaultTest"}]`,
		*serverTags)
}

func TestUpdateTag_BlankKeyValueUseDefaults(t *testing.T) {
	mock := testutil.NewMockSnyk()
	defer mock.Close()
	mockProject(mock, `[]`)

	u := newTestUpdater(t, mock)

	confirmation, err := u.UpdateTag(context.Background(), "o1", "p1", "", "")
	require.NoError(t, err)

	assert.Equal(t, DefaultKey, confirmation.Key)
	assert.Equal(t, DefaultValue, confirmation.Value)
}

func TestUpdateTag_RejectedByServer(t *testing.T) {
	mock := testutil.NewMockSnyk()
	defer mock.Close()
	mockProject(mock, `[]`)
	mock.SetHandler("PATCH /orgs/o1/projects/p1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"errors": [{"detail": "invalid payload"}]}`))
	})

	u := newTestUpdater(t, mock)

	_, err := u.UpdateTag(context.Background(), "o1", "p1", "Testing", "DefaultTest")

	var updateErr *UpdateError
	require.ErrorAs(t, err, &updateErr)
	assert.Equal(t, StepSubmit, updateErr.Step)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid payload")
}

func TestUpdateTag_VerificationFailed(t *testing.T) {
	mock := testutil.NewMockSnyk()
	defer mock.Close()

	// GETs always show no tags; the PATCH claims success but changes nothing.
	mock.SetHandler("/orgs/o1/projects/p1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testutil.SingleDocument(projectDetail(`[]`))))
	})
	mock.SetHandler("PATCH /orgs/o1/projects/p1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testutil.SingleDocument(projectDetail(`[]`))))
	})

	u := newTestUpdater(t, mock)

	_, err := u.UpdateTag(context.Background(), "o1", "p1", "Testing", "DefaultTest")

	var updateErr *UpdateError
	require.ErrorAs(t, err, &updateErr)
	assert.Equal(t, StepVerify, updateErr.Step)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	// Distinguishable from a server rejection.
	var apiErr *client.APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestUpdateTag_FetchNetworkFailure(t *testing.T) {
	mock := testutil.NewMockSnyk()
	url := mock.URL()
	mock.Close() // transport now refuses connections

	cfg := client.DefaultConfig("secret-token")
	cfg.BaseURL = url
	c, err := client.New(cfg)
	require.NoError(t, err)
	u := NewUpdater(snyk.NewAPI(c))

	_, err = u.UpdateTag(context.Background(), "o1", "p1", "Testing", "DefaultTest")

	var updateErr *UpdateError
	require.ErrorAs(t, err, &updateErr)
	assert.Equal(t, StepFetch, updateErr.Step)

	var netErr *client.NetworkError
	assert.ErrorAs(t, err, &netErr)
}

func TestUpdateTag_CancelledAtPreview(t *testing.T) {
	mock := testutil.NewMockSnyk()
	defer mock.Close()
	mockProject(mock, `[]`)

	u := newTestUpdater(t, mock)

	var preview Preview
	u.Confirm = func(p Preview) bool {
		preview = p
		return false
	}

	before := mock.RequestCount
	_, err := u.UpdateTag(context.Background(), "o1", "p1", "Testing", "DefaultTest")
	assert.ErrorIs(t, err, ErrCancelled)

	// Only the fetch-current GET went out; nothing was submitted.
	assert.Equal(t, before+1, mock.RequestCount)

	// The preview shows the exact request with the credential redacted.
	assert.Equal(t, http.MethodPatch, preview.Method)
	assert.Contains(t, preview.URL, "/orgs/o1/projects/p1")
	assert.Equal(t, "Token REDACTED", preview.Headers.Get("Authorization"))
	assert.NotContains(t, preview.Headers.Get("Authorization"), "secret-token")
	assert.Contains(t, string(preview.Body), "DefaultTest")
}

func TestUpdateTag_NoAutomaticRetryOnRejection(t *testing.T) {
	mock := testutil.NewMockSnyk()
	defer mock.Close()
	mockProject(mock, `[]`)

	patchAttempts := 0
	mock.SetHandler("PATCH /orgs/o1/projects/p1", func(w http.ResponseWriter, r *http.Request) {
		patchAttempts++
		w.WriteHeader(http.StatusInternalServerError)
	})

	u := newTestUpdater(t, mock)

	_, err := u.UpdateTag(context.Background(), "o1", "p1", "Testing", "DefaultTest")
	require.Error(t, err)
	assert.Equal(t, 1, patchAttempts)
}
