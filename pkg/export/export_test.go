package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snyk-tools/snyk-tag-updater/pkg/aggregate"
	"github.com/snyk-tools/snyk-tag-updater/pkg/snyk"
)

func sampleGraph() *aggregate.Graph {
	return &aggregate.Graph{
		Group: aggregate.Group{
			ID:   "g1",
			Name: "Acme",
			Orgs: []aggregate.Org{
				{
					ID:   "o1",
					Name: "Dev",
					Targets: []snyk.Target{
						{ID: "t1", DisplayName: "acme/repo-a", URL: "https://dev.azure.com/acme/repo-a", OrgID: "o1"},
					},
					Projects: []aggregate.Project{
						{
							Project: snyk.Project{ID: "p1", Name: "repo-a:Dockerfile", Status: "active"},
							OrgID:   "o1",
							Targets: []aggregate.ProjectTarget{
								{ID: "t1", DisplayName: "acme/repo-a", URL: "https://dev.azure.com/acme/repo-a", Associated: true},
							},
						},
						{
							Project: snyk.Project{ID: "p2", Name: "repo-b:pom.xml", Status: "active"},
							OrgID:   "o1",
							Targets: []aggregate.ProjectTarget{
								{ID: "t-gone", Associated: false},
							},
						},
					},
				},
				{ID: "o2", Name: "Ops"},
			},
		},
	}
}

func TestBuildDocument(t *testing.T) {
	doc := BuildDocument(sampleGraph())

	require.Len(t, doc.Group.Orgs, 2)
	assert.Equal(t, "Acme", doc.Group.Name)

	dev := doc.Group.Orgs[0]
	require.Len(t, dev.Projects, 2)
	assert.Equal(t, "acme/repo-a", dev.Projects[0].Targets[0].DisplayName)

	// Unresolved references are exported with a placeholder, never dropped.
	assert.Equal(t, TargetDoc{ID: "t-gone", DisplayName: "Not found", URL: ""},
		dev.Projects[1].Targets[0])

	// Orgs without targets or projects serialize as empty arrays, not null.
	ops := doc.Group.Orgs[1]
	assert.NotNil(t, ops.Targets)
	assert.NotNil(t, ops.Projects)
}

func TestDocumentJSON(t *testing.T) {
	raw, err := BuildDocument(sampleGraph()).JSON()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	group := decoded["group"].(map[string]any)
	assert.Equal(t, "g1", group["id"])

	orgs := group["orgs"].([]any)
	require.Len(t, orgs, 2)
	ops := orgs[1].(map[string]any)
	assert.Equal(t, []any{}, ops["projects"])
}

func TestText(t *testing.T) {
	out := Text(BuildDocument(sampleGraph()))

	assert.Contains(t, out, "Group: Acme (ID: g1)")
	assert.Contains(t, out, "  Organization: Dev (ID: o1)")
	assert.Contains(t, out, "    Targets in Org: 1")
	assert.Contains(t, out, "    Project: repo-a:Dockerfile (ID: p1, Status: active) - Targets: 1")
	assert.Contains(t, out, "      Target: acme/repo-a (ID: t1, URL: https://dev.azure.com/acme/repo-a)")
	assert.Contains(t, out, "      Target: Not found (ID: t-gone, URL: N/A)")
	assert.Contains(t, out, "  Organization: Ops (ID: o2)")
	assert.Contains(t, out, "    Targets in Org: 0")
}

func TestText_ProjectWithoutTargets(t *testing.T) {
	g := sampleGraph()
	g.Group.Orgs[0].Projects[1].Targets = nil

	out := Text(BuildDocument(g))
	assert.Contains(t, out, "      Target: None")
}

func TestSummary(t *testing.T) {
	out := Summary(BuildDocument(sampleGraph()))

	assert.Contains(t, out, "Summary:")
	assert.Contains(t, out, "Total Organizations: 2")
	assert.Contains(t, out, "Organization: Dev (ID: o1)")
	assert.Contains(t, out, "  Total Projects: 2")
	assert.Contains(t, out, "  Total Targets in Org: 1")
	assert.Contains(t, out, "  Project: repo-a:Dockerfile (ID: p1) - Targets: 1")
}

func TestPresenterShow(t *testing.T) {
	var buf bytes.Buffer
	p := NewPresenter(&buf)

	g := sampleGraph()
	g.BranchErrors = append(g.BranchErrors, aggregate.BranchError{
		OrgID: "o3", OrgName: "QA", Resource: "projects", Err: assert.AnError,
	})

	require.NoError(t, p.Show(g))

	out := buf.String()
	assert.Contains(t, out, "Final JSON structure:")
	assert.Contains(t, out, "Well formatted output:")
	assert.Contains(t, out, "Summary:")
	assert.Contains(t, out, "Incomplete: 1 organization branch(es) failed:")
	assert.Contains(t, out, "org QA (o3): fetch projects")
}

func TestWriteFiles(t *testing.T) {
	dir := t.TempDir()
	doc := BuildDocument(sampleGraph())

	txt := filepath.Join(dir, "output.txt")
	require.NoError(t, WriteText(txt, doc))
	data, err := os.ReadFile(txt)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Group: Acme (ID: g1)")

	jsonPath := filepath.Join(dir, "output.json")
	require.NoError(t, WriteJSON(jsonPath, doc))
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	sum := filepath.Join(dir, "summary.txt")
	require.NoError(t, WriteSummary(sum, doc))
	data, err = os.ReadFile(sum)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Total Organizations: 2")
}

func TestWriteText_BadPath(t *testing.T) {
	err := WriteText(filepath.Join(t.TempDir(), "missing", "out.txt"), Document{})
	assert.Error(t, err)
}
