// Package export renders the aggregated resource hierarchy for the console
// and serializes it to files.
package export

import (
	"encoding/json"

	"github.com/snyk-tools/snyk-tag-updater/pkg/aggregate"
)

// Default filenames offered when the operator does not name one.
const (
	DefaultTextFile    = "output.txt"
	DefaultJSONFile    = "output.json"
	DefaultSummaryFile = "summary.txt"
)

// Document is the serializable form of the aggregated hierarchy. Its shape
// is the export contract: stable keys, targets before projects, projects
// carrying their resolved target references inline.
type Document struct {
	Group GroupDoc `json:"group"`
}

type GroupDoc struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Orgs []OrgDoc `json:"orgs"`
}

type OrgDoc struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Targets  []TargetDoc  `json:"targets"`
	Projects []ProjectDoc `json:"projects"`
}

type TargetDoc struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}

type ProjectDoc struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	Targets []TargetDoc `json:"targets"`
}

// BuildDocument converts the in-memory graph into its serializable form.
func BuildDocument(g *aggregate.Graph) Document {
	doc := Document{Group: GroupDoc{
		ID:   g.Group.ID,
		Name: g.Group.Name,
		Orgs: []OrgDoc{},
	}}

	for _, org := range g.Group.Orgs {
		orgDoc := OrgDoc{
			ID:       org.ID,
			Name:     org.Name,
			Targets:  []TargetDoc{},
			Projects: []ProjectDoc{},
		}
		for _, t := range org.Targets {
			orgDoc.Targets = append(orgDoc.Targets, TargetDoc{
				ID:          t.ID,
				DisplayName: t.DisplayName,
				URL:         t.URL,
			})
		}
		for _, p := range org.Projects {
			orgDoc.Projects = append(orgDoc.Projects, projectDoc(p))
		}
		doc.Group.Orgs = append(doc.Group.Orgs, orgDoc)
	}

	return doc
}

func projectDoc(p aggregate.Project) ProjectDoc {
	pd := ProjectDoc{
		ID:      p.ID,
		Name:    p.Name,
		Status:  p.Status,
		Targets: []TargetDoc{},
	}
	for _, t := range p.Targets {
		td := TargetDoc{ID: t.ID, DisplayName: t.DisplayName, URL: t.URL}
		if !t.Associated {
			td.DisplayName = "Not found"
			td.URL = ""
		}
		pd.Targets = append(pd.Targets, td)
	}
	return pd
}

// JSON serializes the document with two-space indentation.
func (d Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}
