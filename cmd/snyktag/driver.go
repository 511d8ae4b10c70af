package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/snyk-tools/snyk-tag-updater/internal/config"
	"github.com/snyk-tools/snyk-tag-updater/pkg/aggregate"
	"github.com/snyk-tools/snyk-tag-updater/pkg/export"
	"github.com/snyk-tools/snyk-tag-updater/pkg/logging"
	"github.com/snyk-tools/snyk-tag-updater/pkg/snyk"
	"github.com/snyk-tools/snyk-tag-updater/pkg/tags"
)

// driver runs the interactive session: aggregate, present, export, update.
type driver struct {
	cfg       *config.Config
	api       *snyk.API
	prompt    *prompter
	out       io.Writer
	presenter *export.Presenter
	logger    zerolog.Logger
}

func newDriver(cfg *config.Config, api *snyk.API, in io.Reader, out io.Writer) *driver {
	return &driver{
		cfg:       cfg,
		api:       api,
		prompt:    newPrompter(in, out),
		out:       out,
		presenter: export.NewPresenter(out),
		logger:    logging.NewLogger("driver"),
	}
}

func (d *driver) run(ctx context.Context) error {
	var filter *snyk.ProjectFilter
	if d.prompt.yes("\nApply default project filters? (y/n, default y): ", true) {
		filter = d.cfg.ProjectFilter()
	}

	graph, err := aggregate.NewBuilder(d.api).Build(ctx, filter)
	switch {
	case errors.Is(err, aggregate.ErrNoGroups):
		fmt.Fprintln(d.out, "No groups found")
		return nil
	case errors.Is(err, aggregate.ErrNoOrgs):
		fmt.Fprintln(d.out, "No organizations found in the group")
		return nil
	case err != nil:
		return err
	}

	if err := d.presenter.Show(graph); err != nil {
		return err
	}

	d.exportFiles(graph)
	d.updateTags(ctx, graph)

	fmt.Fprintln(d.out, "\nDone.")
	return nil
}

// exportFiles offers the operator file exports. Write failures are
// reported and the session continues.
func (d *driver) exportFiles(graph *aggregate.Graph) {
	doc := export.BuildDocument(graph)

	if d.prompt.yes("Write output to file? (y/n): ", false) {
		format := d.prompt.ask("Which format? (txt/json/both): ", "")
		if format == "txt" || format == "both" {
			name := d.prompt.ask(
				fmt.Sprintf("Enter TXT filename (default: %s): ", export.DefaultTextFile),
				export.DefaultTextFile)
			d.report(export.WriteText(name, doc), "TXT output written to "+name)
		}
		if format == "json" || format == "both" {
			name := d.prompt.ask(
				fmt.Sprintf("Enter JSON filename (default: %s): ", export.DefaultJSONFile),
				export.DefaultJSONFile)
			d.report(export.WriteJSON(name, doc), "JSON output written to "+name)
		}
	}

	if d.prompt.yes("Write summary to file? (y/n): ", false) {
		name := d.prompt.ask(
			fmt.Sprintf("Enter summary filename (default: %s): ", export.DefaultSummaryFile),
			export.DefaultSummaryFile)
		d.report(export.WriteSummary(name, doc), "Summary written to "+name)
	}
}

func (d *driver) report(err error, success string) {
	if err != nil {
		fmt.Fprintln(d.out, "Error writing file:", err)
		return
	}
	d.presenter.Notice("\n%s\n", success)
}

// updateTags runs the interactive tag update over the aggregated projects.
func (d *driver) updateTags(ctx context.Context, graph *aggregate.Graph) {
	projects := graph.Projects()

	fmt.Fprintln(d.out, "\nInteractive Tag Update")
	fmt.Fprintln(d.out, "-----------------------")
	fmt.Fprintln(d.out)
	for i, p := range projects {
		fmt.Fprintf(d.out, "%d: %s : %s\n", i+1, p.ID, p.Name)
	}

	if len(projects) == 0 || !d.prompt.yes("\nUpdate tags for filtered projects? (y/n): ", false) {
		fmt.Fprintln(d.out, "\nNo projects were updated.")
		d.recap(nil)
		return
	}

	selected := d.selectProjects(graph, projects)
	if len(selected) == 0 {
		fmt.Fprintln(d.out, "\nNo valid project IDs selected. Exiting update section.")
		d.recap(nil)
		return
	}

	updater := tags.NewUpdater(d.api)
	updater.Confirm = d.confirmPatch

	var changes []string
	for i, p := range selected {
		if i > 0 {
			if err := d.pause(ctx); err != nil {
				break
			}
		}
		entry, err := d.updateOne(ctx, updater, p)
		if err != nil {
			continue
		}
		changes = append(changes, entry)
	}
	d.recap(changes)
}

// selectProjects resolves the operator's choice to a project list: all of
// them, or a numbered subset of one organization's.
func (d *driver) selectProjects(graph *aggregate.Graph, projects []aggregate.Project) []aggregate.Project {
	if d.prompt.yes("Update ALL filtered projects? (y/n): ", false) {
		return projects
	}

	var orgs []aggregate.Org
	for _, org := range graph.Group.Orgs {
		if len(org.Projects) > 0 {
			orgs = append(orgs, org)
		}
	}
	if len(orgs) == 0 {
		fmt.Fprintln(d.out, "No organizations with filtered projects available")
		return nil
	}

	fmt.Fprintln(d.out, "\nSelect an organization by number:")
	for i, org := range orgs {
		fmt.Fprintf(d.out, "%d: %s (ID: %s)\n", i+1, org.Name, org.ID)
	}
	sel, err := strconv.Atoi(d.prompt.ask("Enter organization number: ", ""))
	if err != nil || sel < 1 || sel > len(orgs) {
		fmt.Fprintln(d.out, "Invalid organization number")
		return nil
	}
	org := orgs[sel-1]

	fmt.Fprintln(d.out, "\nSelect projects to update by number (comma separated) or type 'all':")
	for i, p := range org.Projects {
		fmt.Fprintf(d.out, "%d: %s : %s\n", i+1, p.ID, p.Name)
	}
	picks, all := d.prompt.selection("Enter your selection: ", len(org.Projects))
	if all {
		return org.Projects
	}
	var chosen []aggregate.Project
	for _, n := range picks {
		chosen = append(chosen, org.Projects[n-1])
	}
	return chosen
}

// updateOne prompts for the tag, previews the request and applies it to one
// project. The returned entry is the change-log line.
func (d *driver) updateOne(ctx context.Context, updater *tags.Updater, p aggregate.Project) (string, error) {
	key := d.prompt.ask(
		fmt.Sprintf("\nEnter tag key to update (default '%s'): ", d.cfg.Tag.Key),
		d.cfg.Tag.Key)
	value := d.prompt.ask(
		fmt.Sprintf("Enter value for tag '%s' (default '%s'): ", key, d.cfg.Tag.Value),
		d.cfg.Tag.Value)

	confirmation, err := updater.UpdateTag(ctx, p.OrgID, p.ID, key, value)
	if err != nil {
		if errors.Is(err, tags.ErrCancelled) {
			fmt.Fprintln(d.out, "\nPatch request cancelled by user")
		} else {
			fmt.Fprintf(d.out, "\nError updating project %s: %v\n", p.ID, err)
		}
		d.logger.Warn().Err(err).
			Str("org_id", p.OrgID).
			Str("project_id", p.ID).
			Msg("tag update did not complete")
		return "", err
	}

	entry := confirmation.String()
	d.presenter.Notice("\n%s", entry)
	return entry, nil
}

// confirmPatch shows the exact request about to go out and asks.
func (d *driver) confirmPatch(pv tags.Preview) bool {
	fmt.Fprintln(d.out, "\n--- Patch Request Details ---")
	fmt.Fprintln(d.out, "\nURL:", pv.URL)
	fmt.Fprintln(d.out, "\nHeaders:")
	for name, values := range pv.Headers {
		for _, v := range values {
			fmt.Fprintf(d.out, "  %s: %s\n", name, v)
		}
	}
	fmt.Fprintf(d.out, "\nPayload:\n%s\n\n", pv.Body)
	return d.prompt.yes("Proceed with this PATCH request? (y/n): ", false)
}

// pause waits the configured delay between consecutive updates.
func (d *driver) pause(ctx context.Context) error {
	if d.cfg.Update.Pause <= 0 {
		return nil
	}
	timer := time.NewTimer(d.cfg.Update.Pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *driver) recap(changes []string) {
	if len(changes) == 0 {
		fmt.Fprintln(d.out, "\nNo changes were made.")
		return
	}
	fmt.Fprintln(d.out, "\nChanges Made:")
	for _, c := range changes {
		fmt.Fprintln(d.out, c)
	}
}
