package export

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/snyk-tools/snyk-tag-updater/pkg/aggregate"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	errorColor   = color.New(color.FgRed)
	noticeColor  = color.New(color.FgGreen)
)

// Presenter writes the aggregated hierarchy to a console.
type Presenter struct {
	out io.Writer
}

// NewPresenter creates a presenter writing to out. A nil out defaults to
// stdout.
func NewPresenter(out io.Writer) *Presenter {
	if out == nil {
		out = os.Stdout
	}
	return &Presenter{out: out}
}

const rule = "============================================================"

// Show prints the raw JSON document, the formatted tree and the summary,
// separated by rules, then any branch errors collected during aggregation.
func (p *Presenter) Show(g *aggregate.Graph) error {
	doc := BuildDocument(g)

	raw, err := doc.JSON()
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}

	headingColor.Fprintln(p.out, "\nFinal JSON structure:")
	fmt.Fprintf(p.out, "\n%s\n\n%s\n\n", raw, rule)

	headingColor.Fprintln(p.out, "Well formatted output:")
	fmt.Fprintf(p.out, "\n%s\n\n%s\n\n", Text(doc), rule)

	headingColor.Fprintln(p.out, "Summary:")
	fmt.Fprintf(p.out, "\n%s\n\n%s\n\n", Summary(doc), rule)

	p.ShowBranchErrors(g)
	return nil
}

// ShowBranchErrors lists the organizations whose fetches failed. Nothing
// is printed when the aggregation was clean.
func (p *Presenter) ShowBranchErrors(g *aggregate.Graph) {
	if len(g.BranchErrors) == 0 {
		return
	}
	errorColor.Fprintf(p.out, "Incomplete: %d organization branch(es) failed:\n", len(g.BranchErrors))
	for _, be := range g.BranchErrors {
		errorColor.Fprintf(p.out, "  %s\n", be.Error())
	}
	fmt.Fprintln(p.out)
}

// Notice prints a highlighted status line.
func (p *Presenter) Notice(format string, args ...any) {
	noticeColor.Fprintf(p.out, format+"\n", args...)
}

// WriteText writes the formatted tree to path.
func WriteText(path string, d Document) error {
	return writeFile(path, []byte(Text(d)+"\n"))
}

// WriteJSON writes the JSON document to path.
func WriteJSON(path string, d Document) error {
	raw, err := d.JSON()
	if err != nil {
		return fmt.Errorf("serialize document: %w", err)
	}
	return writeFile(path, append(raw, '\n'))
}

// WriteSummary writes the summary to path.
func WriteSummary(path string, d Document) error {
	return writeFile(path, []byte(Summary(d)+"\n"))
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
