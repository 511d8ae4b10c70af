package export

import (
	"fmt"
	"strings"
)

// Text renders the full hierarchy as an indented tree. The layout is part
// of the export contract: tooling downstream greps these lines.
func Text(d Document) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Group: %s (ID: %s)\n\n", orUnknown(d.Group.Name), orNA(d.Group.ID))
	for _, org := range d.Group.Orgs {
		fmt.Fprintf(&b, "  Organization: %s (ID: %s)\n", orUnknown(org.Name), orNA(org.ID))
		fmt.Fprintf(&b, "    Targets in Org: %d\n\n", len(org.Targets))
		for _, p := range org.Projects {
			fmt.Fprintf(&b, "    Project: %s (ID: %s, Status: %s) - Targets: %d\n",
				orUnknown(p.Name), orNA(p.ID), orNA(p.Status), len(p.Targets))
			if len(p.Targets) == 0 {
				b.WriteString("      Target: None\n")
			}
			for _, t := range p.Targets {
				fmt.Fprintf(&b, "      Target: %s (ID: %s, URL: %s)\n",
					orUnknown(t.DisplayName), orNA(t.ID), orNA(t.URL))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// Summary renders the per-organization counts.
func Summary(d Document) string {
	var b strings.Builder

	b.WriteString("Summary:\n")
	fmt.Fprintf(&b, "Total Organizations: %d\n", len(d.Group.Orgs))
	for _, org := range d.Group.Orgs {
		b.WriteString("\n")
		fmt.Fprintf(&b, "Organization: %s (ID: %s)\n", orUnknown(org.Name), orNA(org.ID))
		fmt.Fprintf(&b, "  Total Projects: %d\n", len(org.Projects))
		fmt.Fprintf(&b, "  Total Targets in Org: %d\n", len(org.Targets))
		for _, p := range org.Projects {
			fmt.Fprintf(&b, "  Project: %s (ID: %s) - Targets: %d\n",
				orUnknown(p.Name), orNA(p.ID), len(p.Targets))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
