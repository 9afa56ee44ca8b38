// Package output renders console reports for the command-line tools.
package output

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/ritzau/kube-playground/pkg/advisor"
	"github.com/ritzau/kube-playground/pkg/kinds"
	"github.com/ritzau/kube-playground/pkg/model"
)

var (
	bold   = color.New(color.Bold)
	red    = color.New(color.FgRed)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
)

func severityColor(s advisor.Severity) *color.Color {
	switch s {
	case advisor.SeverityError:
		return red
	case advisor.SeverityWarning:
		return yellow
	default:
		return cyan
	}
}

// PrintAdviceReport prints the advice found for source, grouped by
// severity, followed by a summary line.
func PrintAdviceReport(w io.Writer, source string, g *model.Graph, advice []advisor.Advice) {
	bold.Fprintln(w, "Kubernetes Playground - Manifest Check")
	bold.Fprintln(w, "======================================")
	fmt.Fprintf(w, "Source: %s\n", source)
	if g != nil {
		fmt.Fprintf(w, "Resources: %d nodes, %d relationships\n", g.Len(), len(g.Edges()))
	}
	fmt.Fprintln(w)

	for _, sev := range []advisor.Severity{advisor.SeverityError, advisor.SeverityWarning, advisor.SeverityInfo} {
		var group []advisor.Advice
		for _, a := range advice {
			if a.Severity == sev {
				group = append(group, a)
			}
		}
		if len(group) == 0 {
			continue
		}

		c := severityColor(sev)
		c.Fprintf(w, "%s (%d):\n", heading(sev), len(group))
		for _, a := range group {
			c.Fprintf(w, "  [%s] ", a.Rule)
			fmt.Fprintln(w, a.Message)
			switch {
			case a.NodeID != "":
				cyan.Fprintf(w, "    Node: %s\n", a.NodeID)
			case a.Line > 0:
				cyan.Fprintf(w, "    Line: %d\n", a.Line)
			}
		}
		fmt.Fprintln(w)
	}

	counts := advisor.Count(advice)
	summary := green
	if counts[advisor.SeverityWarning] > 0 {
		summary = yellow
	}
	if counts[advisor.SeverityError] > 0 {
		summary = red
	}
	summary.Fprintf(w, "Summary: %d error(s), %d warning(s), %d suggestion(s)\n",
		counts[advisor.SeverityError], counts[advisor.SeverityWarning], counts[advisor.SeverityInfo])

	if len(advice) == 0 {
		green.Fprintln(w, "✓ No issues found!")
	}
}

func heading(s advisor.Severity) string {
	switch s {
	case advisor.SeverityError:
		return "ERRORS"
	case advisor.SeverityWarning:
		return "WARNINGS"
	default:
		return "SUGGESTIONS"
	}
}

// PrintGraphSummary prints node counts per component type and every edge.
func PrintGraphSummary(w io.Writer, g *model.Graph) {
	perType := make(map[kinds.ComponentType]int)
	for _, n := range g.Nodes() {
		perType[n.Type]++
	}
	types := make([]kinds.ComponentType, 0, len(perType))
	for t := range perType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	bold.Fprintln(w, "Components:")
	for _, t := range types {
		fmt.Fprintf(w, "  %-14s %d\n", t, perType[t])
	}
	bold.Fprintln(w, "Relationships:")
	for _, e := range g.Edges() {
		fmt.Fprintf(w, "  %s ", e.Source)
		cyan.Fprintf(w, "-%s->", e.Relationship)
		fmt.Fprintf(w, " %s\n", e.Target)
	}
}
