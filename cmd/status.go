package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"
	"github.com/rivo/uniseg"
	"github.com/spf13/cobra"

	"github.com/flowforge/taskctl/internal/audit"
	"github.com/flowforge/taskctl/internal/registry"
)

var (
	statusSince string
	statusFull  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a snapshot of every project's slots and recent anomalies",
	Long: `Print, for every registered project, every role/level/slot's
active state, the issue and session it holds (if any), and its age, plus
the most recent audit records (optionally filtered with --since).`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusSince, "since", "", "only show audit records since this RFC3339 timestamp")
	statusCmd.Flags().BoolVar(&statusFull, "full", false, "wrap audit field dumps at 100 columns instead of truncating them")
	rootCmd.AddCommand(statusCmd)
}

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("243"))

func runStatus(cmd *cobra.Command, _ []string) error {
	workspace := workspaceFlag

	projects, err := registry.ReadProjects(workspace)
	if err != nil {
		return fmt.Errorf("reading registry: %w", err)
	}

	slugs := make([]string, 0, len(projects))
	for slug := range projects {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	if len(slugs) == 0 {
		fmt.Println("no projects registered")
	}
	for _, slug := range slugs {
		printProjectSlots(projects[slug])
	}

	return printRecentAudit(workspace)
}

type slotRow struct {
	role, level string
	index       int
	active      string
	issueID     string
	sessionKey  string
	age         string
}

func printProjectSlots(project *registry.Project) {
	fmt.Printf("\n%s (%s)\n", project.Name, project.Slug)

	var rows []slotRow
	roles := make([]string, 0, len(project.Workers))
	for role := range project.Workers {
		roles = append(roles, role)
	}
	sort.Strings(roles)

	now := time.Now()
	for _, role := range roles {
		levels := make([]string, 0, len(project.Workers[role]))
		for level := range project.Workers[role] {
			levels = append(levels, level)
		}
		sort.Strings(levels)
		for _, level := range levels {
			for i, slot := range project.Workers[role][level] {
				row := slotRow{role: role, level: level, index: i, issueID: slot.IssueID, sessionKey: slot.SessionKey}
				if slot.Active {
					row.active = "active"
				} else {
					row.active = "idle"
				}
				if slot.StartTime != nil {
					row.age = now.Sub(*slot.StartTime).Round(time.Second).String()
				}
				rows = append(rows, row)
			}
		}
	}

	if len(rows) == 0 {
		fmt.Println("  (no worker slots yet)")
		return
	}

	cols := []string{"ROLE", "LEVEL", "#", "STATE", "ISSUE", "SESSION", "AGE"}
	widths := []int{10, 8, 2, 7, 10, 28, 10}
	printTableHeader(cols, widths)
	for _, r := range rows {
		printTableRow([]string{r.role, r.level, fmt.Sprintf("%d", r.index), r.active, r.issueID, r.sessionKey, r.age}, widths)
	}
}

func printRecentAudit(workspace string) error {
	path := filepath.Join(workspace, "audit.jsonl")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	sink, err := audit.NewFileSink(path)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer sink.Close()

	q := audit.Query{Limit: 20}
	if statusSince != "" {
		since, err := time.Parse(time.RFC3339, statusSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}
		q.Since = since
	}

	records, err := sink.Query(context.Background(), q)
	if err != nil {
		return fmt.Errorf("querying audit log: %w", err)
	}

	fmt.Println("\nrecent audit records:")
	for _, rec := range records {
		fields := fmt.Sprintf("%v", rec.Fields)
		prefix := fmt.Sprintf("  %s  %-16s  ", rec.Time.Format(time.RFC3339), rec.Kind)
		if statusFull {
			wrapped := wordwrap.String(fields, 100)
			indent := strings.Repeat(" ", len(prefix))
			for i, line := range strings.Split(wrapped, "\n") {
				if i == 0 {
					fmt.Println(prefix + line)
				} else {
					fmt.Println(indent + line)
				}
			}
			continue
		}
		fmt.Println(prefix + truncateDisplay(fields, 100))
	}
	return nil
}

// truncateDisplay bounds s to at most max terminal cells, stepping cluster
// by cluster so a field value copied from an issue title (emoji, combining
// marks) doesn't overrun the line or split a multi-rune grapheme in half.
func truncateDisplay(s string, max int) string {
	if uniseg.StringWidth(s) <= max {
		return s
	}
	var out string
	width, state := 0, -1
	for len(s) > 0 {
		cluster, rest, _, newState := uniseg.StepString(s, state)
		w := uniseg.StringWidth(cluster)
		if width+w > max-1 {
			break
		}
		out += cluster
		width += w
		s, state = rest, newState
	}
	return out + "…"
}

func printTableHeader(cols []string, widths []int) {
	var cells []string
	for i, c := range cols {
		cells = append(cells, padCell(c, widths[i]))
	}
	fmt.Println("  " + headerStyle.Render(joinCells(cells)))
}

func printTableRow(cells []string, widths []int) {
	var padded []string
	for i, c := range cells {
		padded = append(padded, padCell(truncateCell(c, widths[i]), widths[i]))
	}
	fmt.Println("  " + joinCells(padded))
}

// truncateCell shortens s to fit width display cells, measured with
// runewidth.StringWidth so a wide (CJK) rune doesn't throw off alignment.
func truncateCell(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	out := []rune{}
	w := 0
	for _, r := range s {
		rw := runewidth.RuneWidth(r)
		if w+rw > width-1 {
			break
		}
		out = append(out, r)
		w += rw
	}
	return string(out) + "…"
}

// padCell right-pads s with spaces to width display cells.
func padCell(s string, width int) string {
	w := runewidth.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func joinCells(cells []string) string {
	out := ""
	for i, c := range cells {
		if i > 0 {
			out += " "
		}
		out += c
	}
	return out
}
