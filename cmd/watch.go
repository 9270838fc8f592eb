package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"

	"github.com/flowforge/taskctl/internal/audit"
	"github.com/flowforge/taskctl/internal/pubsub"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live dashboard of dispatch and health-fix events as they happen",
	Long: `Open a scrolling dashboard subscribed to the live record stream of
the audit sink this command opens on the workspace's audit.jsonl: every
record published through that sink appears as a new line. Records that
another process (e.g. taskctl serve) appends to the file are not read
back from it, and earlier history is not replayed.

Rows are click-expandable (via the mouse) to show their full field dump.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	zone.NewGlobal()

	path := filepath.Join(workspaceFlag, "audit.jsonl")
	sink, err := audit.NewFileSink(path)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer sink.Close()

	p := tea.NewProgram(newWatchModel(sink), tea.WithAltScreen(), tea.WithMouseCellMotion())
	_, err = p.Run()
	return err
}

type watchRow struct {
	zoneID string
	rec    audit.Record
}

type watchModel struct {
	sink   *audit.FileSink
	ctx    context.Context
	cancel context.CancelFunc
	events <-chan pubsub.Event[audit.Record]

	rows     []watchRow
	expanded map[string]bool
	view     viewport.Model
	nextZone int
	width    int
	height   int
}

func newWatchModel(sink *audit.FileSink) *watchModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &watchModel{
		sink:     sink,
		ctx:      ctx,
		cancel:   cancel,
		events:   sink.Subscribe(ctx),
		expanded: make(map[string]bool),
		view:     viewport.New(80, 24),
	}
}

func (m *watchModel) Init() tea.Cmd {
	return pubsub.ListenCmd(m.ctx, m.events)
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.view.Width = msg.Width
		m.view.Height = msg.Height - 2
		m.render()
		return m, nil

	case tea.MouseMsg:
		if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
			for _, row := range m.rows {
				if z := zone.Get(row.zoneID); z != nil && z.InBounds(msg) {
					m.expanded[row.zoneID] = !m.expanded[row.zoneID]
					m.render()
					break
				}
			}
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.view, cmd = m.view.Update(msg)
		return m, cmd

	case pubsub.Event[audit.Record]:
		m.appendRecord(msg.Payload)
		m.render()
		return m, pubsub.ListenCmd(m.ctx, m.events)
	}

	var cmd tea.Cmd
	m.view, cmd = m.view.Update(msg)
	return m, cmd
}

func (m *watchModel) appendRecord(rec audit.Record) {
	zoneID := fmt.Sprintf("row-%d", m.nextZone)
	m.nextZone++
	m.rows = append(m.rows, watchRow{zoneID: zoneID, rec: rec})
	if len(m.rows) > 500 {
		m.rows = m.rows[len(m.rows)-500:]
	}
}

var (
	watchKindStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	watchTimeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
)

func (m *watchModel) render() {
	var b strings.Builder
	for _, row := range m.rows {
		line := fmt.Sprintf("%s  %s",
			watchTimeStyle.Render(row.rec.Time.Format(time.TimeOnly)),
			watchKindStyle.Render(row.rec.Kind))
		if m.expanded[row.zoneID] {
			line += "\n  " + fmt.Sprintf("%v", row.rec.Fields)
		}
		b.WriteString(zone.Mark(row.zoneID, line))
		b.WriteString("\n")
	}
	m.view.SetContent(b.String())
	m.view.GotoBottom()
}

func (m *watchModel) View() string {
	header := lipgloss.NewStyle().Bold(true).Render(" taskctl watch — click a row to expand, q to quit ")
	return zone.Scan(header + "\n" + m.view.View())
}
