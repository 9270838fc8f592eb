package cmd

import (
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

func init() {
	// Force ANSI color output so headerStyle.Render in these tests doesn't
	// silently no-op under a NO_COLOR/dumb-terminal test runner.
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func TestPadCell_PadsToWidth(t *testing.T) {
	require.Equal(t, "abc  ", padCell("abc", 5))
}

func TestPadCell_NoOpWhenAlreadyWide(t *testing.T) {
	require.Equal(t, "abcdef", padCell("abcdef", 4))
}

func TestTruncateCell_ShortensAndAddsEllipsis(t *testing.T) {
	got := truncateCell("a-very-long-session-key-value", 10)
	require.Equal(t, 10, lipgloss.Width(got))
	require.Contains(t, got, "…")
}

func TestTruncateCell_NoOpWhenFits(t *testing.T) {
	require.Equal(t, "short", truncateCell("short", 10))
}

func TestTruncateDisplay_FitsUnderMax(t *testing.T) {
	require.Equal(t, "hello", truncateDisplay("hello", 10))
}

func TestTruncateDisplay_TruncatesLongFieldDump(t *testing.T) {
	long := "map[issue_id:1234 role:backend level:senior title:a very long issue title indeed]"
	got := truncateDisplay(long, 20)
	require.LessOrEqual(t, len(got), len(long))
	require.Contains(t, got, "…")
}
