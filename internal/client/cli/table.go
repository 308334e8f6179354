package cli

import (
	"os"
	"strconv"

	"github.com/dmitrijs2005/bizkeeper/internal/client/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"
)

const (
	defaultTermWidth = 80
	minTitleWidth    = 12
	// fixedColumnsWidth covers ID, Status, Priority, Created and Sync plus
	// the borders and padding of all six columns.
	fixedColumnsWidth = 6 + 11 + 8 + 16 + 6 + 19
)

// terminalWidth is a seam for tests.
var terminalWidth = func() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return defaultTermWidth
}

// renderRecords formats records as a table that fits width columns. Titles
// are truncated by display width, so wide characters do not break rows.
func renderRecords(records []models.Record, width int) string {
	if len(records) == 0 {
		return "(no records)"
	}

	titleWidth := width - fixedColumnsWidth
	if titleWidth < minTitleWidth {
		titleWidth = minTitleWidth
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Created", "Sync"})

	for _, r := range records {
		t.AppendRow(table.Row{
			strconv.FormatInt(r.LocalID, 10),
			runewidth.Truncate(r.Title, titleWidth, "..."),
			r.Status,
			r.Priority,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			syncLabel(r.Pending),
		})
	}

	return t.Render()
}

func syncLabel(p models.Pending) string {
	if p == models.PendingNone {
		return ""
	}
	return string(p)
}
