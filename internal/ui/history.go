package ui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/bamsammich/savewarden/internal/history"
)

var historyHeaders = []string{"ID", "STARTED", "DURATION", "OUTCOME", "FILES", "SIZE", "DESTINATION"}

// FormatHistory renders jobs as a table, newest first as given. Color adds
// the palette; without it the output is plain ASCII-safe text.
func FormatHistory(jobs []history.Job, color bool) string {
	if len(jobs) == 0 {
		return "no autosave jobs recorded"
	}

	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		outcome := j.Outcome
		if j.Outcome == history.OutcomeFailed && j.Code != 0 {
			outcome += " (" + strconv.Itoa(j.Code) + ")"
		}
		rows = append(rows, []string{
			strconv.FormatInt(j.ID, 10),
			j.StartedAt.Local().Format(time.DateTime),
			FormatDuration(j.Duration()),
			outcome,
			FormatCount(j.Files),
			FormatBytes(j.Bytes),
			j.Dest,
		})
	}

	t := table.New().
		Headers(historyHeaders...).
		Rows(rows...)

	if !color {
		return t.Border(lipgloss.HiddenBorder()).
			StyleFunc(func(_, _ int) lipgloss.Style { return lipgloss.NewStyle().PaddingRight(1) }).
			Render()
	}

	return t.Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleHeader.Padding(0, 1)
			}
			if col == 3 {
				if rows[row][3] == history.OutcomeOK {
					return styleOK.Padding(0, 1)
				}
				return styleFailed.Padding(0, 1)
			}
			return styleCell
		}).
		Render()
}
