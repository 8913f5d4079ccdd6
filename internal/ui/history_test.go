package ui_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/savewarden/internal/history"
	"github.com/bamsammich/savewarden/internal/ui"
)

func TestFormatHistory(t *testing.T) {
	start := time.Date(2026, 5, 2, 9, 30, 0, 0, time.Local)
	jobs := []history.Job{
		{ID: 2, StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
			Dest: "/backup", Outcome: history.OutcomeFailed, Code: 3},
		{ID: 1, StartedAt: start, FinishedAt: start.Add(time.Second),
			Dest: "/backup", Outcome: history.OutcomeOK, Files: 1200, Bytes: 4096},
	}

	out := ui.FormatHistory(jobs, false)
	lines := strings.Split(strings.TrimSpace(out), "\n")

	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "failed (3)")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "4.0 KiB")
	assert.Contains(t, out, "2026-05-02 09:30:00")
	assert.NotContains(t, out, "\x1b[", "plain output has no escape codes")

	var failedAt, okAt int
	for i, l := range lines {
		if strings.Contains(l, "failed (3)") {
			failedAt = i
		}
		if strings.Contains(l, " ok ") {
			okAt = i
		}
	}
	assert.Less(t, failedAt, okAt, "rows keep the given order")
}

func TestFormatHistoryEmpty(t *testing.T) {
	assert.Equal(t, "no autosave jobs recorded", ui.FormatHistory(nil, true))
}
