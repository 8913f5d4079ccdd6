package ui_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/savewarden/internal/autosave"
	"github.com/bamsammich/savewarden/internal/flatten"
	"github.com/bamsammich/savewarden/internal/ui"
)

func fixedClock(time.Time) string { return "12:00:00" }

func TestPlainPresenter(t *testing.T) {
	var buf bytes.Buffer
	p := ui.NewPresenter(ui.Config{Writer: &buf, Clock: fixedClock})

	reports := make(chan autosave.Report, 2)
	reports <- autosave.Report{
		Source:      "/saves",
		Destination: "/backup",
		CopyTime:    45 * time.Millisecond,
		Files:       3,
		Bytes:       2048,
		Flatten:     flatten.Result{FilesMoved: 2},
	}
	reports <- autosave.Report{
		Source:      "/saves",
		Destination: "/backup",
		Err:         errors.New("tool exited with status 3"),
		Code:        3,
	}
	close(reports)

	require.NoError(t, p.Run(reports))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Equal(t, "12:00:00  saved  /saves -> /backup  45ms  files 3  size 2.0 KiB  44.4 KB/s  flattened 2", string(lines[0]))
	assert.Equal(t, "12:00:00  FAILED  /saves -> /backup  code 3  tool exited with status 3", string(lines[1]))
	assert.Equal(t, "done ✗  jobs 2  failed 1  files 3  size 2.0 KiB", p.Summary())
}

func TestPlainPresenterNoJobs(t *testing.T) {
	p := ui.NewPresenter(ui.Config{Writer: &bytes.Buffer{}})
	reports := make(chan autosave.Report)
	close(reports)
	require.NoError(t, p.Run(reports))
	assert.Equal(t, "no autosaves", p.Summary())
}

func TestQuietPresenter(t *testing.T) {
	var buf bytes.Buffer
	p := ui.NewPresenter(ui.Config{Writer: &buf, Quiet: true})

	reports := make(chan autosave.Report, 1)
	reports <- autosave.Report{Source: "a", Destination: "b"}
	close(reports)

	require.NoError(t, p.Run(reports))
	assert.Empty(t, buf.String())
	assert.Empty(t, p.Summary())
}

func TestPlainPresenterTruncatesErrors(t *testing.T) {
	var buf bytes.Buffer
	p := ui.NewPresenter(ui.Config{Writer: &buf, Clock: fixedClock, Width: 40})

	reports := make(chan autosave.Report, 1)
	reports <- autosave.Report{
		Source:      "/s",
		Destination: "/d",
		Err:         errors.New("copy tool wrote a very long diagnostic that keeps going"),
		Code:        1,
	}
	close(reports)
	require.NoError(t, p.Run(reports))

	assert.Equal(t, "12:00:00  FAILED  /s -> /d  code 1  copy tool wrote a v…\n", buf.String())
}
