// Package ui renders autosave activity and sets up process logging.
package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/bamsammich/savewarden/internal/autosave"
)

// Presenter consumes finished job reports and displays them.
type Presenter interface {
	// Run consumes reports until the channel closes. Blocks until done.
	Run(reports <-chan autosave.Report) error
	// Summary returns the final summary line.
	Summary() string
}

// Config configures a Presenter.
type Config struct {
	Writer io.Writer
	Quiet  bool
	// Color styles status words with the terminal palette.
	Color bool
	// Width, when positive, bounds the error text on failure lines.
	Width int
	// Clock formats the time prefix of each line; nil uses time.Time.Format.
	Clock func(time.Time) string
}

// NewPresenter creates the appropriate presenter based on configuration.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	if cfg.Quiet {
		return &quietPresenter{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func(t time.Time) string { return t.Format("15:04:05") }
	}
	return &plainPresenter{w: cfg.Writer, clock: clock, color: cfg.Color, width: cfg.Width}
}

// tally accumulates totals across jobs.
type tally struct {
	jobs, failed int
	files, bytes int64
}

func (t *tally) add(r autosave.Report) {
	t.jobs++
	if r.Err != nil {
		t.failed++
		return
	}
	t.files += r.Files
	t.bytes += r.Bytes
}

func (t *tally) summary() string {
	if t.jobs == 0 {
		return "no autosaves"
	}
	icon := "✓"
	if t.failed > 0 {
		icon = "✗"
	}
	return fmt.Sprintf("done %s  jobs %d  failed %d  files %s  size %s",
		icon, t.jobs, t.failed, FormatCount(t.files), FormatBytes(t.bytes))
}

// plainPresenter writes one line per job.
type plainPresenter struct {
	w     io.Writer
	clock func(time.Time) string
	color bool
	width int
	tally tally
}

func (p *plainPresenter) Run(reports <-chan autosave.Report) error {
	for r := range reports {
		p.tally.add(r)
		if err := p.print(r); err != nil {
			return err
		}
	}
	return nil
}

func (p *plainPresenter) print(r autosave.Report) error {
	ts := p.clock(r.Finished)
	if r.Err != nil {
		msg := r.Err.Error()
		if p.width > 0 {
			msg = Truncate(msg, max(p.width/2, 20))
		}
		_, err := fmt.Fprintf(p.w, "%s  %s  %s -> %s  code %d  %s\n",
			paint(p.color, styleMuted, ts), paint(p.color, styleFailed, "FAILED"),
			r.Source, r.Destination, r.Code, msg)
		return err
	}

	line := fmt.Sprintf("%s  %s  %s -> %s  %s",
		paint(p.color, styleMuted, ts), paint(p.color, styleOK, "saved"),
		r.Source, r.Destination, FormatDuration(r.CopyTime))
	if r.Files > 0 || r.Bytes > 0 {
		line += fmt.Sprintf("  files %s  size %s", FormatCount(r.Files), FormatBytes(r.Bytes))
		if r.CopyTime > 0 {
			rate := float64(r.Bytes) / r.CopyTime.Seconds()
			line += "  " + paint(p.color, styleRate, FormatRate(rate))
		}
	}
	if r.Flatten.FilesMoved > 0 {
		line += fmt.Sprintf("  flattened %d", r.Flatten.FilesMoved)
	}
	_, err := fmt.Fprintln(p.w, line)
	return err
}

func (p *plainPresenter) Summary() string { return p.tally.summary() }

// quietPresenter consumes reports but produces no output.
type quietPresenter struct {
	tally tally
}

func (p *quietPresenter) Run(reports <-chan autosave.Report) error {
	for r := range reports {
		p.tally.add(r)
	}
	return nil
}

func (p *quietPresenter) Summary() string { return "" }
