package main

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/moffa90/go-otaflash/ota"
)

// progressBar renders ota.Progress as a byte progress bar.
type progressBar struct {
	w    io.Writer
	bar  *progressbar.ProgressBar
	desc string
}

func newProgressBar(w io.Writer, size int) *progressBar {
	return &progressBar{
		w: w,
		bar: progressbar.NewOptions(size,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("Connecting"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		),
	}
}

func (p *progressBar) update(pr ota.Progress) {
	if desc := describe(pr); desc != p.desc {
		p.desc = desc
		p.bar.Describe(desc)
	}
	if pr.BytesSent > 0 {
		_ = p.bar.Set(pr.BytesSent)
	}
}

func (p *progressBar) finish(ok bool) {
	if ok {
		_ = p.bar.Finish()
		return
	}
	_ = p.bar.Exit()
	fmt.Fprintln(p.w)
}

func describe(pr ota.Progress) string {
	switch pr.Phase {
	case ota.PhaseStart:
		if pr.Attempt > 1 {
			return fmt.Sprintf("Starting (attempt %d)", pr.Attempt)
		}
		return "Starting"
	case ota.PhaseData:
		return "Writing"
	case ota.PhaseEnd:
		return "Verifying"
	case ota.PhaseComplete:
		return "Done"
	default:
		return "Failed"
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
