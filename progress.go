package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/clouddrive-go/internal/transfer"
)

// progressTemplate renders one bar per task: name, bar, percentage.
const progressTemplate = `{{string . "name"}} {{bar . }} {{percent . }}`

// progressView renders transfer task updates on stderr: a progress bar per
// running task on a terminal, one line per finished task otherwise.
type progressView struct {
	w     io.Writer
	quiet bool
	bars  bool

	mu     sync.Mutex
	active map[uuid.UUID]*pb.ProgressBar
}

func newProgressView(w io.Writer, quiet bool) *progressView {
	return &progressView{
		w:      w,
		quiet:  quiet,
		bars:   !quiet && isTerminal(w),
		active: make(map[uuid.UUID]*pb.ProgressBar),
	}
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Observe is the transfer.Observer for the CLI.
func (p *progressView) Observe(u transfer.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bars {
		p.updateBar(u)
	}

	if u.Status.Terminal() {
		p.printResult(u)
	}
}

func (p *progressView) updateBar(u transfer.Update) {
	bar, ok := p.active[u.TaskID]

	switch {
	case u.Status == transfer.StatusInProgress && !ok:
		bar = pb.New(100)
		bar.SetTemplateString(progressTemplate)
		bar.Set("name", fmt.Sprintf("%-8s %s", u.Kind, u.Name))
		bar.SetWriter(p.w)
		bar.Start()
		p.active[u.TaskID] = bar

	case ok && u.Status.Terminal():
		if u.Status == transfer.StatusSucceeded {
			bar.SetCurrent(100)
		}

		bar.Finish()
		delete(p.active, u.TaskID)

		return
	}

	if bar != nil {
		bar.SetCurrent(int64(u.Progress * 100))
	}
}

func (p *progressView) printResult(u transfer.Update) {
	if u.Status == transfer.StatusFailed {
		// Failures are shown even in quiet mode.
		fmt.Fprintf(p.w, "Failed to %s %s: %v\n", u.Kind, u.Name, u.Err)

		return
	}

	if p.quiet {
		return
	}

	verb := "Uploaded"
	if u.Kind == transfer.KindDownload {
		verb = "Downloaded"
	}

	if u.Size > 0 {
		fmt.Fprintf(p.w, "%s %s (%s)\n", verb, u.Name, formatSize(u.Size))
	} else {
		fmt.Fprintf(p.w, "%s %s\n", verb, u.Name)
	}
}
