package training

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// ProgressReporter renders batch progress for one phase of an epoch.
type ProgressReporter interface {
	Start(desc string, total int)
	Increment()
	Finish()
}

// TermProgress draws a progress bar on stderr. A nil ProgressReporter is
// valid everywhere one is accepted; the trainer skips reporting entirely.
type TermProgress struct {
	bar *progressbar.ProgressBar
}

// NewTermProgress returns a stderr progress reporter, or nil when disabled.
func NewTermProgress(enabled bool) ProgressReporter {
	if !enabled {
		return nil
	}
	return &TermProgress{}
}

func (p *TermProgress) Start(desc string, total int) {
	if total <= 0 {
		return
	}
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *TermProgress) Increment() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Add(1)
}

func (p *TermProgress) Finish() {
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	p.bar = nil
}

// DefaultProgressEnabled reports whether stderr is a terminal, the gate for
// drawing progress bars by default.
func DefaultProgressEnabled() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}
