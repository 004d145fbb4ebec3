package stp

import "github.com/schollz/progressbar/v3"

// barProgress adapts a schollz/progressbar/v3 bar to the ProgressReporter
// interface the sender's consumer loop drives as bytes are acknowledged.
type barProgress struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar returns a ProgressReporter rendering a terminal progress
// bar tracking bytes acknowledged against total.
func NewProgressBar(total int) ProgressReporter {
	return &barProgress{bar: progressbar.DefaultBytes(int64(total), "sending")}
}

func (p *barProgress) Add(n int) { _ = p.bar.Add(n) }
func (p *barProgress) Close()    { _ = p.bar.Finish() }
