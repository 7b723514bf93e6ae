package main

import (
	"github.com/pterm/pterm"

	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// progressBar renders engine events as a pterm progress bar. Events arrive
// from one goroutine at a time, so no locking is needed.
type progressBar struct {
	bar *pterm.ProgressbarPrinter
}

func newProgressBar() *progressBar {
	return &progressBar{}
}

func (b *progressBar) handle(ev types.ProgressEvent) {
	switch ev.Type {
	case types.EventStarted:
		if ev.Total == 0 {
			return
		}
		bar, err := pterm.DefaultProgressbar.WithTotal(ev.Total).WithTitle("Converting").Start()
		if err == nil {
			b.bar = bar
		}
	case types.EventItemCompleted:
		if ev.Outcome != nil && !ev.Outcome.Success() {
			pterm.Error.Printf("%s: %s\n", ev.Outcome.Task.Name, ev.Outcome.Reason)
		}
		if b.bar != nil {
			if ev.Outcome != nil {
				b.bar.UpdateTitle(ev.Outcome.Task.Name)
			}
			b.bar.Increment()
		}
	case types.EventFatalError, types.EventFinished:
		b.stop()
	}
}

func (b *progressBar) stop() {
	if b.bar != nil {
		b.bar.Stop()
		b.bar = nil
	}
}
