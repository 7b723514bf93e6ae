package engine

import "github.com/On-Jun9/PixelPipe/pkg/types"

// NewEventStream returns a Sink that forwards events into a channel, and
// that channel. The channel is closed after the finished event, so callers
// can range over it. Sends block when the buffer is full, which throttles
// the aggregator rather than dropping events.
func NewEventStream(buffer int) (Sink, <-chan types.ProgressEvent) {
	ch := make(chan types.ProgressEvent, buffer)
	sink := func(ev types.ProgressEvent) {
		ch <- ev
		if ev.Type == types.EventFinished {
			close(ch)
		}
	}
	return sink, ch
}

// Tee fans one event out to several sinks in order. Nil sinks are skipped.
func Tee(sinks ...Sink) Sink {
	return func(ev types.ProgressEvent) {
		for _, s := range sinks {
			if s != nil {
				s(ev)
			}
		}
	}
}
