package pipeline

import "github.com/On-Jun9/PixelPipe/pkg/types"

// ProgressCallback receives every engine event of a run, in order, from a
// single goroutine. Scan and setup failures are reported as started,
// fatal_error, finished with zero counts.
type ProgressCallback func(event types.ProgressEvent)
