package metadata

import (
	"time"

	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// Stamper picks the modification time given to a converted file.
type Stamper struct {
	exif *EXIFReader
}

func New() *Stamper {
	return &Stamper{exif: NewEXIFReader()}
}

// OutputTime prefers the EXIF capture time and falls back to the source
// file's modification time.
func (s *Stamper) OutputTime(entry types.FileEntry) (time.Time, string) {
	if t, source, err := s.exif.CaptureTime(entry.Path); err == nil {
		return t, source
	}
	return entry.ModTime, SourceModTime
}
