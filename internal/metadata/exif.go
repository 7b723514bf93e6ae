package metadata

import (
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/On-Jun9/PixelPipe/internal/errors"
)

const (
	SourceDateTimeOriginal  = "EXIF:DateTimeOriginal"
	SourceDateTimeDigitized = "EXIF:DateTimeDigitized"
	SourceModTime           = "mtime"
)

var errNoCaptureTime = errors.New("no capture time found in EXIF")

type EXIFReader struct{}

func NewEXIFReader() *EXIFReader {
	return &EXIFReader{}
}

// CaptureTime returns the shooting time recorded in the file and the tag it came from.
func (r *EXIFReader) CaptureTime(path string) (time.Time, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, "", err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, "", errors.Wrap(err, "no EXIF data")
	}

	if t, err := x.DateTime(); err == nil {
		return t, SourceDateTimeOriginal, nil
	}

	if tag, err := x.Get(exif.DateTimeDigitized); err == nil {
		if strVal, err := tag.StringVal(); err == nil {
			if t, err := time.ParseInLocation("2006:01:02 15:04:05", strVal, time.Local); err == nil {
				return t, SourceDateTimeDigitized, nil
			}
		}
	}

	return time.Time{}, "", errNoCaptureTime
}
