// Package codec defines the supported output formats and the decode/encode
// capability the converter calls into.
package codec

import (
	"bytes"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gen2brain/heic"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/On-Jun9/PixelPipe/internal/errors"
)

// Format is an output encoding.
type Format string

const (
	PNG  Format = "PNG"
	JPEG Format = "JPEG"
	BMP  Format = "BMP"
	GIF  Format = "GIF"
	TIFF Format = "TIFF"
)

// Formats lists the output formats in display order.
var Formats = []Format{PNG, JPEG, BMP, GIF, TIFF}

const (
	DefaultQuality = 85
	MinQuality     = 1
	MaxQuality     = 100
)

// ErrHEICDecode marks HEIC/HEIF input the decoder rejected.
var ErrHEICDecode = errors.New("HEIC decode failed")

// ParseFormat accepts a case-insensitive format name. "JPG" is an alias of JPEG.
func ParseFormat(s string) (Format, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "JPG" {
		name = string(JPEG)
	}
	for _, f := range Formats {
		if string(f) == name {
			return f, nil
		}
	}
	return "", errors.WithHintf(
		errors.Wrapf(errors.ErrUnsupportedFormat, "%q", s),
		"supported formats: %s", strings.Join(FormatNames(), ", "),
	)
}

// FormatNames returns the names of Formats.
func FormatNames() []string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return names
}

// Extension is the output file extension without dot, e.g. "jpeg".
func (f Format) Extension() string {
	return strings.ToLower(string(f))
}

// Options is passed through to the encoder.
type Options struct {
	// Quality applies to JPEG only.
	Quality int
}

// Codec decodes input bytes and encodes images into an output format.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	Encode(img image.Image, format Format, opts Options) ([]byte, error)
}

// Std is the Codec backed by the standard library, golang.org/x/image and
// gen2brain/heic for HEIC/HEIF input.
type Std struct{}

func New() *Std {
	return &Std{}
}

func (c *Std) Decode(data []byte) (image.Image, error) {
	if isHEIF(data) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Mark(errors.Mark(errors.Wrap(err, "decode heic"), ErrHEICDecode), errors.ErrConversion)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode"), errors.ErrConversion)
	}
	return img, nil
}

func (c *Std) Encode(img image.Image, format Format, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	switch format {
	case PNG:
		err = png.Encode(&buf, img)
	case JPEG:
		q := opts.Quality
		if q < MinQuality || q > MaxQuality {
			q = DefaultQuality
		}
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: q})
	case BMP:
		err = bmp.Encode(&buf, img)
	case GIF:
		err = gif.Encode(&buf, img, nil)
	case TIFF:
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, errors.Wrapf(errors.ErrUnsupportedFormat, "%q", format)
	}

	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "encode %s", format), errors.ErrConversion)
	}
	return buf.Bytes(), nil
}

// isHEIF sniffs the ISO-BMFF ftyp box for HEIF brands.
func isHEIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heim", "heis", "hevc", "hevx", "mif1", "msf1":
		return true
	}
	return false
}
