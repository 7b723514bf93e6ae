package verify

import (
	"image"
	"os"

	"github.com/On-Jun9/PixelPipe/internal/codec"
	"github.com/On-Jun9/PixelPipe/internal/errors"
)

// Verifier re-reads a written output and checks that it decodes back to
// an image of the expected size.
type Verifier struct {
	codec codec.Codec
}

func New(c codec.Codec) *Verifier {
	return &Verifier{codec: c}
}

func (v *Verifier) Verify(destPath string, want image.Rectangle) error {
	data, err := os.ReadFile(destPath)
	if err != nil {
		return errors.Wrap(err, "output file not readable")
	}
	if len(data) == 0 {
		return errors.Newf("output file is empty: %s", destPath)
	}

	img, err := v.codec.Decode(data)
	if err != nil {
		return errors.Wrap(err, "output does not decode")
	}

	if got := img.Bounds(); got.Dx() != want.Dx() || got.Dy() != want.Dy() {
		return errors.Newf("dimension mismatch: expected %dx%d, got %dx%d",
			want.Dx(), want.Dy(), got.Dx(), got.Dy())
	}
	return nil
}
