// Package converter turns one scanned image into its planned output file.
package converter

import (
	"context"
	"image"
	"os"

	"github.com/On-Jun9/PixelPipe/internal/codec"
	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/internal/metadata"
	"github.com/On-Jun9/PixelPipe/internal/planner"
	"github.com/On-Jun9/PixelPipe/internal/verify"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

type Config struct {
	Codec   codec.Codec
	Format  codec.Format
	Quality int
	// Targets maps input path to planned output, as built by planner.PlanAll.
	Targets map[string]planner.Target
	// Stamper sets the output modification time. Nil leaves the write time.
	Stamper *metadata.Stamper
	Verify  bool
}

type Converter struct {
	codec    codec.Codec
	format   codec.Format
	opts     codec.Options
	targets  map[string]planner.Target
	stamper  *metadata.Stamper
	verifier *verify.Verifier
}

func New(cfg Config) *Converter {
	c := &Converter{
		codec:   cfg.Codec,
		format:  cfg.Format,
		opts:    codec.Options{Quality: cfg.Quality},
		targets: cfg.Targets,
		stamper: cfg.Stamper,
	}
	if c.codec == nil {
		c.codec = codec.New()
	}
	if cfg.Verify {
		c.verifier = verify.New(c.codec)
	}
	return c
}

// Convert decodes task, encodes it in the target format and writes the
// planned output atomically into the existing output directory. It matches
// engine.ConvertFunc. A started conversion runs to completion even if ctx
// is cancelled; the engine stops dispatching instead.
func (c *Converter) Convert(ctx context.Context, task types.FileEntry) types.Outcome {
	target, ok := c.targets[task.Path]
	if !ok {
		return types.Failed(task, errors.Mark(errors.Newf("no output planned for %s", task.Name), errors.ErrConversion))
	}
	if target.Action == types.ConvertActionSkipped {
		return types.Succeeded(task, target.DestPath, types.ConvertActionSkipped)
	}

	data, err := os.ReadFile(task.Path)
	if err != nil {
		return failed(task, err, "read source")
	}

	img, err := c.codec.Decode(data)
	if err != nil {
		return failed(task, err, "decode")
	}

	encoded, err := c.codec.Encode(img, c.format, c.opts)
	if err != nil {
		return failed(task, err, "encode")
	}

	partPath := target.DestPath + ".part"
	if err := c.writeOutput(task, partPath, target.DestPath, encoded, img); err != nil {
		os.Remove(partPath)
		return failed(task, err, "write output")
	}

	return types.Succeeded(task, target.DestPath, target.Action)
}

func (c *Converter) writeOutput(task types.FileEntry, partDest, finalDest string, data []byte, img image.Image) error {
	if err := os.WriteFile(partDest, data, 0644); err != nil {
		return err
	}

	if c.verifier != nil {
		if err := c.verifier.Verify(partDest, img.Bounds()); err != nil {
			return errors.Wrap(err, "verify")
		}
	}

	// Carry the capture time over to the converted file.
	if c.stamper != nil {
		t, _ := c.stamper.OutputTime(task)
		if !t.IsZero() {
			if err := os.Chtimes(partDest, t, t); err != nil {
				return errors.Wrap(err, "set modification time")
			}
		}
	}

	return os.Rename(partDest, finalDest)
}

func failed(task types.FileEntry, err error, op string) types.Outcome {
	return types.Failed(task, errors.Mark(errors.Wrap(err, op), errors.ErrConversion))
}
