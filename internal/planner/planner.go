package planner

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/On-Jun9/PixelPipe/internal/codec"
	"github.com/On-Jun9/PixelPipe/internal/policy"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// DefaultOutputDirName is the sub-directory of the input directory used
// when no output directory is configured.
const DefaultOutputDirName = "converted_images"

// ResolveOutputDir returns override when set, otherwise a directory inside
// source named by the naming policy.
func ResolveOutputDir(source, override string, naming types.OutputNaming, now time.Time) string {
	if override != "" {
		return override
	}
	if naming == types.OutputNamingTimestamp {
		return filepath.Join(source, DefaultOutputDirName+"_"+now.Format("20060102-150405"))
	}
	return filepath.Join(source, DefaultOutputDirName)
}

// Target is the planned output for one input file.
type Target struct {
	DestPath string
	Action   types.ConvertAction
}

type Planner struct {
	outputDir string
	format    codec.Format
	conflict  *policy.ConflictResolver
}

func New(outputDir string, format codec.Format, conflictPolicy types.ConflictPolicy) *Planner {
	return &Planner{
		outputDir: outputDir,
		format:    format,
		conflict:  policy.NewConflictResolver(conflictPolicy),
	}
}

// DestName is "<base>.<format extension>".
func (p *Planner) DestName(entry types.FileEntry) string {
	base := strings.TrimSuffix(entry.Name, filepath.Ext(entry.Name))
	return base + "." + p.format.Extension()
}

// PlanAll assigns an output to every entry, in order, keyed by input path.
func (p *Planner) PlanAll(entries []types.FileEntry) map[string]Target {
	targets := make(map[string]Target, len(entries))
	for _, entry := range entries {
		res := p.conflict.Resolve(filepath.Join(p.outputDir, p.DestName(entry)))
		targets[entry.Path] = Target{DestPath: res.DestPath, Action: res.Action}
	}
	return targets
}
