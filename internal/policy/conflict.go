package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// ConflictResolver decides what to do when an output path is already taken,
// either by a file on disk or by an earlier input of the same batch. It is
// not safe for concurrent use; resolve all paths before dispatching work.
type ConflictResolver struct {
	policy  types.ConflictPolicy
	claimed map[string]bool
}

func NewConflictResolver(policy types.ConflictPolicy) *ConflictResolver {
	return &ConflictResolver{
		policy:  policy,
		claimed: make(map[string]bool),
	}
}

type Resolution struct {
	Action   types.ConvertAction
	DestPath string
	Skip     bool
}

// Resolve returns the final output path for destPath and claims it.
// Two inputs of one batch never share an output: the later one is renamed
// whatever the policy, so no converted file is lost to a race. Files that
// already exist on disk are handled by the configured policy.
func (c *ConflictResolver) Resolve(destPath string) Resolution {
	res := c.resolve(destPath)
	if !res.Skip {
		c.claimed[res.DestPath] = true
	}
	return res
}

func (c *ConflictResolver) resolve(destPath string) Resolution {
	if c.claimed[destPath] {
		return Resolution{Action: types.ConvertActionRenamed, DestPath: c.generateUniqueName(destPath)}
	}

	if _, err := os.Stat(destPath); os.IsNotExist(err) {
		return Resolution{Action: types.ConvertActionConverted, DestPath: destPath}
	}

	switch c.policy {
	case types.ConflictPolicySkip:
		return Resolution{Action: types.ConvertActionSkipped, DestPath: destPath, Skip: true}

	case types.ConflictPolicyRename:
		return Resolution{Action: types.ConvertActionRenamed, DestPath: c.generateUniqueName(destPath)}

	default:
		return Resolution{Action: types.ConvertActionOverwritten, DestPath: destPath}
	}
}

func (c *ConflictResolver) taken(path string) bool {
	if c.claimed[path] {
		return true
	}
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func (c *ConflictResolver) generateUniqueName(path string) string {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(filepath.Base(path), ext)

	for i := 1; i < 10000; i++ {
		newPath := filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
		if !c.taken(newPath) {
			return newPath
		}
	}

	return path
}
