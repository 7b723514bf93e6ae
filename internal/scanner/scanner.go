package scanner

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// DefaultExtensions is the recognized input set.
var DefaultExtensions = []string{
	"heic", "heif", "png", "jpg", "jpeg", "bmp", "gif", "tiff", "tif",
}

type Scanner struct {
	includeExt map[string]bool
}

func New(extensions []string) *Scanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	extMap := make(map[string]bool)
	for _, ext := range extensions {
		extMap[strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}
	return &Scanner{includeExt: extMap}
}

// Scan lists the regular files directly inside dir whose extension is in
// the include set, sorted by name. Sub-directories are not descended into.
func (s *Scanner) Scan(dir string) ([]types.FileEntry, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "resolve %q", dir), errors.ErrDirectoryNotFound)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "stat %q", root), errors.ErrDirectoryNotFound)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(errors.ErrDirectoryNotFound, "%q is not a directory", root)
	}

	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read %q", root), errors.ErrDirectoryNotFound)
	}

	entries := []types.FileEntry{}
	for _, d := range dirEntries {
		if !d.Type().IsRegular() {
			continue
		}

		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(d.Name())), ".")
		if !s.includeExt[ext] {
			continue
		}

		info, err := d.Info()
		if err != nil {
			continue
		}

		entries = append(entries, types.FileEntry{
			Path:      filepath.Join(root, d.Name()),
			Name:      d.Name(),
			Size:      info.Size(),
			ModTime:   info.ModTime(),
			Extension: ext,
		})
	}

	// os.ReadDir already sorts; keep the guarantee explicit.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	return entries, nil
}
