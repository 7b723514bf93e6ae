package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/On-Jun9/PixelPipe/internal/codec"
	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/internal/scanner"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// DataDirName is the per-user directory under $HOME holding logs, settings
// and run history.
const DataDirName = ".pixelpipe"

type Config struct {
	Source         string               `yaml:"source" json:"source"`
	OutputDir      string               `yaml:"output_dir" json:"output_dir"`
	Format         string               `yaml:"format" json:"format"`
	Quality        int                  `yaml:"quality" json:"quality"`
	Jobs           int                  `yaml:"jobs" json:"jobs"`
	ConflictPolicy types.ConflictPolicy `yaml:"conflict_policy" json:"conflict_policy"`
	OutputNaming   types.OutputNaming   `yaml:"output_naming" json:"output_naming"`
	Extensions     []string             `yaml:"extensions" json:"extensions"`
	LogFile        string               `yaml:"log_file" json:"log_file"`
	LogJSON        bool                 `yaml:"log_json" json:"log_json"`
	Verify         bool                 `yaml:"verify" json:"verify"`
}

// DataDir returns ~/.pixelpipe, or a relative .pixelpipe when $HOME is unknown.
func DataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return DataDirName
	}
	return filepath.Join(homeDir, DataDirName)
}

func DefaultConfig() *Config {
	return &Config{
		Format:         string(codec.PNG),
		Quality:        codec.DefaultQuality,
		Jobs:           0,
		ConflictPolicy: types.ConflictPolicyOverwrite,
		OutputNaming:   types.OutputNamingFixed,
		Extensions:     append([]string(nil), scanner.DefaultExtensions...),
		LogFile:        filepath.Join(DataDir(), "pixelpipe.log"),
	}
}

func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}

	return cfg, nil
}

// Validate rejects unusable settings and fills defaults for empty ones.
// Jobs of 0 is kept: the pipeline sizes the pool from system load.
func (c *Config) Validate() error {
	if c.Source == "" {
		return &ValidationError{Field: "source", Message: "source path is required"}
	}

	if c.Format == "" {
		c.Format = string(codec.PNG)
	}
	f, err := codec.ParseFormat(c.Format)
	if err != nil {
		return errors.Mark(&ValidationError{Field: "format", Message: err.Error()}, errors.ErrUnsupportedFormat)
	}
	c.Format = string(f)

	if c.Quality == 0 {
		c.Quality = codec.DefaultQuality
	}
	if c.Quality < codec.MinQuality || c.Quality > codec.MaxQuality {
		return &ValidationError{Field: "quality", Message: "quality must be between 1 and 100"}
	}

	if c.Jobs < 0 {
		c.Jobs = 0
	}

	switch c.ConflictPolicy {
	case "":
		c.ConflictPolicy = types.ConflictPolicyOverwrite
	case types.ConflictPolicyOverwrite, types.ConflictPolicySkip, types.ConflictPolicyRename:
	default:
		return &ValidationError{Field: "conflict_policy", Message: "must be one of overwrite, skip, rename"}
	}

	switch c.OutputNaming {
	case "":
		c.OutputNaming = types.OutputNamingFixed
	case types.OutputNamingFixed, types.OutputNamingTimestamp:
	default:
		return &ValidationError{Field: "output_naming", Message: "must be fixed or timestamp"}
	}

	if len(c.Extensions) == 0 {
		c.Extensions = append([]string(nil), scanner.DefaultExtensions...)
	}
	if c.LogFile == "" {
		c.LogFile = filepath.Join(DataDir(), "pixelpipe.log")
	}

	return nil
}

// RunConfig is the part of the config recorded in run history.
func (c *Config) RunConfig() types.RunConfig {
	return types.RunConfig{
		Source:         c.Source,
		OutputDir:      c.OutputDir,
		Format:         c.Format,
		Quality:        c.Quality,
		Jobs:           c.Jobs,
		ConflictPolicy: c.ConflictPolicy,
		OutputNaming:   c.OutputNaming,
		Verify:         c.Verify,
	}
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
