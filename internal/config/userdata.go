package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/On-Jun9/PixelPipe/internal/codec"
	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// MaxHistoryEntries bounds run-history.json.
const MaxHistoryEntries = 100

// UserDataManager manages user data (settings, run history).
type UserDataManager struct {
	dataDir string
}

// validatePath rejects paths carrying HTML or script patterns, since the
// web UI renders them back.
func validatePath(path string) error {
	if path == "" {
		return nil
	}

	lowerPath := strings.ToLower(path)

	for _, pattern := range []string{"<script", "</script", "<iframe", "<object", "<embed", "<img"} {
		if strings.Contains(lowerPath, pattern) {
			return errors.Newf("path contains HTML tag pattern: %s", pattern)
		}
	}

	for _, pattern := range []string{"javascript:", "onerror=", "onload=", "onclick=", "onmouseover="} {
		if strings.Contains(lowerPath, pattern) {
			return errors.Newf("path contains potentially malicious pattern: %s", pattern)
		}
	}

	if len(path) > 4096 {
		return errors.New("path too long (max 4096 characters)")
	}

	return nil
}

// NewUserDataManager creates a manager rooted at ~/.pixelpipe.
func NewUserDataManager() (*UserDataManager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get home directory")
	}
	return NewUserDataManagerAt(filepath.Join(homeDir, DataDirName))
}

// NewUserDataManagerAt creates a manager rooted at dataDir.
func NewUserDataManagerAt(dataDir string) (*UserDataManager, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}
	return &UserDataManager{dataDir: dataDir}, nil
}

// DataDir returns the directory the manager writes to.
func (m *UserDataManager) DataDir() string {
	return m.dataDir
}

// writeJSON writes v to name inside the data directory via a temp file and rename.
func (m *UserDataManager) writeJSON(name string, v any) error {
	filename := filepath.Join(m.dataDir, name)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", name)
	}

	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write %s", name)
	}
	if err := os.Rename(tmpFile, filename); err != nil {
		os.Remove(tmpFile)
		return errors.Wrapf(err, "failed to rename %s", name)
	}
	return nil
}

// readJSON reports found=false when the file does not exist.
func (m *UserDataManager) readJSON(name string, v any) (found bool, err error) {
	data, err := os.ReadFile(filepath.Join(m.dataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrapf(err, "failed to read %s", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, errors.Wrapf(err, "failed to unmarshal %s", name)
	}
	return true, nil
}

// SaveSettings saves user settings to disk.
func (m *UserDataManager) SaveSettings(settings *types.UserSettings) error {
	if err := validatePath(settings.Source); err != nil {
		return &ValidationError{Field: "source", Message: "invalid source path: " + err.Error()}
	}
	if err := validatePath(settings.OutputDir); err != nil {
		return &ValidationError{Field: "output_dir", Message: "invalid output path: " + err.Error()}
	}

	settings.UpdatedAt = time.Now()
	return m.writeJSON("settings.json", settings)
}

// LoadSettings returns default settings if the file doesn't exist.
func (m *UserDataManager) LoadSettings() (*types.UserSettings, error) {
	var settings types.UserSettings
	found, err := m.readJSON("settings.json", &settings)
	if err != nil {
		return nil, err
	}
	if !found {
		return &types.UserSettings{
			Format:         string(codec.PNG),
			Quality:        codec.DefaultQuality,
			ConflictPolicy: types.ConflictPolicyOverwrite,
			OutputNaming:   types.OutputNamingFixed,
			UpdatedAt:      time.Now(),
		}, nil
	}
	return &settings, nil
}

// SaveRunHistory saves run history to disk.
func (m *UserDataManager) SaveRunHistory(history *types.RunHistory) error {
	history.UpdatedAt = time.Now()
	return m.writeJSON("run-history.json", history)
}

// LoadRunHistory returns empty history if the file doesn't exist.
func (m *UserDataManager) LoadRunHistory() (*types.RunHistory, error) {
	var history types.RunHistory
	found, err := m.readJSON("run-history.json", &history)
	if err != nil {
		return nil, err
	}
	if !found || history.Entries == nil {
		history.Entries = []types.RunHistoryEntry{}
	}
	if !found {
		history.UpdatedAt = time.Now()
	}
	return &history, nil
}

// AddHistoryEntry prepends entry and keeps the newest MaxHistoryEntries.
func (m *UserDataManager) AddHistoryEntry(entry types.RunHistoryEntry) error {
	history, err := m.LoadRunHistory()
	if err != nil {
		return errors.Wrap(err, "failed to load run history")
	}

	history.Entries = append([]types.RunHistoryEntry{entry}, history.Entries...)
	if len(history.Entries) > MaxHistoryEntries {
		history.Entries = history.Entries[:MaxHistoryEntries]
	}

	if err := m.SaveRunHistory(history); err != nil {
		return errors.Wrap(err, "failed to save run history")
	}
	return nil
}
