// Package types defines core data structures used across PixelPipe modules.
package types

import (
	"time"
)

// FileEntry represents a scanned input image. It is the unit of work
// (a conversion task) handed to the engine and is never mutated after
// the scanner creates it.
type FileEntry struct {
	// Path is the absolute path to the source file.
	Path string `json:"path"`
	// Name is the base filename.
	Name string `json:"name"`
	// Size is the file size in bytes.
	Size int64 `json:"size"`
	// ModTime is the file modification time.
	ModTime time.Time `json:"mod_time"`
	// Extension is the lowercase file extension without dot (e.g., "heic", "png").
	Extension string `json:"extension"`
}

// Outcome is the result of converting one FileEntry.
type Outcome struct {
	Task FileEntry `json:"task"`
	// OutputPath is set on success, or on skip when the planner kept an existing file.
	OutputPath string `json:"output_path,omitempty"`
	// Action records what happened to the file.
	Action ConvertAction `json:"action"`
	// Err is nil on success. It is not serialized; Reason carries the text.
	Err    error  `json:"-"`
	Reason string `json:"reason,omitempty"`
}

// Success reports whether the conversion produced its output.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Succeeded builds a success outcome.
func Succeeded(task FileEntry, outputPath string, action ConvertAction) Outcome {
	return Outcome{Task: task, OutputPath: outputPath, Action: action}
}

// Failed builds a failure outcome; err must not be nil.
func Failed(task FileEntry, err error) Outcome {
	return Outcome{Task: task, Action: ConvertActionFailed, Err: err, Reason: err.Error()}
}

// ConvertAction represents the action taken for a file.
type ConvertAction string

const (
	ConvertActionConverted   ConvertAction = "converted"
	ConvertActionOverwritten ConvertAction = "overwritten"
	ConvertActionRenamed     ConvertAction = "renamed"
	ConvertActionSkipped     ConvertAction = "skipped"
	ConvertActionFailed      ConvertAction = "failed"
)

// ConflictPolicy defines how to handle output filename collisions.
type ConflictPolicy string

const (
	ConflictPolicyOverwrite ConflictPolicy = "overwrite"
	ConflictPolicySkip      ConflictPolicy = "skip"
	ConflictPolicyRename    ConflictPolicy = "rename"
)

// OutputNaming selects how the output directory is named when none is given.
type OutputNaming string

const (
	// OutputNamingFixed: <input>/converted_images, reused across runs
	OutputNamingFixed OutputNaming = "fixed"
	// OutputNamingTimestamp: <input>/converted_images_YYYYMMDD-HHMMSS per run
	OutputNamingTimestamp OutputNaming = "timestamp"
)

// EventType identifies a ProgressEvent variant.
type EventType string

const (
	EventStarted       EventType = "started"
	EventItemCompleted EventType = "item_completed"
	EventFinished      EventType = "finished"
	EventFatalError    EventType = "fatal_error"
)

// ProgressEvent is an immutable snapshot emitted by the engine.
type ProgressEvent struct {
	Type      EventType `json:"type"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Cancelled bool      `json:"cancelled,omitempty"`
	// Outcome is set only on item_completed.
	Outcome *Outcome `json:"outcome,omitempty"`
	// Error is set only on fatal_error.
	Error string `json:"error,omitempty"`
}

// FileFailure pairs a failed input with the reason.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunSummary contains statistics for a finished batch.
type RunSummary struct {
	ScannedFiles int           `json:"scanned_files"`
	TotalFiles   int           `json:"total_files"`
	Completed    int           `json:"completed"`
	Succeeded    int           `json:"succeeded"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Renamed      int           `json:"renamed"`
	Overwritten  int           `json:"overwritten"`
	Cancelled    bool          `json:"cancelled"`
	FatalError   string        `json:"fatal_error,omitempty"`
	Workers      int           `json:"workers"`
	OutputDir    string        `json:"output_dir"`
	Failures     []FileFailure `json:"failures,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      time.Time     `json:"end_time"`
	Duration     time.Duration `json:"duration"`
}

// RunStatus classifies a finished run for history.
type RunStatus string

const (
	RunStatusSuccess   RunStatus = "success"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// StatusOf derives the history status from a summary.
func StatusOf(s RunSummary) RunStatus {
	switch {
	case s.FatalError != "":
		return RunStatusFailed
	case s.Cancelled:
		return RunStatusCancelled
	case s.Failed > 0:
		return RunStatusPartial
	default:
		return RunStatusSuccess
	}
}

// RunConfig contains the configuration used for a run.
type RunConfig struct {
	Source         string         `json:"source"`
	OutputDir      string         `json:"output_dir,omitempty"`
	Format         string         `json:"format"`
	Quality        int            `json:"quality,omitempty"`
	Jobs           int            `json:"jobs"`
	ConflictPolicy ConflictPolicy `json:"conflict_policy"`
	OutputNaming   OutputNaming   `json:"output_naming"`
	Verify         bool           `json:"verify"`
}

// RunHistoryEntry represents a single conversion run record.
type RunHistoryEntry struct {
	ID        string     `json:"id"`
	Summary   RunSummary `json:"summary"`
	Config    RunConfig  `json:"config"`
	Status    RunStatus  `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// RunHistory stores the collection of run history entries.
type RunHistory struct {
	Entries   []RunHistoryEntry `json:"entries"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// UserSettings represents the last settings used from the web UI.
type UserSettings struct {
	Source         string         `json:"source"`
	OutputDir      string         `json:"output_dir,omitempty"`
	Format         string         `json:"format"`
	Quality        int            `json:"quality"`
	Jobs           int            `json:"jobs"`
	ConflictPolicy ConflictPolicy `json:"conflict_policy"`
	OutputNaming   OutputNaming   `json:"output_naming"`
	Verify         bool           `json:"verify"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
