package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

// Logger writes structured records to a log file and human-readable
// progress and summaries to the console.
type Logger struct {
	console io.Writer
	zl      *zap.Logger
	file    *os.File
}

// New opens logFilePath for appending. Records are JSON lines when logJSON
// is set, console-encoded text otherwise.
func New(logFilePath string, logJSON bool) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create log directory")
	}

	file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file %s", logFilePath)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if logJSON {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(file), zap.InfoLevel)
	return &Logger{console: os.Stdout, zl: zap.New(core), file: file}, nil
}

// NewWithCore builds a Logger on an existing core, e.g. an observer in tests.
func NewWithCore(core zapcore.Core, console io.Writer) *Logger {
	if console == nil {
		console = io.Discard
	}
	return &Logger{console: console, zl: zap.New(core)}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{console: io.Discard, zl: zap.NewNop()}
}

func (l *Logger) Close() error {
	if l.zl != nil {
		_ = l.zl.Sync()
	}
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Zap exposes the underlying logger for components that log structured fields.
func (l *Logger) Zap() *zap.Logger {
	if l.zl == nil {
		return zap.NewNop()
	}
	return l.zl
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.Zap().Info(msg, fields...)
}

func (l *Logger) Error(msg string, err error, fields ...zap.Field) {
	l.Zap().Error(msg, append(fields, zap.Error(err))...)
}

// LogOutcome records one finished conversion.
func (l *Logger) LogOutcome(o types.Outcome) {
	fields := []zap.Field{
		zap.String("source", o.Task.Path),
		zap.String("action", string(o.Action)),
	}
	if o.OutputPath != "" {
		fields = append(fields, zap.String("dest", o.OutputPath))
	}

	if !o.Success() {
		l.Zap().Error(fmt.Sprintf("failed: %s", o.Task.Name), append(fields, zap.String("error", o.Reason))...)
		return
	}
	l.Zap().Info(fmt.Sprintf("%s: %s -> %s", o.Action, o.Task.Name, o.OutputPath), fields...)
}

// Event logs a progress event. Its signature matches engine.Sink.
func (l *Logger) Event(ev types.ProgressEvent) {
	switch ev.Type {
	case types.EventStarted:
		l.Info("batch started", zap.Int("total", ev.Total))
	case types.EventItemCompleted:
		if ev.Outcome != nil {
			l.LogOutcome(*ev.Outcome)
		}
	case types.EventFatalError:
		l.Zap().Error("batch aborted", zap.String("error", ev.Error))
	case types.EventFinished:
		l.Info("batch finished",
			zap.Int("total", ev.Total),
			zap.Int("succeeded", ev.Succeeded),
			zap.Int("failed", ev.Failed),
			zap.Bool("cancelled", ev.Cancelled),
		)
	}
}

func (l *Logger) Summary(summary types.RunSummary) {
	fmt.Fprintln(l.console, "\n=== PixelPipe Summary ===")
	fmt.Fprintf(l.console, "Total files:    %d\n", summary.TotalFiles)
	fmt.Fprintf(l.console, "Succeeded:      %d\n", summary.Succeeded)
	fmt.Fprintf(l.console, "Failed:         %d\n", summary.Failed)
	if summary.Skipped > 0 {
		fmt.Fprintf(l.console, "Skipped:        %d\n", summary.Skipped)
	}
	if summary.Renamed > 0 {
		fmt.Fprintf(l.console, "Renamed:        %d\n", summary.Renamed)
	}
	if summary.Overwritten > 0 {
		fmt.Fprintf(l.console, "Overwritten:    %d\n", summary.Overwritten)
	}
	fmt.Fprintf(l.console, "Workers:        %d\n", summary.Workers)
	fmt.Fprintf(l.console, "Duration:       %s\n", summary.Duration.Round(time.Millisecond))
	if summary.OutputDir != "" {
		fmt.Fprintf(l.console, "Output:         %s\n", summary.OutputDir)
	}
	if summary.Cancelled {
		fmt.Fprintln(l.console, "Status:         cancelled")
	}
	if summary.FatalError != "" {
		fmt.Fprintf(l.console, "Fatal error:    %s\n", summary.FatalError)
	}
	for _, f := range summary.Failures {
		fmt.Fprintf(l.console, "  x %s: %s\n", f.Path, f.Reason)
	}
	fmt.Fprintln(l.console, "=========================")
}

func (l *Logger) Progress(current, total int, filename string) {
	fmt.Fprintf(l.console, "\r[%d/%d] %s", current, total, filename)
}
