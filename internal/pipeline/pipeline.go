package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/On-Jun9/PixelPipe/internal/codec"
	"github.com/On-Jun9/PixelPipe/internal/config"
	"github.com/On-Jun9/PixelPipe/internal/converter"
	"github.com/On-Jun9/PixelPipe/internal/engine"
	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/internal/log"
	"github.com/On-Jun9/PixelPipe/internal/metadata"
	"github.com/On-Jun9/PixelPipe/internal/planner"
	"github.com/On-Jun9/PixelPipe/internal/scanner"
	"github.com/On-Jun9/PixelPipe/internal/workers"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

type Pipeline struct {
	cfg              *config.Config
	scanner          *scanner.Scanner
	codec            codec.Codec
	stamper          *metadata.Stamper
	sampler          workers.Sampler
	logger           *log.Logger
	userDataManager  *config.UserDataManager
	progressCallback ProgressCallback
	now              func() time.Time

	mu              sync.Mutex
	engine          *engine.Engine
	cancel          context.CancelFunc
	cancelRequested bool
}

// New builds a pipeline for a validated config. It opens the log file and
// the user data directory.
func New(cfg *config.Config) (*Pipeline, error) {
	logger, err := log.New(cfg.LogFile, cfg.LogJSON)
	if err != nil {
		return nil, err
	}

	userDataManager, err := config.NewUserDataManager()
	if err != nil {
		logger.Close()
		return nil, errors.Wrap(err, "failed to create user data manager")
	}

	return newPipeline(cfg, logger, userDataManager), nil
}

func newPipeline(cfg *config.Config, logger *log.Logger, userData *config.UserDataManager) *Pipeline {
	return &Pipeline{
		cfg:             cfg,
		scanner:         scanner.New(cfg.Extensions),
		codec:           codec.New(),
		stamper:         metadata.New(),
		sampler:         workers.NewSystemSampler(),
		logger:          logger,
		userDataManager: userData,
		now:             time.Now,
	}
}

func (p *Pipeline) SetProgressCallback(cb ProgressCallback) {
	p.progressCallback = cb
}

// SetSampler replaces the system load sampler used when Jobs is 0.
func (p *Pipeline) SetSampler(s workers.Sampler) {
	p.sampler = s
}

// Cancel stops dispatching new files. Files already converting finish.
// A Cancel issued before Run applies to the next Run, which then converts
// nothing.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	p.cancelRequested = true
	eng, cancel := p.engine, p.cancel
	p.mu.Unlock()

	if eng != nil {
		eng.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

// State reports the engine state of the current or last run.
func (p *Pipeline) State() engine.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.engine == nil {
		return engine.StateIdle
	}
	return p.engine.State()
}

// Run scans the source directory and converts every recognized image.
// The summary is returned even when the batch failed to run; err is then
// the fatal error (ErrDirectoryNotFound, ErrUnsupportedFormat or
// ErrEngineFault). Per-file failures never produce an error.
func (p *Pipeline) Run(ctx context.Context) (*types.RunSummary, error) {
	startTime := p.now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.mu.Lock()
	p.cancel = cancel
	if p.cancelRequested {
		cancel()
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancel = nil
		p.cancelRequested = false
		p.mu.Unlock()
	}()

	format, err := codec.ParseFormat(p.cfg.Format)
	if err != nil {
		return p.abort(startTime, err), err
	}

	p.logger.Info("Starting scan", zap.String("source", p.cfg.Source))

	entries, err := p.scanner.Scan(p.cfg.Source)
	if err != nil {
		return p.abort(startTime, err), err
	}

	p.logger.Info("Scan complete", zap.Int("files", len(entries)))

	jobs := p.cfg.Jobs
	if jobs < 1 {
		jobs = workers.Recommend(ctx, p.sampler)
	}

	outputDir := planner.ResolveOutputDir(p.cfg.Source, p.cfg.OutputDir, p.cfg.OutputNaming, startTime)
	targets := planner.New(outputDir, format, p.cfg.ConflictPolicy).PlanAll(entries)

	conv := converter.New(converter.Config{
		Codec:   p.codec,
		Format:  format,
		Quality: p.cfg.Quality,
		Targets: targets,
		Stamper: p.stamper,
		Verify:  p.cfg.Verify,
	})

	eng := engine.New()
	p.mu.Lock()
	p.engine = eng
	p.mu.Unlock()

	res, runErr := eng.Run(ctx, engine.Batch{
		Tasks:       entries,
		Convert:     conv.Convert,
		Concurrency: jobs,
		OutputDir:   outputDir,
		Sink:        engine.Tee(p.logger.Event, p.consoleProgress, engine.Sink(p.progressCallback)),
	})

	summary := summarize(res)
	summary.ScannedFiles = len(entries)
	summary.OutputDir = outputDir

	p.finish(summary)
	return summary, runErr
}

// consoleProgress prints a progress line when no other consumer renders progress.
func (p *Pipeline) consoleProgress(ev types.ProgressEvent) {
	if p.progressCallback != nil || ev.Type != types.EventItemCompleted || ev.Outcome == nil {
		return
	}
	p.logger.Progress(ev.Completed, ev.Total, ev.Outcome.Task.Name)
}

// abort reports a failure that happened before the engine started.
func (p *Pipeline) abort(startTime time.Time, err error) *types.RunSummary {
	p.logger.Error("Run aborted", err)

	for _, ev := range []types.ProgressEvent{
		{Type: types.EventStarted},
		{Type: types.EventFatalError, Error: err.Error()},
		{Type: types.EventFinished},
	} {
		if p.progressCallback != nil {
			p.progressCallback(ev)
		}
	}

	end := p.now()
	summary := &types.RunSummary{
		FatalError: err.Error(),
		StartTime:  startTime,
		EndTime:    end,
		Duration:   end.Sub(startTime),
	}
	p.finish(summary)
	return summary
}

// finish prints the summary and appends the run to history. History
// failures are logged and otherwise ignored.
func (p *Pipeline) finish(summary *types.RunSummary) {
	p.logger.Summary(*summary)

	if p.userDataManager == nil {
		return
	}

	entry := types.RunHistoryEntry{
		ID:        uuid.New().String(),
		Summary:   *summary,
		Config:    p.cfg.RunConfig(),
		Status:    types.StatusOf(*summary),
		CreatedAt: summary.StartTime,
	}
	if err := p.userDataManager.AddHistoryEntry(entry); err != nil {
		p.logger.Error("Failed to save run history", err)
	}
}

func summarize(res engine.Result) *types.RunSummary {
	summary := &types.RunSummary{
		TotalFiles: res.Total,
		Completed:  res.Completed,
		Succeeded:  res.Succeeded,
		Failed:     res.Failed,
		Cancelled:  res.State == engine.StateCancelled,
		Workers:    res.Workers,
		Failures:   res.Failures(),
		StartTime:  res.StartTime,
		EndTime:    res.EndTime,
		Duration:   res.Duration(),
	}
	if res.Err != nil {
		summary.FatalError = res.Err.Error()
	}

	for _, o := range res.Outcomes {
		switch o.Action {
		case types.ConvertActionSkipped:
			summary.Skipped++
		case types.ConvertActionRenamed:
			summary.Renamed++
		case types.ConvertActionOverwritten:
			summary.Overwritten++
		}
	}
	return summary
}

func (p *Pipeline) Close() error {
	return p.logger.Close()
}
