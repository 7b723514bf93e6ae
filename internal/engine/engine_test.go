package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/On-Jun9/PixelPipe/internal/errors"
	"github.com/On-Jun9/PixelPipe/pkg/types"
)

type recorder struct {
	events []types.ProgressEvent
}

func (r *recorder) sink(ev types.ProgressEvent) {
	r.events = append(r.events, ev)
}

func (r *recorder) count(t types.EventType) int {
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last() types.ProgressEvent {
	return r.events[len(r.events)-1]
}

func makeTasks(names ...string) []types.FileEntry {
	tasks := make([]types.FileEntry, 0, len(names))
	for _, n := range names {
		tasks = append(tasks, types.FileEntry{Path: "/in/" + n, Name: n})
	}
	return tasks
}

func numberedTasks(n int) []types.FileEntry {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("img%03d.png", i)
	}
	return makeTasks(names...)
}

func succeed(_ context.Context, task types.FileEntry) types.Outcome {
	return types.Succeeded(task, "/out/"+task.Name, types.ConvertActionConverted)
}

// assertEventInvariants는 이벤트 시퀀스의 공통 불변식을 확인합니다.
func assertEventInvariants(t *testing.T, events []types.ProgressEvent) {
	t.Helper()
	require.NotEmpty(t, events)
	assert.Equal(t, types.EventStarted, events[0].Type)
	assert.Equal(t, types.EventFinished, events[len(events)-1].Type)

	prev := 0
	for _, ev := range events[1 : len(events)-1] {
		if ev.Type != types.EventItemCompleted {
			continue
		}
		assert.GreaterOrEqual(t, ev.Completed, prev)
		assert.LessOrEqual(t, ev.Completed, ev.Total)
		assert.Equal(t, ev.Completed, ev.Succeeded+ev.Failed)
		require.NotNil(t, ev.Outcome)
		prev = ev.Completed
	}
}

// TestEngineRun_EmitsOneStartedNItemsOneFinished는 N개 작업의 이벤트 개수를 검증합니다.
func TestEngineRun_EmitsOneStartedNItemsOneFinished(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{1, 1}, {5, 1}, {5, 2}, {20, 4}, {8, 8}} {
		t.Run(fmt.Sprintf("n=%d,k=%d", tc.n, tc.k), func(t *testing.T) {
			rec := &recorder{}
			res, err := New().Run(context.Background(), Batch{
				Tasks:       numberedTasks(tc.n),
				Convert:     succeed,
				Concurrency: tc.k,
				Sink:        rec.sink,
			})
			require.NoError(t, err)

			assert.Equal(t, 1, rec.count(types.EventStarted))
			assert.Equal(t, tc.n, rec.count(types.EventItemCompleted))
			assert.Equal(t, 1, rec.count(types.EventFinished))
			assertEventInvariants(t, rec.events)

			fin := rec.last()
			assert.Equal(t, tc.n, fin.Succeeded+fin.Failed)
			assert.False(t, fin.Cancelled)
			assert.Equal(t, StateCompleted, res.State)
			assert.Equal(t, tc.n, res.Completed)
			assert.Len(t, res.Outcomes, tc.n)
		})
	}
}

// TestEngineRun_RespectsConcurrencyLimit는 동시 실행 수가 한도를 넘지 않는지 검증합니다.
func TestEngineRun_RespectsConcurrencyLimit(t *testing.T) {
	for _, limit := range []int{-3, 0, 1, 3} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			var running, peak atomic.Int32
			convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return succeed(ctx, task)
			}

			res, err := New().Run(context.Background(), Batch{
				Tasks:       numberedTasks(12),
				Convert:     convert,
				Concurrency: limit,
			})
			require.NoError(t, err)

			want := limit
			if want < 1 {
				want = 1
			}
			assert.LessOrEqual(t, int(peak.Load()), want)
			assert.Equal(t, want, res.Workers)
			assert.Equal(t, 12, res.Succeeded)
		})
	}
}

// TestEngineRun_FailureIsolation는 한 파일 실패가 배치를 중단하지 않는지 검증합니다.
func TestEngineRun_FailureIsolation(t *testing.T) {
	convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
		if task.Name == "c.jpg" {
			return types.Failed(task, errors.Mark(errors.New("invalid JPEG format"), errors.ErrConversion))
		}
		return succeed(ctx, task)
	}

	rec := &recorder{}
	res, err := New().Run(context.Background(), Batch{
		Tasks:       makeTasks("a.heic", "b.png", "c.jpg", "e.bmp"),
		Convert:     convert,
		Concurrency: 2,
		Sink:        rec.sink,
	})
	require.NoError(t, err)

	fin := rec.last()
	assert.Equal(t, 3, fin.Succeeded)
	assert.Equal(t, 1, fin.Failed)
	assert.False(t, fin.Cancelled)
	assert.Equal(t, StateCompleted, res.State)

	failures := res.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "/in/c.jpg", failures[0].Path)
	assert.Contains(t, failures[0].Reason, "invalid JPEG")
}

// TestEngineRun_ConverterPanicBecomesFailure는 변환기 panic이 실패 결과로 바뀌는지 검증합니다.
func TestEngineRun_ConverterPanicBecomesFailure(t *testing.T) {
	convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
		if task.Name == "b.png" {
			panic("codec exploded")
		}
		return succeed(ctx, task)
	}

	res, err := New().Run(context.Background(), Batch{
		Tasks:       makeTasks("a.png", "b.png", "c.png"),
		Convert:     convert,
		Concurrency: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)

	failures := res.Failures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Reason, "codec exploded")
}

// TestEngineCancel_StopsIssuingNewTasks는 취소 후 새 작업이 배정되지 않는지 검증합니다.
func TestEngineCancel_StopsIssuingNewTasks(t *testing.T) {
	const n, k = 100, 2

	var flagged atomic.Bool
	var startedUnflagged, startedFlagged atomic.Int32
	convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
		if flagged.Load() {
			startedFlagged.Add(1)
		} else {
			startedUnflagged.Add(1)
		}
		select {
		case <-ctx.Done():
		case <-time.After(10 * time.Millisecond):
		}
		return succeed(ctx, task)
	}

	rec := &recorder{}
	e := New()
	require.NoError(t, e.Start(context.Background(), Batch{
		Tasks:       numberedTasks(n),
		Convert:     convert,
		Concurrency: k,
		Sink:        rec.sink,
	}))
	flagged.Store(true)
	e.Cancel()
	res := e.Wait()

	assert.Equal(t, StateCancelled, res.State)
	assert.LessOrEqual(t, res.Completed, n)
	// A worker may have passed its check just before the flag was raised.
	assert.LessOrEqual(t, int(startedFlagged.Load()), k)
	assert.Equal(t, res.Completed, int(startedUnflagged.Load()+startedFlagged.Load()))

	fin := rec.last()
	assert.Equal(t, types.EventFinished, fin.Type)
	assert.True(t, fin.Cancelled)
	assert.Equal(t, res.Completed, fin.Succeeded+fin.Failed)
	assert.Equal(t, 1, rec.count(types.EventFinished))
	assertEventInvariants(t, rec.events)
}

// TestEngineCancel_KeepsCompletedOutcomes는 취소 전 완료된 결과가 집계에 남는지 검증합니다.
func TestEngineCancel_KeepsCompletedOutcomes(t *testing.T) {
	release := make(chan struct{})
	var done atomic.Int32
	convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
		if task.Name == "img000.png" {
			done.Add(1)
			return succeed(ctx, task)
		}
		<-release
		return succeed(ctx, task)
	}

	e := New()
	require.NoError(t, e.Start(context.Background(), Batch{
		Tasks:       numberedTasks(10),
		Convert:     convert,
		Concurrency: 1,
	}))

	require.Eventually(t, func() bool { return done.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	e.Cancel()
	close(release)
	res := e.Wait()

	assert.Equal(t, StateCancelled, res.State)
	// img000 finished before cancel; img001 was in flight and still counts.
	assert.GreaterOrEqual(t, res.Succeeded, 1)
	assert.LessOrEqual(t, res.Completed, 2)
}

// TestEngineRun_ParentDeadlineCancels는 외부에서 건 타임아웃이 취소로 처리되는지 검증합니다.
func TestEngineRun_ParentDeadlineCancels(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
		time.Sleep(10 * time.Millisecond)
		return succeed(ctx, task)
	}

	res, err := New().Run(ctx, Batch{
		Tasks:       numberedTasks(200),
		Convert:     convert,
		Concurrency: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, res.State)
	assert.Less(t, res.Completed, 200)
}

// TestEngineStart_RejectsWhileRunning는 실행 중 재시작 요청이 거부되는지 검증합니다.
func TestEngineStart_RejectsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
		<-release
		return succeed(ctx, task)
	}

	e := New()
	batch := Batch{Tasks: numberedTasks(2), Convert: convert, Concurrency: 1}
	require.NoError(t, e.Start(context.Background(), batch))

	err := e.Start(context.Background(), batch)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAlreadyRunning))
	assert.Equal(t, StateRunning, e.State())

	close(release)
	res := e.Wait()
	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 2, res.Succeeded)
}

// TestEngine_TerminalStateIsFinal는 종료 이후 Cancel은 무시되고 Start는 거부되는지 검증합니다.
func TestEngine_TerminalStateIsFinal(t *testing.T) {
	e := New()
	res, err := e.Run(context.Background(), Batch{Tasks: numberedTasks(3), Convert: succeed, Concurrency: 2})
	require.NoError(t, err)
	require.Equal(t, StateCompleted, res.State)
	assert.True(t, e.State().Terminal())
	assert.False(t, StateRunning.Terminal())
	assert.False(t, StateIdle.Terminal())

	e.Cancel()
	assert.Equal(t, StateCompleted, e.State())
	assert.Equal(t, StateCompleted, e.Wait().State)

	_, err = e.Run(context.Background(), Batch{Tasks: numberedTasks(1), Convert: succeed})
	assert.True(t, errors.Is(err, errors.ErrAlreadyRunning))
}

// TestEngineCancel_NoopWhenIdle는 시작 전 Cancel이 상태를 바꾸지 않는지 검증합니다.
func TestEngineCancel_NoopWhenIdle(t *testing.T) {
	e := New()
	e.Cancel()
	assert.Equal(t, StateIdle, e.State())
	assert.Nil(t, e.Done())

	res, err := e.Run(context.Background(), Batch{Tasks: numberedTasks(2), Convert: succeed})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
}

// TestEngineStart_RequiresConverter는 변환 함수 없이 시작할 수 없는지 검증합니다.
func TestEngineStart_RequiresConverter(t *testing.T) {
	e := New()
	err := e.Start(context.Background(), Batch{Tasks: numberedTasks(1)})
	require.Error(t, err)
	assert.Equal(t, StateIdle, e.State())
}

// TestEngineRun_FatalWhenOutputDirCannotBeCreated는 출력 폴더 생성 실패 시 FatalError 경로를 검증합니다.
func TestEngineRun_FatalWhenOutputDirCannotBeCreated(t *testing.T) {
	tmpDir := t.TempDir()
	blocker := filepath.Join(tmpDir, "converted_images")
	require.NoError(t, os.WriteFile(blocker, []byte("not a dir"), 0644))

	var calls atomic.Int32
	convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
		calls.Add(1)
		return succeed(ctx, task)
	}

	rec := &recorder{}
	res, err := New().Run(context.Background(), Batch{
		Tasks:       numberedTasks(4),
		Convert:     convert,
		Concurrency: 2,
		OutputDir:   blocker,
		Sink:        rec.sink,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrEngineFault))
	assert.Equal(t, StateFailed, res.State)

	assert.Equal(t, 1, rec.count(types.EventFatalError))
	assert.Equal(t, 0, rec.count(types.EventItemCompleted))
	assert.Equal(t, 1, rec.count(types.EventFinished))
	assert.Zero(t, calls.Load())
}

// TestEngineRun_CreatesOutputDirIdempotently는 출력 폴더가 이미 있어도 오류가 아닌지 검증합니다.
func TestEngineRun_CreatesOutputDirIdempotently(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out", "nested")

	for i := 0; i < 2; i++ {
		res, err := New().Run(context.Background(), Batch{
			Tasks:     numberedTasks(1),
			Convert:   succeed,
			OutputDir: outDir,
		})
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, res.State)
	}
	assert.DirExists(t, outDir)
}

// TestEngineRun_EmptyBatch는 빈 작업 목록도 Started/Finished만 내고 끝나는지 검증합니다.
func TestEngineRun_EmptyBatch(t *testing.T) {
	rec := &recorder{}
	res, err := New().Run(context.Background(), Batch{Convert: succeed, Concurrency: 4, Sink: rec.sink})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	require.Len(t, rec.events, 2)
	assert.Equal(t, types.EventStarted, rec.events[0].Type)
	assert.Equal(t, types.EventFinished, rec.events[1].Type)
	assert.Zero(t, rec.events[1].Completed)
}

// TestEngineRun_NoHeadOfLineBlocking는 느린 작업이 뒤의 작업을 막지 않는지 검증합니다.
func TestEngineRun_NoHeadOfLineBlocking(t *testing.T) {
	const n = 9
	var others atomic.Int32
	allOthersDone := make(chan struct{})
	var once sync.Once

	convert := func(ctx context.Context, task types.FileEntry) types.Outcome {
		if task.Name == "img000.png" {
			select {
			case <-allOthersDone:
			case <-time.After(3 * time.Second):
				return types.Failed(task, errors.New("slow task blocked the queue"))
			}
			return succeed(ctx, task)
		}
		if others.Add(1) == n-1 {
			once.Do(func() { close(allOthersDone) })
		}
		return succeed(ctx, task)
	}

	res, err := New().Run(context.Background(), Batch{
		Tasks:       numberedTasks(n),
		Convert:     convert,
		Concurrency: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, n, res.Succeeded)
	assert.Zero(t, res.Failed)
}

// TestNewEventStream_ClosesAfterFinished는 이벤트 스트림이 finished 후 닫히는지 검증합니다.
func TestNewEventStream_ClosesAfterFinished(t *testing.T) {
	sink, events := NewEventStream(4)

	e := New()
	require.NoError(t, e.Start(context.Background(), Batch{
		Tasks:       numberedTasks(6),
		Convert:     succeed,
		Concurrency: 3,
		Sink:        sink,
	}))

	var got []types.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}
	assert.Len(t, got, 8)
	assertEventInvariants(t, got)
	assert.Equal(t, StateCompleted, e.Wait().State)
}

// TestTee_FansOutInOrder는 Tee가 모든 싱크에 순서대로 전달하는지 검증합니다.
func TestTee_FansOutInOrder(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	sink := Tee(a.sink, nil, b.sink)
	sink(types.ProgressEvent{Type: types.EventStarted, Total: 1})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}
