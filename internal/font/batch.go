package font

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// JobStatus はバッチ内ジョブのライフサイクル状態です。
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// ProcessingJob はバッチに受理された1ジョブの追跡情報です。コーディネーターが
// 排他的に所有し、バッチ完了後は読み取り専用になります。Progress はランナーが
// 通知した最新のフェーズ・進捗率を保持します。
type ProcessingJob struct {
	ID       string        `json:"id"`
	FilePath string        `json:"filePath"`
	Status   JobStatus     `json:"status"`
	Progress ProgressState `json:"progress"`
	Result   *SubsetResult `json:"result,omitempty"`
	Error    *AppError     `json:"error,omitempty"`
}

// BatchStatistics は成功ジョブのみを合算したサイズ統計です。
type BatchStatistics struct {
	TotalOriginalSize       int64   `json:"totalOriginalSize"`
	TotalOutputSize         int64   `json:"totalOutputSize"`
	AverageCompressionRatio float64 `json:"averageCompressionRatio"`
}

// BatchReport はバッチ完了時に一度だけ構築される集計結果です。
type BatchReport struct {
	Jobs           []*ProcessingJob `json:"jobs"`
	SuccessCount   int              `json:"successCount"`
	FailureCount   int              `json:"failureCount"`
	CancelledCount int              `json:"cancelledCount"`
	Success        bool             `json:"success"`
	FatalError     *AppError        `json:"fatalError,omitempty"`
	TotalTime      time.Duration    `json:"totalTime"`
	Statistics     BatchStatistics  `json:"statistics"`
}

// BatchOptions はバッチ実行のポリシーです。
type BatchOptions struct {
	// MaxConcurrency は同時に running 状態になれるジョブ数の上限です。
	// 0以下の場合は DefaultMaxConcurrency になります。
	MaxConcurrency int
	// ContinueOnError が true の場合、個別の失敗を記録して残りを続行します。
	ContinueOnError bool
	// StopOnFatalError が true の場合、"FATAL:" で始まる失敗を致命的と
	// みなし、新規ジョブの受け入れを停止します。
	StopOnFatalError bool
}

// DefaultMaxConcurrency はワーカープールの既定サイズです。
const DefaultMaxConcurrency = 3

// fatalPrefix の付いた失敗は ContinueOnError でも致命的として扱います。
const fatalPrefix = "FATAL:"

// BatchProgress はジョブ1件の完了ごとに呼ばれる進捗コールバックです。
// percent は完了数/総数の単調増加値で、全件完了時にちょうど100になります。
type BatchProgress func(completed, total int, percent float64, job *ProcessingJob)

// Coordinator は複数のサブセットジョブを固定サイズのワーカープールで
// 実行します。受理は入力順、完了順はスケジューラー任せです。
type Coordinator struct {
	runner *Runner
}

// NewCoordinator はバッチコーディネーターを作成します。
func NewCoordinator(runner *Runner) *Coordinator {
	return &Coordinator{runner: runner}
}

// Run は全リクエストを受理してワーカープールで処理し、集計結果を返します。
// 個々の失敗は集約されるだけで、エラーとして返ることはありません。
func (c *Coordinator) Run(ctx context.Context, requests []*SubsetRequest, opts BatchOptions, onProgress BatchProgress) *BatchReport {
	start := time.Now()
	if ctx == nil {
		ctx = context.Background()
	}

	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}

	// 全ジョブを入力順で queued として受理する
	jobs := make([]*ProcessingJob, len(requests))
	for i, req := range requests {
		jobs[i] = &ProcessingJob{
			ID:       uuid.NewString(),
			FilePath: inputPathOf(req),
			Status:   JobQueued,
		}
	}

	var (
		mu        sync.Mutex
		completed int
		stopped   bool
		fatal     *AppError
	)
	total := len(jobs)

	finish := func(job *ProcessingJob) {
		completed++
		if onProgress != nil {
			onProgress(completed, total, float64(completed)/float64(total)*100, job)
		}
	}

	var g errgroup.Group
	g.SetLimit(limit)

	for i := range requests {
		req, job := requests[i], jobs[i]
		g.Go(func() error {
			mu.Lock()
			if stopped {
				job.Status = JobCancelled
				job.Error = NewAppError(KindCancelled, "先行ジョブの失敗により実行されませんでした。", job.FilePath)
				job.Progress = ProgressState{
					Phase:       PhaseComplete,
					Progress:    0,
					CurrentFile: job.FilePath,
					Error:       job.Error,
				}
				finish(job)
				mu.Unlock()
				return nil
			}
			job.Status = JobRunning
			mu.Unlock()

			result := c.runner.Run(ctx, req, func(state ProgressState) {
				mu.Lock()
				job.Progress = state
				mu.Unlock()
			})

			mu.Lock()
			defer mu.Unlock()
			job.Result = result
			switch {
			case result.Succeeded():
				job.Status = JobSucceeded
			case result.Cancelled():
				job.Status = JobCancelled
				job.Error = result.Err
			default:
				job.Status = JobFailed
				job.Error = result.Err
				if c.isFatal(result.Err, opts) && fatal == nil {
					fatal = result.Err
					stopped = true
				}
			}
			finish(job)
			return nil
		})
	}

	_ = g.Wait()

	report := &BatchReport{
		Jobs:      jobs,
		TotalTime: time.Since(start),
	}

	var ratioSum float64
	for _, job := range jobs {
		switch job.Status {
		case JobSucceeded:
			report.SuccessCount++
			report.Statistics.TotalOriginalSize += job.Result.OriginalSize
			report.Statistics.TotalOutputSize += job.Result.OutputSize
			if job.Result.OriginalSize > 0 {
				ratioSum += float64(job.Result.OutputSize) / float64(job.Result.OriginalSize)
			}
		case JobFailed:
			report.FailureCount++
		case JobCancelled:
			report.CancelledCount++
		}
	}
	if report.SuccessCount > 0 {
		report.Statistics.AverageCompressionRatio = ratioSum / float64(report.SuccessCount)
	}

	report.FatalError = fatal
	report.Success = fatal == nil && report.FailureCount == 0

	return report
}

func (c *Coordinator) isFatal(appErr *AppError, opts BatchOptions) bool {
	if appErr == nil {
		return false
	}
	if !opts.ContinueOnError {
		return true
	}
	if opts.StopOnFatalError && (strings.HasPrefix(appErr.Message, fatalPrefix) || strings.HasPrefix(appErr.Details, fatalPrefix)) {
		return true
	}
	return false
}
