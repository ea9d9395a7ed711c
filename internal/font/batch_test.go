package font

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/glyph-forge/internal/cancel"
	"github.com/yourusername/glyph-forge/internal/charset"
)

// failMarker を含む入力はスタブが失敗させる。fatalMarker は致命的失敗を装う。
const (
	failMarker  = "BROKEN"
	fatalMarker = "DISKFULL"
)

func batchStub(delay time.Duration) *stubTransformer {
	stub := &stubTransformer{delay: delay}
	stub.errFor = func(data []byte) error {
		switch {
		case bytes.Contains(data, []byte(fatalMarker)):
			return errors.New("FATAL: no space left for output")
		case bytes.Contains(data, []byte(failMarker)):
			return errors.New("invalid font data")
		default:
			return nil
		}
	}
	return stub
}

func writeBatchInput(t *testing.T, dir, name, marker string, size int) *SubsetRequest {
	t.Helper()
	data := bytes.Repeat([]byte{0xCD}, size)
	copy(data, marker)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return &SubsetRequest{
		InputPath:    path,
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
	}
}

func TestBatchConcurrencyBound(t *testing.T) {
	stub := batchStub(20 * time.Millisecond)
	coordinator := NewCoordinator(newTestRunner(stub, cancel.NewRegistry()))

	dir := t.TempDir()
	var requests []*SubsetRequest
	for i := 0; i < 8; i++ {
		requests = append(requests, writeBatchInput(t, dir, fmt.Sprintf("f%d.ttf", i), "", 100))
	}

	report := coordinator.Run(context.Background(), requests, BatchOptions{
		MaxConcurrency:  2,
		ContinueOnError: true,
	}, nil)

	if report.SuccessCount != 8 {
		t.Fatalf("SuccessCount = %d, want 8", report.SuccessCount)
	}
	if stub.maxRunning > 2 {
		t.Errorf("maxRunning = %d, concurrency bound of 2 violated", stub.maxRunning)
	}
	if !report.Success {
		t.Error("report should be successful")
	}
}

func TestBatchAggregatesFailures(t *testing.T) {
	stub := batchStub(0)
	coordinator := NewCoordinator(newTestRunner(stub, cancel.NewRegistry()))

	dir := t.TempDir()
	var requests []*SubsetRequest
	for i := 0; i < 10; i++ {
		marker := ""
		if i == 3 || i == 7 {
			marker = failMarker
		}
		requests = append(requests, writeBatchInput(t, dir, fmt.Sprintf("f%d.ttf", i), marker, 100))
	}

	report := coordinator.Run(context.Background(), requests, BatchOptions{
		MaxConcurrency:  3,
		ContinueOnError: true,
	}, nil)

	if report.SuccessCount != 8 {
		t.Errorf("SuccessCount = %d, want 8", report.SuccessCount)
	}
	if report.FailureCount != 2 {
		t.Errorf("FailureCount = %d, want 2", report.FailureCount)
	}
	if report.CancelledCount != 0 {
		t.Errorf("CancelledCount = %d, want 0", report.CancelledCount)
	}
	if report.Success {
		t.Error("report with failures must not be successful")
	}
	if report.FatalError != nil {
		t.Errorf("non-fatal failures must not set FatalError: %v", report.FatalError)
	}

	// 統計は成功ジョブのみを合算する
	if got := report.Statistics.TotalOriginalSize; got != 800 {
		t.Errorf("TotalOriginalSize = %d, want 800", got)
	}
	if got := report.Statistics.TotalOutputSize; got != 400 {
		t.Errorf("TotalOutputSize = %d, want 400", got)
	}
	if got := report.Statistics.AverageCompressionRatio; got < 0.49 || got > 0.51 {
		t.Errorf("AverageCompressionRatio = %f, want ~0.5", got)
	}
}

func TestBatchStopsOnFatalError(t *testing.T) {
	stub := batchStub(0)
	coordinator := NewCoordinator(newTestRunner(stub, cancel.NewRegistry()))

	dir := t.TempDir()
	requests := []*SubsetRequest{
		writeBatchInput(t, dir, "a.ttf", "", 100),
		writeBatchInput(t, dir, "b.ttf", fatalMarker, 100),
		writeBatchInput(t, dir, "c.ttf", "", 100),
		writeBatchInput(t, dir, "d.ttf", "", 100),
	}

	// 逐次実行で順序を固定する
	report := coordinator.Run(context.Background(), requests, BatchOptions{
		MaxConcurrency:   1,
		ContinueOnError:  true,
		StopOnFatalError: true,
	}, nil)

	if report.FatalError == nil {
		t.Fatal("FatalError should be set")
	}
	if report.Success {
		t.Error("report with a fatal error must not be successful")
	}
	if report.SuccessCount != 1 {
		t.Errorf("SuccessCount = %d, want 1", report.SuccessCount)
	}
	if report.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1 (only the fatal job)", report.FailureCount)
	}
	if report.CancelledCount != 2 {
		t.Errorf("CancelledCount = %d, want 2 (jobs admitted after the fatal failure)", report.CancelledCount)
	}
	for _, job := range report.Jobs[2:] {
		if job.Status != JobCancelled {
			t.Errorf("job %s status = %s, want cancelled", job.FilePath, job.Status)
		}
	}
}

func TestBatchStopsOnFirstErrorWhenContinueDisabled(t *testing.T) {
	stub := batchStub(0)
	coordinator := NewCoordinator(newTestRunner(stub, cancel.NewRegistry()))

	dir := t.TempDir()
	requests := []*SubsetRequest{
		writeBatchInput(t, dir, "a.ttf", failMarker, 100),
		writeBatchInput(t, dir, "b.ttf", "", 100),
		writeBatchInput(t, dir, "c.ttf", "", 100),
	}

	report := coordinator.Run(context.Background(), requests, BatchOptions{
		MaxConcurrency:  1,
		ContinueOnError: false,
	}, nil)

	if report.FatalError == nil {
		t.Fatal("first failure should be fatal when ContinueOnError is disabled")
	}
	if report.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", report.FailureCount)
	}
	if report.CancelledCount != 2 {
		t.Errorf("CancelledCount = %d, want 2", report.CancelledCount)
	}
}

func TestBatchProgressMonotonic(t *testing.T) {
	stub := batchStub(5 * time.Millisecond)
	coordinator := NewCoordinator(newTestRunner(stub, cancel.NewRegistry()))

	dir := t.TempDir()
	var requests []*SubsetRequest
	for i := 0; i < 5; i++ {
		requests = append(requests, writeBatchInput(t, dir, fmt.Sprintf("f%d.ttf", i), "", 100))
	}

	var mu sync.Mutex
	var percents []float64
	var completeds []int
	onProgress := func(completed, total int, percent float64, job *ProcessingJob) {
		mu.Lock()
		defer mu.Unlock()
		completeds = append(completeds, completed)
		percents = append(percents, percent)
		if job == nil {
			t.Error("progress callback received nil job")
		}
		if total != 5 {
			t.Errorf("total = %d, want 5", total)
		}
	}

	coordinator.Run(context.Background(), requests, BatchOptions{
		MaxConcurrency:  2,
		ContinueOnError: true,
	}, onProgress)

	if len(percents) != 5 {
		t.Fatalf("progress calls = %d, want 5", len(percents))
	}
	for i := 1; i < len(percents); i++ {
		if percents[i] < percents[i-1] {
			t.Errorf("percent regressed: %v", percents)
		}
		if completeds[i] != completeds[i-1]+1 {
			t.Errorf("completed counts not sequential: %v", completeds)
		}
	}
	if percents[len(percents)-1] != 100 {
		t.Errorf("final percent = %f, want 100", percents[len(percents)-1])
	}
}

func TestBatchCancelledJobsAreNotFailures(t *testing.T) {
	registry := cancel.NewRegistry()
	registry.Cancel("")

	stub := batchStub(0)
	coordinator := NewCoordinator(newTestRunner(stub, registry))

	dir := t.TempDir()
	requests := []*SubsetRequest{
		writeBatchInput(t, dir, "a.ttf", "", 100),
		writeBatchInput(t, dir, "b.ttf", "", 100),
	}

	report := coordinator.Run(context.Background(), requests, BatchOptions{
		MaxConcurrency:  2,
		ContinueOnError: true,
	}, nil)

	if report.CancelledCount != 2 {
		t.Errorf("CancelledCount = %d, want 2", report.CancelledCount)
	}
	if report.FailureCount != 0 {
		t.Errorf("FailureCount = %d, want 0 (cancellation is not failure)", report.FailureCount)
	}
	if report.FatalError != nil {
		t.Errorf("cancellation must not set FatalError: %v", report.FatalError)
	}
	for _, job := range report.Jobs {
		if job.Status != JobCancelled {
			t.Errorf("job status = %s, want cancelled", job.Status)
		}
		if job.Error == nil || job.Error.Kind != KindCancelled {
			t.Errorf("job error = %+v, want Cancelled", job.Error)
		}
	}
}

func TestBatchEmptyInput(t *testing.T) {
	coordinator := NewCoordinator(newTestRunner(batchStub(0), cancel.NewRegistry()))

	report := coordinator.Run(context.Background(), nil, BatchOptions{ContinueOnError: true}, nil)

	if len(report.Jobs) != 0 {
		t.Errorf("Jobs = %d, want 0", len(report.Jobs))
	}
	if !report.Success {
		t.Error("empty batch should be successful")
	}
}

func TestBatchTracksPerJobProgress(t *testing.T) {
	stub := batchStub(0)
	coordinator := NewCoordinator(newTestRunner(stub, cancel.NewRegistry()))

	dir := t.TempDir()
	requests := []*SubsetRequest{
		writeBatchInput(t, dir, "ok.ttf", "", 100),
		writeBatchInput(t, dir, "broken.ttf", failMarker, 100),
	}

	report := coordinator.Run(context.Background(), requests, BatchOptions{
		MaxConcurrency:  1,
		ContinueOnError: true,
	}, nil)

	succeeded := report.Jobs[0]
	if succeeded.Status != JobSucceeded {
		t.Fatalf("job[0] status = %s, want succeeded", succeeded.Status)
	}
	if succeeded.Progress.Phase != PhaseComplete || succeeded.Progress.Progress != 100 {
		t.Errorf("job[0] progress = %+v, want complete/100", succeeded.Progress)
	}
	if succeeded.Progress.CurrentFile != requests[0].InputPath {
		t.Errorf("job[0] progress file = %q", succeeded.Progress.CurrentFile)
	}

	failed := report.Jobs[1]
	if failed.Status != JobFailed {
		t.Fatalf("job[1] status = %s, want failed", failed.Status)
	}
	if failed.Progress.Phase != PhaseComplete || failed.Progress.Progress != 0 {
		t.Errorf("job[1] progress = %+v, want complete/0", failed.Progress)
	}
	if failed.Progress.Error == nil {
		t.Error("failed job progress should carry the classified error")
	}
}

func TestBatchSkippedJobsCarryCancelledProgress(t *testing.T) {
	stub := batchStub(0)
	coordinator := NewCoordinator(newTestRunner(stub, cancel.NewRegistry()))

	dir := t.TempDir()
	requests := []*SubsetRequest{
		writeBatchInput(t, dir, "a.ttf", fatalMarker, 100),
		writeBatchInput(t, dir, "b.ttf", "", 100),
	}

	report := coordinator.Run(context.Background(), requests, BatchOptions{
		MaxConcurrency:   1,
		ContinueOnError:  true,
		StopOnFatalError: true,
	}, nil)

	skipped := report.Jobs[1]
	if skipped.Status != JobCancelled {
		t.Fatalf("job[1] status = %s, want cancelled", skipped.Status)
	}
	if skipped.Progress.Phase != PhaseComplete || skipped.Progress.Progress != 0 {
		t.Errorf("skipped job progress = %+v, want complete/0", skipped.Progress)
	}
	if skipped.Progress.Error == nil || skipped.Progress.Error.Kind != KindCancelled {
		t.Errorf("skipped job progress error = %+v, want Cancelled", skipped.Progress.Error)
	}
}

func TestBatchJobsHaveUniqueIDs(t *testing.T) {
	coordinator := NewCoordinator(newTestRunner(batchStub(0), cancel.NewRegistry()))

	dir := t.TempDir()
	var requests []*SubsetRequest
	for i := 0; i < 4; i++ {
		requests = append(requests, writeBatchInput(t, dir, fmt.Sprintf("f%d.ttf", i), "", 100))
	}

	report := coordinator.Run(context.Background(), requests, BatchOptions{ContinueOnError: true}, nil)

	seen := make(map[string]bool)
	for i, job := range report.Jobs {
		if job.ID == "" {
			t.Error("job ID should not be empty")
		}
		if seen[job.ID] {
			t.Errorf("duplicate job ID %s", job.ID)
		}
		seen[job.ID] = true
		// 受理順は入力順
		if job.FilePath != requests[i].InputPath {
			t.Errorf("job[%d] path = %s, want %s", i, job.FilePath, requests[i].InputPath)
		}
	}
}
