package font

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/glyph-forge/internal/cancel"
	"github.com/yourusername/glyph-forge/internal/charset"
)

// stubTransformer は外部コラボレーターの代役です。入力の前半を返すことで
// 「サイズが縮む変換」を模倣します。
type stubTransformer struct {
	mu            sync.Mutex
	delay         time.Duration
	errFor        func(data []byte) error
	compressErr   error
	onTransform   func()
	calls         int
	compressCalls int
	charsets      []string
	running       int
	maxRunning    int
}

func (s *stubTransformer) Transform(ctx context.Context, data []byte, characterSet string, opts TransformOptions) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.charsets = append(s.charsets, characterSet)
	s.running++
	if s.running > s.maxRunning {
		s.maxRunning = s.running
	}
	hook := s.onTransform
	errFor := s.errFor
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	s.running--
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if errFor != nil {
		if err := errFor(data); err != nil {
			return nil, err
		}
	}
	return data[:len(data)/2], nil
}

func (s *stubTransformer) TransformToCompressed(ctx context.Context, data []byte, characterSet string) ([]byte, error) {
	s.mu.Lock()
	s.compressCalls++
	compressErr := s.compressErr
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if compressErr != nil {
		return nil, compressErr
	}
	return data[:len(data)/2], nil
}

func (s *stubTransformer) transformCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func writeTempFont(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.ttf")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

type progressRecorder struct {
	mu     sync.Mutex
	states []ProgressState
}

func (p *progressRecorder) reporter() ProgressReporter {
	return func(state ProgressState) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.states = append(p.states, state)
	}
}

func (p *progressRecorder) progresses() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	values := make([]int, len(p.states))
	for i, s := range p.states {
		values[i] = s.Progress
	}
	return values
}

func (p *progressRecorder) last() ProgressState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.states[len(p.states)-1]
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestRunner(stub *stubTransformer, registry *cancel.Registry) *Runner {
	return NewRunner(charset.NewCatalog(), registry, stub, 0)
}

func TestRunnerPhaseSequence(t *testing.T) {
	stub := &stubTransformer{}
	runner := newTestRunner(stub, cancel.NewRegistry())
	rec := &progressRecorder{}

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 1024),
		Source:       charset.Source{PresetID: "minimum"},
		OutputFormat: FormatTTF,
	}

	result := runner.Run(context.Background(), req, rec.reporter())

	if !result.Succeeded() {
		t.Fatalf("Run failed: %v", result.Err)
	}
	if got, want := rec.progresses(), []int{10, 30, 80, 100}; !equalInts(got, want) {
		t.Errorf("progress sequence = %v, want %v", got, want)
	}
	wantPhases := []Phase{PhaseAnalyzing, PhaseSubsetting, PhaseOptimizing, PhaseComplete}
	for i, state := range rec.states {
		if state.Phase != wantPhases[i] {
			t.Errorf("phase[%d] = %s, want %s", i, state.Phase, wantPhases[i])
		}
	}
	if result.OriginalSize != 1024 || result.OutputSize != 512 {
		t.Errorf("sizes = %d/%d, want 1024/512", result.OriginalSize, result.OutputSize)
	}
	if result.RequestedFormat != FormatTTF || result.UsedFormat != FormatTTF {
		t.Errorf("formats = %s/%s, want ttf/ttf", result.RequestedFormat, result.UsedFormat)
	}
	if result.CharacterCount == 0 {
		t.Error("CharacterCount should be populated")
	}
	if result.Duration <= 0 {
		t.Error("Duration should be measured")
	}
}

func TestRunnerSecondaryCompressionSequence(t *testing.T) {
	stub := &stubTransformer{}
	runner := newTestRunner(stub, cancel.NewRegistry())
	rec := &progressRecorder{}

	req := &SubsetRequest{
		InputPath:                  writeTempFont(t, 1024),
		Source:                     charset.Source{PresetID: "kana"},
		OutputFormat:               FormatWOFF,
		EnableSecondaryCompression: true,
	}

	result := runner.Run(context.Background(), req, rec.reporter())

	if !result.Succeeded() {
		t.Fatalf("Run failed: %v", result.Err)
	}
	if got, want := rec.progresses(), []int{10, 30, 80, 85, 100}; !equalInts(got, want) {
		t.Errorf("progress sequence = %v, want %v", got, want)
	}
	if result.UsedFormat != FormatWOFF2 {
		t.Errorf("UsedFormat = %s, want woff2", result.UsedFormat)
	}
	if result.RequestedFormat != FormatWOFF {
		t.Errorf("RequestedFormat = %s, want woff", result.RequestedFormat)
	}
	if stub.compressCalls != 1 {
		t.Errorf("compressCalls = %d, want 1", stub.compressCalls)
	}
	if result.Warning != "" {
		t.Errorf("unexpected warning: %q", result.Warning)
	}
}

func TestRunnerSecondaryCompressionSkippedForWOFF2(t *testing.T) {
	stub := &stubTransformer{}
	runner := newTestRunner(stub, cancel.NewRegistry())
	rec := &progressRecorder{}

	req := &SubsetRequest{
		InputPath:                  writeTempFont(t, 1024),
		Source:                     charset.Source{PresetID: "kana"},
		OutputFormat:               FormatWOFF2,
		EnableSecondaryCompression: true,
	}

	result := runner.Run(context.Background(), req, rec.reporter())

	if !result.Succeeded() {
		t.Fatalf("Run failed: %v", result.Err)
	}
	if got, want := rec.progresses(), []int{10, 30, 80, 100}; !equalInts(got, want) {
		t.Errorf("progress sequence = %v, want %v", got, want)
	}
	if stub.compressCalls != 0 {
		t.Errorf("compressCalls = %d, want 0 (already woff2)", stub.compressCalls)
	}
	if result.UsedFormat != FormatWOFF2 {
		t.Errorf("UsedFormat = %s, want woff2", result.UsedFormat)
	}
}

func TestRunnerCompressionFallbackKeepsPrimaryOutput(t *testing.T) {
	stub := &stubTransformer{compressErr: errors.New("woff2 encode error")}
	runner := newTestRunner(stub, cancel.NewRegistry())
	rec := &progressRecorder{}

	req := &SubsetRequest{
		InputPath:                  writeTempFont(t, 1024),
		Source:                     charset.Source{PresetID: "kana"},
		OutputFormat:               FormatWOFF,
		EnableSecondaryCompression: true,
	}

	result := runner.Run(context.Background(), req, rec.reporter())

	if !result.Succeeded() {
		t.Fatalf("fallback should still succeed, got: %v", result.Err)
	}
	if result.Warning == "" {
		t.Error("fallback must surface a warning")
	}
	if result.UsedFormat != FormatWOFF {
		t.Errorf("UsedFormat = %s, want primary woff", result.UsedFormat)
	}
	if result.OutputSize != 512 {
		t.Errorf("OutputSize = %d, want the primary output size 512", result.OutputSize)
	}
	if last := rec.last(); last.Progress != 100 || last.Error != nil {
		t.Errorf("final state = %+v, want progress 100 without error", last)
	}
}

func TestRunnerCancelledBeforeStart(t *testing.T) {
	registry := cancel.NewRegistry()
	registry.Cancel("")

	stub := &stubTransformer{}
	runner := newTestRunner(stub, registry)
	rec := &progressRecorder{}

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 64),
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
	}

	result := runner.Run(context.Background(), req, rec.reporter())

	if !result.Cancelled() {
		t.Fatalf("result should be cancelled, got: %+v", result)
	}
	if stub.transformCalls() != 0 {
		t.Error("transformer must not be invoked after cancellation")
	}
	if len(rec.states) != 1 {
		t.Fatalf("states = %d, want exactly 1 cancel notification", len(rec.states))
	}
	last := rec.last()
	if last.Phase != PhaseComplete || last.Progress != 0 {
		t.Errorf("final state = %+v, want complete/0", last)
	}
	if last.Error == nil || last.Error.Kind != KindCancelled {
		t.Errorf("final state error = %+v, want Cancelled", last.Error)
	}
}

func TestRunnerCancelTakesEffectAtPhaseBoundary(t *testing.T) {
	registry := cancel.NewRegistry()
	stub := &stubTransformer{}
	// 変換中に届いたキャンセルは、次のフェーズ境界で効力を持つ
	stub.onTransform = func() { registry.Cancel("user-1") }
	runner := newTestRunner(stub, registry)
	rec := &progressRecorder{}

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 1024),
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
		RequesterID:  "user-1",
	}

	result := runner.Run(context.Background(), req, rec.reporter())

	if !result.Cancelled() {
		t.Fatalf("result should be cancelled, got: %+v", result)
	}
	if stub.transformCalls() != 1 {
		t.Errorf("transformCalls = %d, want 1 (the in-flight call completes)", stub.transformCalls())
	}
	if got, want := rec.progresses(), []int{10, 30, 0}; !equalInts(got, want) {
		t.Errorf("progress sequence = %v, want %v", got, want)
	}
}

func TestRunnerCustomTextDeduplicatedBeforeTransform(t *testing.T) {
	stub := &stubTransformer{}
	runner := newTestRunner(stub, cancel.NewRegistry())

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 256),
		Source:       charset.Source{CustomText: "aabbccあああ"},
		OutputFormat: FormatTTF,
	}

	result := runner.Run(context.Background(), req, nil)

	if !result.Succeeded() {
		t.Fatalf("Run failed: %v", result.Err)
	}
	if stub.charsets[0] != "abcあ" {
		t.Errorf("transformer received %q, want deduplicated %q", stub.charsets[0], "abcあ")
	}
	if result.CharacterCount != 4 {
		t.Errorf("CharacterCount = %d, want 4", result.CharacterCount)
	}
}

func TestRunnerCharacterCountGraphemeClusters(t *testing.T) {
	stub := &stubTransformer{}
	runner := newTestRunner(stub, cancel.NewRegistry())

	// 「か」＋結合濁点と素の「か」：ルーンは3つだがクラスタは2つ
	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 64),
		Source:       charset.Source{CustomText: "がか"},
		OutputFormat: FormatTTF,
	}

	result := runner.Run(context.Background(), req, nil)

	if !result.Succeeded() {
		t.Fatalf("Run failed: %v", result.Err)
	}
	if result.CharacterCount != 2 {
		t.Errorf("CharacterCount = %d, want 2 grapheme clusters", result.CharacterCount)
	}
}

func TestRunnerUnknownPreset(t *testing.T) {
	stub := &stubTransformer{}
	runner := newTestRunner(stub, cancel.NewRegistry())
	rec := &progressRecorder{}

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 64),
		Source:       charset.Source{PresetID: "no-such-preset"},
		OutputFormat: FormatTTF,
	}

	result := runner.Run(context.Background(), req, rec.reporter())

	if result.Succeeded() {
		t.Fatal("unknown preset should fail")
	}
	if result.Err.Kind != KindValidationFailed {
		t.Errorf("Kind = %s, want ValidationFailed", result.Err.Kind)
	}
	if stub.transformCalls() != 0 {
		t.Error("transformer must not be invoked for an unresolvable charset")
	}
	if last := rec.last(); last.Progress != 0 || last.Error == nil {
		t.Errorf("final state = %+v, want progress 0 with error", last)
	}
}

func TestRunnerMissingInputFile(t *testing.T) {
	stub := &stubTransformer{}
	runner := newTestRunner(stub, cancel.NewRegistry())

	req := &SubsetRequest{
		InputPath:    filepath.Join(t.TempDir(), "does-not-exist.ttf"),
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
	}

	result := runner.Run(context.Background(), req, nil)

	if result.Succeeded() {
		t.Fatal("missing input should fail")
	}
	if result.Err.Kind != KindFileNotFound {
		t.Errorf("Kind = %s, want FileNotFound", result.Err.Kind)
	}
}

func TestRunnerRetriesRecoverableFailures(t *testing.T) {
	var failures int
	stub := &stubTransformer{}
	stub.errFor = func([]byte) error {
		if failures < 2 {
			failures++
			return errors.New("glyph closure failed")
		}
		return nil
	}
	runner := newTestRunner(stub, cancel.NewRegistry())

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 256),
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
		MaxRetries:   2,
	}

	result := runner.Run(context.Background(), req, nil)

	if !result.Succeeded() {
		t.Fatalf("Run should succeed after retries: %v", result.Err)
	}
	if stub.transformCalls() != 3 {
		t.Errorf("transformCalls = %d, want 3 (1 + 2 retries)", stub.transformCalls())
	}
}

func TestRunnerRetriesExhausted(t *testing.T) {
	stub := &stubTransformer{}
	stub.errFor = func([]byte) error { return errors.New("glyph closure failed") }
	runner := newTestRunner(stub, cancel.NewRegistry())

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 256),
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
		MaxRetries:   1,
	}

	result := runner.Run(context.Background(), req, nil)

	if result.Succeeded() {
		t.Fatal("exhausted retries should fail")
	}
	if result.Err.Kind != KindSubsetFailed {
		t.Errorf("Kind = %s, want SubsetFailed", result.Err.Kind)
	}
	if stub.transformCalls() != 2 {
		t.Errorf("transformCalls = %d, want 2", stub.transformCalls())
	}
}

func TestRunnerDoesNotRetryNonRecoverable(t *testing.T) {
	stub := &stubTransformer{}
	stub.errFor = func([]byte) error { return errors.New("invalid font data") }
	runner := newTestRunner(stub, cancel.NewRegistry())

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 256),
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
		MaxRetries:   3,
	}

	result := runner.Run(context.Background(), req, nil)

	if result.Succeeded() {
		t.Fatal("corrupt font should fail")
	}
	if result.Err.Kind != KindCorruptFont {
		t.Errorf("Kind = %s, want CorruptFont", result.Err.Kind)
	}
	if stub.transformCalls() != 1 {
		t.Errorf("transformCalls = %d, want 1 (no retry for non-recoverable)", stub.transformCalls())
	}
}

func TestRunnerSoftTimeout(t *testing.T) {
	stub := &stubTransformer{delay: 200 * time.Millisecond}
	runner := NewRunner(charset.NewCatalog(), cancel.NewRegistry(), stub, 20*time.Millisecond)

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 256),
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
	}

	result := runner.Run(context.Background(), req, nil)

	if result.Succeeded() {
		t.Fatal("slow collaborator should time out")
	}
	if result.Err.Kind != KindTimedOut {
		t.Errorf("Kind = %s, want TimedOut", result.Err.Kind)
	}
}

func TestRunnerNilReporter(t *testing.T) {
	stub := &stubTransformer{}
	runner := newTestRunner(stub, cancel.NewRegistry())

	req := &SubsetRequest{
		InputPath:    writeTempFont(t, 64),
		Source:       charset.Source{PresetID: "kana"},
		OutputFormat: FormatTTF,
	}

	if result := runner.Run(context.Background(), req, nil); !result.Succeeded() {
		t.Fatalf("Run failed: %v", result.Err)
	}
}

func TestNormalizeFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatTTF, false},
		{"ttf", FormatTTF, false},
		{"OTF", FormatOTF, false},
		{" woff ", FormatWOFF, false},
		{"woff2", FormatWOFF2, false},
		{"eot", "", true},
	}
	for _, tc := range cases {
		got, err := NormalizeFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("NormalizeFormat(%q) should fail", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("NormalizeFormat(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeFormat(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestSubsetRequestValidate(t *testing.T) {
	valid := func() *SubsetRequest {
		return &SubsetRequest{
			InputPath:    "/tmp/font.ttf",
			Source:       charset.Source{PresetID: "kana"},
			OutputFormat: FormatTTF,
		}
	}

	if appErr := valid().Validate(); appErr != nil {
		t.Fatalf("valid request rejected: %v", appErr)
	}

	cases := []struct {
		name   string
		mutate func(*SubsetRequest)
	}{
		{"empty input path", func(r *SubsetRequest) { r.InputPath = " " }},
		{"no source", func(r *SubsetRequest) { r.Source = charset.Source{} }},
		{"ambiguous source", func(r *SubsetRequest) { r.Source.CustomText = "abc" }},
		{"bad format", func(r *SubsetRequest) { r.OutputFormat = "eot" }},
		{"negative retries", func(r *SubsetRequest) { r.MaxRetries = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid()
			tc.mutate(req)
			appErr := req.Validate()
			if appErr == nil {
				t.Fatal("expected validation error")
			}
			if appErr.Kind != KindValidationFailed {
				t.Errorf("Kind = %s, want ValidationFailed", appErr.Kind)
			}
		})
	}
}
