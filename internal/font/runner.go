package font

import (
	"context"
	"os"
	"time"

	"github.com/rivo/uniseg"

	"github.com/yourusername/glyph-forge/internal/cancel"
	"github.com/yourusername/glyph-forge/internal/charset"
)

// SubsetResult は1ジョブの最終結果です。ランナーは例外を呼び出し側へ
// 漏らさず、成功値か分類済みエラーのどちらかをこの結果に載せて返します。
type SubsetResult struct {
	Output          []byte        `json:"-"`
	OriginalSize    int64         `json:"originalSize"`
	OutputSize      int64         `json:"outputSize"`
	RequestedFormat OutputFormat  `json:"requestedFormat"`
	UsedFormat      OutputFormat  `json:"usedFormat"`
	CharacterCount  int           `json:"characterCount"`
	Warning         string        `json:"warning,omitempty"`
	Duration        time.Duration `json:"duration"`
	Err             *AppError     `json:"error,omitempty"`
}

// Succeeded は結果が成功かどうかを返します。
func (r *SubsetResult) Succeeded() bool {
	return r != nil && r.Err == nil
}

// Cancelled は結果がキャンセル終了かどうかを返します。キャンセルは正常系の
// 終了であり、失敗として集計しません。
func (r *SubsetResult) Cancelled() bool {
	return r != nil && r.Err != nil && r.Err.Kind == KindCancelled
}

// Runner は1ファイルを固定フェーズ列（analyze → subset → optimize →
// [compress] → complete）で処理するジョブランナーです。
type Runner struct {
	catalog     *charset.Catalog
	registry    *cancel.Registry
	transformer Transformer

	// timeout は外部コラボレーター呼び出し1回あたりのソフトタイムアウト
	// です。0の場合は無制限です。
	timeout time.Duration
}

// NewRunner はジョブランナーを作成します。
func NewRunner(catalog *charset.Catalog, registry *cancel.Registry, transformer Transformer, timeout time.Duration) *Runner {
	return &Runner{
		catalog:     catalog,
		registry:    registry,
		transformer: transformer,
		timeout:     timeout,
	}
}

// Run はリクエストを処理して結果を返します。キャンセルは各フェーズの
// 直前にのみ確認します。外部呼び出し中のジョブは中断できないため、
// キャンセル要求は次のフェーズ境界で効力を持ちます。
func (r *Runner) Run(ctx context.Context, req *SubsetRequest, reporter ProgressReporter) *SubsetResult {
	start := time.Now()
	result := &SubsetResult{}

	fail := func(appErr *AppError) *SubsetResult {
		reportProgress(reporter, ProgressState{
			Phase:       PhaseComplete,
			Progress:    0,
			Message:     appErr.Message,
			CurrentFile: inputPathOf(req),
			Error:       appErr,
		})
		result.Err = appErr
		result.Duration = time.Since(start)
		return result
	}

	if appErr := req.Validate(); appErr != nil {
		return fail(appErr)
	}

	format, _ := NormalizeFormat(string(req.OutputFormat))
	result.RequestedFormat = format
	result.UsedFormat = format

	if cancelled := r.checkCancelled(req); cancelled != nil {
		return fail(cancelled)
	}

	// analyzing: 入力の読み込みと文字セットの解決
	reportProgress(reporter, ProgressState{
		Phase:       PhaseAnalyzing,
		Progress:    percentAnalyzing,
		Message:     "フォントを解析しています",
		CurrentFile: req.InputPath,
	})

	characterSet, err := r.catalog.Resolve(req.Source)
	if err != nil {
		appErr := NewAppError(KindValidationFailed, "文字セットを解決できませんでした。", req.InputPath)
		appErr.Details = err.Error()
		return fail(appErr)
	}
	// 文字数はカタログと同じく書記素クラスタ単位で数える
	result.CharacterCount = uniseg.GraphemeClusterCount(characterSet)

	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return fail(Classify(err, req.InputPath))
	}
	result.OriginalSize = int64(len(data))

	if cancelled := r.checkCancelled(req); cancelled != nil {
		return fail(cancelled)
	}

	// subsetting: 外部コラボレーターによるグリフ削減
	reportProgress(reporter, ProgressState{
		Phase:       PhaseSubsetting,
		Progress:    percentSubsetting,
		Message:     "グリフをサブセット化しています",
		CurrentFile: req.InputPath,
	})

	opts := TransformOptions{
		TargetFormat:    format,
		PreserveHinting: !req.RemoveHinting,
		Desubroutinize:  req.RemoveHinting,
	}
	output, appErr := r.transformWithRetry(ctx, req, data, characterSet, opts)
	if appErr != nil {
		return fail(appErr)
	}

	if cancelled := r.checkCancelled(req); cancelled != nil {
		return fail(cancelled)
	}

	// optimizing: 出力の検証とサイズ確定
	reportProgress(reporter, ProgressState{
		Phase:       PhaseOptimizing,
		Progress:    percentOptimizing,
		Message:     "出力を最適化しています",
		CurrentFile: req.InputPath,
	})

	if len(output) == 0 {
		return fail(NewAppError(KindSubsetFailed, "サブセット化の結果が空でした。", req.InputPath))
	}

	// compressing: 要求形式が既に圧縮コンテナでない場合のみ
	if req.EnableSecondaryCompression && format != FormatWOFF2 {
		if cancelled := r.checkCancelled(req); cancelled != nil {
			return fail(cancelled)
		}

		reportProgress(reporter, ProgressState{
			Phase:       PhaseCompressing,
			Progress:    percentCompressing,
			Message:     "WOFF2へ圧縮しています",
			CurrentFile: req.InputPath,
		})

		compressed, compErr := r.callCompressed(ctx, output, characterSet)
		if compErr != nil {
			// 二次圧縮の失敗は一次出力へのフォールバックで回復する。
			// 要求形式が適用されなかったことは警告で必ず伝える。
			classified := Classify(compErr, req.InputPath)
			result.Warning = "WOFF2への二次圧縮に失敗したため、" + string(format) + " 形式の出力を使用しました: " + classified.Message
		} else {
			output = compressed
			result.UsedFormat = FormatWOFF2
		}
	}

	result.Output = output
	result.OutputSize = int64(len(output))
	result.Duration = time.Since(start)

	reportProgress(reporter, ProgressState{
		Phase:       PhaseComplete,
		Progress:    percentComplete,
		Message:     "完了しました",
		CurrentFile: req.InputPath,
	})

	return result
}

// transformWithRetry はサブセット変換を実行します。分類結果がリカバリ可能な
// 失敗は MaxRetries 回まで再試行します。
func (r *Runner) transformWithRetry(ctx context.Context, req *SubsetRequest, data []byte, characterSet string, opts TransformOptions) ([]byte, *AppError) {
	var lastErr *AppError
	for attempt := 0; attempt <= req.MaxRetries; attempt++ {
		callCtx, cancelFn := r.callContext(ctx)
		output, err := r.transformer.Transform(callCtx, data, characterSet, opts)
		cancelFn()
		if err == nil {
			return output, nil
		}
		lastErr = Classify(err, req.InputPath)
		if !lastErr.Recoverable || lastErr.Kind == KindCancelled || lastErr.Kind == KindTimedOut {
			return nil, lastErr
		}
		if r.registry != nil && r.registry.IsCancelled(req.RequesterID) {
			break
		}
	}
	return nil, lastErr
}

func (r *Runner) callCompressed(ctx context.Context, data []byte, characterSet string) ([]byte, error) {
	callCtx, cancelFn := r.callContext(ctx)
	defer cancelFn()
	return r.transformer.TransformToCompressed(callCtx, data, characterSet)
}

// callContext は外部呼び出し1回分のコンテキストを返します。ソフト
// タイムアウト設定時は期限超過を TimedOut 失敗へ変換します。
func (r *Runner) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}
	return context.WithCancel(ctx)
}

func (r *Runner) checkCancelled(req *SubsetRequest) *AppError {
	if r.registry == nil || !r.registry.IsCancelled(req.RequesterID) {
		return nil
	}
	return NewAppError(KindCancelled, "処理がキャンセルされました。", req.InputPath)
}

func inputPathOf(req *SubsetRequest) string {
	if req == nil {
		return ""
	}
	return req.InputPath
}
