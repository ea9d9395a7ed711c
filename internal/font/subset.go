package font

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/yourusername/glyph-forge/internal/charset"
)

// SubsetParams はHTTPフォームから受け取るサブセット化パラメーターです。
type SubsetParams struct {
	PresetID             string
	CustomText           string
	OutputFormat         string
	RemoveHinting        bool
	SecondaryCompression bool
	MaxRetries           int
	RequesterID          string
}

// resultFileInfo はダウンロード時に参照する成果物情報です。meta.json に
// 保存され、二次圧縮フォールバックで実際の形式が変わっても追従できます。
type resultFileInfo struct {
	OutputFilename string     `json:"outputFilename"`
	ResultKind     ResultKind `json:"resultKind"`
}

const resultInfoFilename = "meta.json"

// SubsetMultipart は単一フォントのサブセット化を同期実行します。
func (s *Service) SubsetMultipart(ctx context.Context, file *multipart.FileHeader, params SubsetParams) (_ *JobResult, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, NewAppError(KindValidationFailed, "フォントファイルを選択してください。", "")
	}

	manifest, err := s.PrepareSubsetJob(ctx, file, params)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = removeDir(s.workspaceFor(manifest.JobID).dir)
		}
	}()

	return s.RunJob(ctx, manifest.JobID, nil)
}

// PrepareSubsetJob は入力を検証してワークスペースとマニフェストを準備します。
func (s *Service) PrepareSubsetJob(ctx context.Context, file *multipart.FileHeader, params SubsetParams) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, NewAppError(KindValidationFailed, "フォントファイルを選択してください。", "")
	}
	if _, err := NormalizeFormat(params.OutputFormat); err != nil {
		return nil, NewAppError(KindValidationFailed, "出力形式には ttf / otf / woff / woff2 のいずれかを指定してください。", file.Filename)
	}
	if _, err := s.catalog.Resolve(charset.Source{PresetID: params.PresetID, CustomText: params.CustomText}); err != nil {
		appErr := NewAppError(KindValidationFailed, "文字セットを解決できませんでした。", file.Filename)
		appErr.Details = err.Error()
		return nil, appErr
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, "")
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	manifest := &JobManifest{
		JobID: ws.jobID,
		File: JobFile{
			StoredName:   filepath.Base(stored.path),
			OriginalName: stored.originalName,
			Size:         stored.size,
			Format:       stored.format,
		},
		PresetID:             params.PresetID,
		CustomText:           params.CustomText,
		OutputFormat:         params.OutputFormat,
		RemoveHinting:        params.RemoveHinting,
		SecondaryCompression: params.SecondaryCompression,
		MaxRetries:           params.MaxRetries,
		RequesterID:          params.RequesterID,
		CreatedAt:            s.now().UTC(),
	}
	if err := writeManifest(ws.dir, manifest); err != nil {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}

	return manifest, nil
}

// RunJob はジョブIDに対応するサブセット処理を実行します。失敗時は分類済みの
// *AppError を返し、ワークスペースを破棄します。
func (s *Service) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*JobResult, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	ws := s.workspaceFor(jobID)
	manifest, err := loadManifest(ws.dir)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	req := &SubsetRequest{
		InputPath:                  filepath.Join(ws.inDir, manifest.File.StoredName),
		Source:                     charset.Source{PresetID: manifest.PresetID, CustomText: manifest.CustomText},
		OutputFormat:               OutputFormat(manifest.OutputFormat),
		RemoveHinting:              manifest.RemoveHinting,
		EnableSecondaryCompression: manifest.SecondaryCompression,
		MaxRetries:                 manifest.MaxRetries,
		RequesterID:                manifest.RequesterID,
	}

	result := s.runner.Run(ctx, req, reporter)
	if !result.Succeeded() {
		_ = removeDir(ws.dir)
		return nil, result.Err
	}

	outputFilename := subsetFilename(manifest.File.OriginalName, result.UsedFormat)
	outputPath := filepath.Join(ws.outDir, outputFilename)
	if err := os.WriteFile(outputPath, result.Output, 0o640); err != nil {
		_ = removeDir(ws.dir)
		return nil, Classify(err, outputPath)
	}

	meta := &SubsetMeta{
		OriginalSize:    result.OriginalSize,
		OutputSize:      result.OutputSize,
		SavedBytes:      result.OriginalSize - result.OutputSize,
		SavedPercent:    computeSavedPercent(result.OriginalSize, result.OutputSize),
		CharacterCount:  result.CharacterCount,
		RequestedFormat: result.RequestedFormat,
		UsedFormat:      result.UsedFormat,
		Warning:         result.Warning,
		Source: SourceFileMeta{
			Name:   manifest.File.OriginalName,
			Size:   manifest.File.Size,
			Format: manifest.File.Format,
		},
	}

	info := resultFileInfo{OutputFilename: outputFilename, ResultKind: ResultKindFont}
	if err := writeJSON(filepath.Join(ws.dir, resultInfoFilename), info); err != nil {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("メタデータの保存に失敗しました: %w", err)
	}

	s.scheduleCleanup(ws.dir)

	return &JobResult{
		JobID:          ws.jobID,
		OutputPath:     outputPath,
		OutputFilename: outputFilename,
		OutputSize:     result.OutputSize,
		ResultKind:     ResultKindFont,
		Meta:           meta,
		jobDir:         ws.dir,
	}, nil
}

// subsetFilename は元のファイル名から成果物名を導出します。
func subsetFilename(originalName string, format OutputFormat) string {
	base := filepath.Base(originalName)
	ext := filepath.Ext(base)
	if ext != "" {
		base = base[:len(base)-len(ext)]
	}
	if base == "" || base == "." {
		base = "subset"
	}
	return fmt.Sprintf("%s.subset.%s", base, format)
}
