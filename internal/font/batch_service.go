package font

import (
	"archive/zip"
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/yourusername/glyph-forge/internal/charset"
)

const batchZipFilename = "subset-batch.zip"

// SubsetBatchMultipart は複数フォントを1つのバッチとして処理します。
// 成功分の成果物はZIPにまとめ、集計レポートとともに返します。個別ジョブの
// 失敗はレポートに集約されるだけで、バッチ全体のエラーにはなりません。
func (s *Service) SubsetBatchMultipart(ctx context.Context, files []*multipart.FileHeader, params SubsetParams, opts BatchOptions, onProgress BatchProgress) (_ *JobResult, _ *BatchReport, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(files) == 0 {
		return nil, nil, NewAppError(KindValidationFailed, "フォントファイルを1つ以上選択してください。", "")
	}
	if _, err := NormalizeFormat(params.OutputFormat); err != nil {
		return nil, nil, NewAppError(KindValidationFailed, "出力形式には ttf / otf / woff / woff2 のいずれかを指定してください。", "")
	}
	if _, err := s.catalog.Resolve(charset.Source{PresetID: params.PresetID, CustomText: params.CustomText}); err != nil {
		appErr := NewAppError(KindValidationFailed, "文字セットを解決できませんでした。", "")
		appErr.Details = err.Error()
		return nil, nil, appErr
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, nil, err
	}
	defer func() {
		if err != nil {
			_ = removeDir(ws.dir)
		}
	}()

	requests := make([]*SubsetRequest, 0, len(files))
	originals := make([]string, 0, len(files))
	for i, file := range files {
		stored, storeErr := s.storeMultipartFile(ctx, file, ws.inDir, fmt.Sprintf("input-%02d.font", i+1))
		if storeErr != nil {
			err = storeErr
			return nil, nil, err
		}
		requests = append(requests, &SubsetRequest{
			InputPath:                  stored.path,
			Source:                     charset.Source{PresetID: params.PresetID, CustomText: params.CustomText},
			OutputFormat:               OutputFormat(params.OutputFormat),
			RemoveHinting:              params.RemoveHinting,
			EnableSecondaryCompression: params.SecondaryCompression,
			MaxRetries:                 params.MaxRetries,
			RequesterID:                params.RequesterID,
		})
		originals = append(originals, stored.originalName)
	}

	batchOpts := opts
	if batchOpts.MaxConcurrency <= 0 {
		batchOpts.MaxConcurrency = s.cfg.MaxConcurrency
	}

	report := s.coordinator.Run(ctx, requests, batchOpts, onProgress)

	// 成功ジョブの成果物をZIPへまとめる（元のファイル名で識別できるようにする）
	zipPath := filepath.Join(ws.outDir, batchZipFilename)
	if zipErr := writeBatchZip(zipPath, report, originals); zipErr != nil {
		err = fmt.Errorf("バッチ成果物の書き出しに失敗しました: %w", zipErr)
		return nil, nil, err
	}

	info, statErr := os.Stat(zipPath)
	if statErr != nil {
		err = statErr
		return nil, nil, err
	}

	if writeErr := writeJSON(filepath.Join(ws.dir, resultInfoFilename), resultFileInfo{
		OutputFilename: batchZipFilename,
		ResultKind:     ResultKindZIP,
	}); writeErr != nil {
		err = fmt.Errorf("メタデータの保存に失敗しました: %w", writeErr)
		return nil, nil, err
	}

	s.scheduleCleanup(ws.dir)

	result := &JobResult{
		JobID:          ws.jobID,
		OutputPath:     zipPath,
		OutputFilename: batchZipFilename,
		OutputSize:     info.Size(),
		ResultKind:     ResultKindZIP,
		Meta:           &BatchMeta{Report: report},
		jobDir:         ws.dir,
	}
	return result, report, nil
}

func writeBatchZip(zipPath string, report *BatchReport, originals []string) error {
	file, err := os.OpenFile(zipPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	defer file.Close()

	zw := zip.NewWriter(file)
	for i, job := range report.Jobs {
		if job.Status != JobSucceeded || job.Result == nil {
			continue
		}
		name := "subset.font"
		if i < len(originals) {
			name = subsetFilename(originals[i], job.Result.UsedFormat)
		}
		entry, err := zw.Create(fmt.Sprintf("%02d-%s", i+1, name))
		if err != nil {
			return err
		}
		if _, err := entry.Write(job.Result.Output); err != nil {
			return err
		}
	}
	return zw.Close()
}
