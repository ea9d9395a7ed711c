package font

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
)

// OpenResultFile はジョブIDに対応する成果物ファイルを開き、JobResult 情報と
// ファイルハンドルを返します。
func (s *Service) OpenResultFile(jobID string) (*JobResult, *os.File, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, nil, fmt.Errorf("jobID is required")
	}

	ws := s.workspaceFor(jobID)
	data, err := os.ReadFile(filepath.Join(ws.dir, resultInfoFilename))
	if err != nil {
		return nil, nil, err
	}
	var info resultFileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, nil, fmt.Errorf("failed to parse result info: %w", err)
	}

	outputPath := filepath.Join(ws.outDir, info.OutputFilename)
	file, err := os.Open(outputPath)
	if err != nil {
		return nil, nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	result := &JobResult{
		JobID:          jobID,
		OutputPath:     outputPath,
		OutputFilename: info.OutputFilename,
		OutputSize:     stat.Size(),
		ResultKind:     info.ResultKind,
		jobDir:         ws.dir,
	}

	return result, file, nil
}

// AnalyzeMultipart はアップロードされたフォントのメタデータを返します。
// 抽出の実体はアナライザーコラボレーターに委譲し、結果の形は変えません。
func (s *Service) AnalyzeMultipart(ctx context.Context, file *multipart.FileHeader) (*FontSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, NewAppError(KindValidationFailed, "フォントファイルを選択してください。", "")
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = removeDir(ws.dir)
	}()

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, "")
	if err != nil {
		return nil, err
	}

	summary, err := s.analyzer.Analyze(ctx, stored.path)
	if err != nil {
		return nil, Classify(err, file.Filename)
	}
	// 一時ファイル名ではなく元のファイル名で返す
	summary.FileName = stored.originalName
	return summary, nil
}
