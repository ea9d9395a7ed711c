// Package font はフォントのサブセット化を統括するオーケストレーション層です。
// フォントバイナリの解釈は外部コラボレーター（pyftsubset等）に委ね、本層は
// フェーズ進行・同時実行・キャンセル・エラー分類・進捗通知のみを担います。
package font

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/yourusername/glyph-forge/internal/cancel"
	"github.com/yourusername/glyph-forge/internal/charset"
	"github.com/yourusername/glyph-forge/internal/config"
)

const defaultCleanupMin = 10

// Service はサブセット処理のジョブ準備・実行・成果物管理を提供します。
type Service struct {
	cfg         *config.Config
	catalog     *charset.Catalog
	registry    *cancel.Registry
	runner      *Runner
	coordinator *Coordinator
	analyzer    Analyzer
	now         func() time.Time
}

// NewService は Service を初期化します。
func NewService(cfg *config.Config, catalog *charset.Catalog, registry *cancel.Registry, transformer Transformer, analyzer Analyzer) *Service {
	timeout := time.Duration(cfg.SubsetTimeoutSeconds) * time.Second
	runner := NewRunner(catalog, registry, transformer, timeout)
	return &Service{
		cfg:         cfg,
		catalog:     catalog,
		registry:    registry,
		runner:      runner,
		coordinator: NewCoordinator(runner),
		analyzer:    analyzer,
		now:         time.Now,
	}
}

// Catalog は文字セットカタログを返します。
func (s *Service) Catalog() *charset.Catalog { return s.catalog }

// Registry はキャンセルレジストリを返します。
func (s *Service) Registry() *cancel.Registry { return s.registry }

type workspace struct {
	jobID  string
	dir    string
	inDir  string
	outDir string
}

func (s *Service) workspaceFor(jobID string) workspace {
	dir := filepath.Join(s.cfg.WorkDir, jobID)
	return workspace{
		jobID:  jobID,
		dir:    dir,
		inDir:  filepath.Join(dir, "in"),
		outDir: filepath.Join(dir, "out"),
	}
}

func (s *Service) createWorkspace() (workspace, error) {
	ws := s.workspaceFor(uuid.NewString())
	for _, dir := range []string{ws.inDir, ws.outDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return workspace{}, fmt.Errorf("ワークスペースの作成に失敗しました: %w", err)
		}
	}
	return ws, nil
}

type storedFile struct {
	path         string
	originalName string
	size         int64
	format       string
}

// storeMultipartFile はアップロードされたフォントを検証してワークスペースへ
// 保存します。
func (s *Service) storeMultipartFile(ctx context.Context, file *multipart.FileHeader, destDir, destName string) (storedFile, error) {
	if err := ctx.Err(); err != nil {
		return storedFile{}, err
	}
	if s.cfg.MaxFileSize > 0 && file.Size > s.cfg.MaxFileSize {
		return storedFile{}, NewAppError(KindValidationFailed,
			fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", s.cfg.MaxFileSize), file.Filename)
	}

	src, err := file.Open()
	if err != nil {
		return storedFile{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return storedFile{}, err
	}

	if !IsFontFile(file.Filename, data) {
		return storedFile{}, NewAppError(KindInvalidFormat,
			"対応していないファイル形式です。TTF/OTF/WOFF/WOFF2のフォントを指定してください。", file.Filename)
	}

	if destName == "" {
		destName = "input.font"
	}
	destPath := filepath.Join(destDir, destName)
	if err := os.WriteFile(destPath, data, 0o640); err != nil {
		return storedFile{}, err
	}

	return storedFile{
		path:         destPath,
		originalName: file.Filename,
		size:         file.Size,
		format:       DetectFormatBytes(data),
	}, nil
}

func (s *Service) scheduleCleanup(dir string) {
	expireMinutes := s.cfg.JobExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = defaultCleanupMin
	}
	time.AfterFunc(time.Duration(expireMinutes)*time.Minute, func() {
		_ = removeDir(dir)
	})
}

// DiscardJob はジョブのワークスペースを破棄します。
func (s *Service) DiscardJob(jobID string) error {
	if jobID == "" {
		return fmt.Errorf("jobID is required")
	}
	return removeDir(s.workspaceFor(jobID).dir)
}

func removeDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.RemoveAll(dir)
}
