package font

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// fontMIMEFormats は検出されたMIMEタイプから表示用の形式名への対応です。
var fontMIMEFormats = map[string]string{
	"font/ttf":   "ttf",
	"font/otf":   "otf",
	"font/woff":  "woff",
	"font/woff2": "woff2",
	"font/sfnt":  "ttf",
}

// ExecAnalyzer は設定されたコマンドにフォントのメタデータ抽出を委譲する
// Analyzer 実装です。コマンドは引数にファイルパスを1つ受け取り、標準出力に
// FontSummary 形のJSONを出力する想定です（例: fontToolsの薄いラッパー）。
// コマンド未設定時はファイル情報とMIME判定のみのサマリーを返します。
type ExecAnalyzer struct {
	// Path はアナライザーコマンドのパスです。空の場合は委譲しません。
	Path string
}

// NewExecAnalyzer は ExecAnalyzer を作成します。
func NewExecAnalyzer(path string) *ExecAnalyzer {
	return &ExecAnalyzer{Path: path}
}

// Analyze はフォントファイルのメタデータを返します。委譲先の結果は形を
// 変えずに素通しし、欠けている基本情報のみローカルで補完します。
func (a *ExecAnalyzer) Analyze(ctx context.Context, path string) (*FontSummary, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	summary := &FontSummary{}
	if a.Path != "" {
		cmd := exec.CommandContext(ctx, a.Path, path)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("フォント解析コマンドの実行に失敗しました: %s: %w", stderr.String(), err)
		}
		if err := json.Unmarshal(stdout.Bytes(), summary); err != nil {
			return nil, fmt.Errorf("invalid font analyzer output: %w", err)
		}
	}

	if summary.FileName == "" {
		summary.FileName = filepath.Base(path)
	}
	if summary.FileSize == 0 {
		summary.FileSize = info.Size()
	}
	if summary.Format == "" {
		summary.Format = DetectFormat(path)
	}
	return summary, nil
}

// DetectFormat はファイル内容からフォント形式名を判定します。判定できない
// 場合は空文字を返します。
func DetectFormat(path string) string {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	for mime, format := range fontMIMEFormats {
		if mtype.Is(mime) {
			return format
		}
	}
	return ""
}

// DetectFormatBytes はバイト列からフォント形式名を判定します。
func DetectFormatBytes(data []byte) string {
	mtype := mimetype.Detect(data)
	for mime, format := range fontMIMEFormats {
		if mtype.Is(mime) {
			return format
		}
	}
	return ""
}

// IsFontFile はアップロードされたデータがフォントとして扱えるかを返します。
// 拡張子は偽装できるため内容のMIME判定を優先します。
func IsFontFile(name string, data []byte) bool {
	if DetectFormatBytes(data) != "" {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ttf", ".otf", ".woff", ".woff2", ".ttc":
		return true
	}
	return false
}
