package font

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ExecTransformer は fontTools の pyftsubset コマンドを外部コラボレーター
// として呼び出す Transformer 実装です。バイト列を一時ファイル経由で受け渡し、
// フォント内部の解釈はすべてコマンド側に委ねます。
type ExecTransformer struct {
	// Path は pyftsubset 実行ファイルのパスです。
	Path string
}

// NewExecTransformer は ExecTransformer を作成します。path が空の場合は
// PATH 上の pyftsubset を使用します。
func NewExecTransformer(path string) *ExecTransformer {
	if path == "" {
		path = "pyftsubset"
	}
	return &ExecTransformer{Path: path}
}

// Transform は指定の文字セットでサブセット化したフォントを返します。
func (t *ExecTransformer) Transform(ctx context.Context, data []byte, characterSet string, opts TransformOptions) ([]byte, error) {
	format, err := NormalizeFormat(string(opts.TargetFormat))
	if err != nil {
		return nil, err
	}

	args := []string{}
	switch format {
	case FormatWOFF:
		args = append(args, "--flavor=woff")
	case FormatWOFF2:
		args = append(args, "--flavor=woff2")
	}
	if !opts.PreserveHinting {
		args = append(args, "--no-hinting")
	}
	if opts.Desubroutinize {
		args = append(args, "--desubroutinize")
	}

	return t.run(ctx, data, characterSet, string(format), args)
}

// TransformToCompressed はWOFF2コンテナへ圧縮したフォントを返します。
func (t *ExecTransformer) TransformToCompressed(ctx context.Context, data []byte, characterSet string) ([]byte, error) {
	return t.run(ctx, data, characterSet, string(FormatWOFF2), []string{"--flavor=woff2"})
}

func (t *ExecTransformer) run(ctx context.Context, data []byte, characterSet string, ext string, extraArgs []string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	workDir, err := os.MkdirTemp("", "glyph-forge-subset-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.font")
	outputPath := filepath.Join(workDir, "output."+ext)
	textPath := filepath.Join(workDir, "chars.txt")

	if err := os.WriteFile(inputPath, data, 0o640); err != nil {
		return nil, err
	}
	if err := os.WriteFile(textPath, []byte(characterSet), 0o640); err != nil {
		return nil, err
	}

	args := append([]string{
		inputPath,
		"--text-file=" + textPath,
		"--output-file=" + outputPath,
	}, extraArgs...)

	cmd := exec.CommandContext(ctx, t.Path, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("pyftsubsetの実行に失敗しました: %s: %w", stderr.String(), err)
	}

	output, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("subset output could not be read: %w", err)
	}
	return output, nil
}
