package font

import (
	"fmt"
	"strings"

	"github.com/yourusername/glyph-forge/internal/charset"
)

// OutputFormat は出力フォント形式です。
type OutputFormat string

const (
	FormatTTF   OutputFormat = "ttf"
	FormatOTF   OutputFormat = "otf"
	FormatWOFF  OutputFormat = "woff"
	FormatWOFF2 OutputFormat = "woff2"
)

// NormalizeFormat は形式指定文字列を検証して OutputFormat に変換します。
// 空指定は ttf になります。
func NormalizeFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(FormatTTF):
		return FormatTTF, nil
	case string(FormatOTF):
		return FormatOTF, nil
	case string(FormatWOFF):
		return FormatWOFF, nil
	case string(FormatWOFF2):
		return FormatWOFF2, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
}

// SubsetRequest は1ファイル分のサブセット化リクエストです。
type SubsetRequest struct {
	InputPath                  string         `json:"inputPath"`
	OutputName                 string         `json:"outputName,omitempty"`
	Source                     charset.Source `json:"source"`
	OutputFormat               OutputFormat   `json:"outputFormat"`
	RemoveHinting              bool           `json:"removeHinting"`
	EnableSecondaryCompression bool           `json:"enableSecondaryCompression"`
	MaxRetries                 int            `json:"maxRetries,omitempty"`
	RequesterID                string         `json:"requesterId,omitempty"`
}

// Validate はリクエストの静的な妥当性を検証します。文字セットの解決可否は
// ランナーが実行時に確認します。
func (r *SubsetRequest) Validate() *AppError {
	if r == nil {
		return NewAppError(KindValidationFailed, "リクエストが指定されていません。", "")
	}
	if strings.TrimSpace(r.InputPath) == "" {
		return NewAppError(KindValidationFailed, "入力ファイルのパスを指定してください。", "")
	}
	if r.Source.PresetID == "" && r.Source.CustomText == "" {
		return NewAppError(KindValidationFailed, "プリセットIDまたはカスタムテキストのどちらかを指定してください。", r.InputPath)
	}
	if r.Source.PresetID != "" && r.Source.CustomText != "" {
		return NewAppError(KindValidationFailed, "プリセットIDとカスタムテキストは同時に指定できません。", r.InputPath)
	}
	if _, err := NormalizeFormat(string(r.OutputFormat)); err != nil {
		return NewAppError(KindValidationFailed, "出力形式には ttf / otf / woff / woff2 のいずれかを指定してください。", r.InputPath)
	}
	if r.MaxRetries < 0 {
		return NewAppError(KindValidationFailed, "maxRetries には0以上の値を指定してください。", r.InputPath)
	}
	return nil
}
