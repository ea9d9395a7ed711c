package font

import "context"

// TransformOptions はサブセット変換のオプションです。
type TransformOptions struct {
	TargetFormat    OutputFormat
	PreserveHinting bool
	Desubroutinize  bool
}

// Transformer はフォントバイト列の変換を担う外部コラボレーターの境界です。
// フォントのテーブル構造やグリフ削除の実体はこの背後に隠蔽され、本体側では
// 一切モデル化しません。失敗値は任意で、呼び出し側が Classify に通します。
type Transformer interface {
	// Transform は実効文字セットに基づくサブセット化を行います。
	Transform(ctx context.Context, data []byte, characterSet string, opts TransformOptions) ([]byte, error)
	// TransformToCompressed はWOFF2コンテナへの二次圧縮を行います。
	TransformToCompressed(ctx context.Context, data []byte, characterSet string) ([]byte, error)
}

// FontSummary はアナライザーが返すメタデータです。オーケストレーション層は
// この形のまま呼び出し側へ素通しします。
type FontSummary struct {
	FileName        string   `json:"fileName"`
	FileSize        int64    `json:"fileSize"`
	Format          string   `json:"format"`
	FontFamily      string   `json:"fontFamily,omitempty"`
	GlyphCount      int      `json:"glyphCount,omitempty"`
	CharacterRanges []string `json:"characterRanges,omitempty"`
}

// Analyzer はフォントのメタデータ抽出を担う外部コラボレーターの境界です。
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*FontSummary, error)
}
