package font

import "sync"

// ResultKind は生成される成果物の種別です。
type ResultKind string

const (
	ResultKindFont ResultKind = "font"
	ResultKindZIP  ResultKind = "zip"
)

// JobResult は1ジョブの成果物を表します。
type JobResult struct {
	JobID          string     `json:"jobId"`
	OutputPath     string     `json:"outputPath"`
	OutputFilename string     `json:"outputFilename"`
	OutputSize     int64      `json:"outputSize"`
	ResultKind     ResultKind `json:"resultKind"`
	Meta           any        `json:"meta,omitempty"`

	jobDir      string
	cleanupOnce sync.Once
	cleanupErr  error
}

// Cleanup は作業ディレクトリを削除します。
func (r *JobResult) Cleanup() error {
	if r == nil {
		return nil
	}
	r.cleanupOnce.Do(func() {
		r.cleanupErr = removeDir(r.jobDir)
	})
	return r.cleanupErr
}

// SourceFileMeta は入力ファイルの表示用メタデータです。
type SourceFileMeta struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Format string `json:"format,omitempty"`
}

// SubsetMeta はサブセット処理のメタデータです。
type SubsetMeta struct {
	OriginalSize    int64          `json:"originalSize"`
	OutputSize      int64          `json:"outputSize"`
	SavedBytes      int64          `json:"savedBytes"`
	SavedPercent    float64        `json:"savedPercent"`
	CharacterCount  int            `json:"characterCount"`
	RequestedFormat OutputFormat   `json:"requestedFormat"`
	UsedFormat      OutputFormat   `json:"usedFormat"`
	Warning         string         `json:"warning,omitempty"`
	Source          SourceFileMeta `json:"source"`
}

// BatchMeta はバッチ処理のメタデータです。
type BatchMeta struct {
	Report *BatchReport `json:"report"`
}

func computeSavedPercent(before, after int64) float64 {
	if before == 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}
