package font

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"time"
)

// ErrorKind はアプリケーションエラーの分類です（閉集合）。
type ErrorKind string

const (
	KindFileNotFound      ErrorKind = "FileNotFound"
	KindInvalidFormat     ErrorKind = "InvalidFormat"
	KindCorruptFont       ErrorKind = "CorruptFont"
	KindInsufficientSpace ErrorKind = "InsufficientSpace"
	KindPermissionDenied  ErrorKind = "PermissionDenied"
	KindSubsetFailed      ErrorKind = "SubsetFailed"
	KindCompressionFailed ErrorKind = "CompressionFailed"
	KindValidationFailed  ErrorKind = "ValidationFailed"
	KindCancelled         ErrorKind = "Cancelled"
	KindTimedOut          ErrorKind = "TimedOut"
	KindNetworkError      ErrorKind = "NetworkError"
	KindUnknownError      ErrorKind = "UnknownError"
)

// kindRecoverable は種別ごとの固定のリカバリ可否です。CorruptFont と
// NetworkError 以外はリトライで回復しうるものとして扱います。
var kindRecoverable = map[ErrorKind]bool{
	KindFileNotFound:      true,
	KindInvalidFormat:     true,
	KindCorruptFont:       false,
	KindInsufficientSpace: true,
	KindPermissionDenied:  true,
	KindSubsetFailed:      true,
	KindCompressionFailed: true,
	KindValidationFailed:  true,
	KindCancelled:         true,
	KindTimedOut:          true,
	KindNetworkError:      false,
	KindUnknownError:      true,
}

// kindSuggestion は種別ごとの表示用の対処案内です。
var kindSuggestion = map[ErrorKind]string{
	KindFileNotFound:      "ファイルのパスを確認して、もう一度お試しください。",
	KindInvalidFormat:     "対応形式（TTF/OTF/WOFF/WOFF2）のフォントファイルを指定してください。",
	KindCorruptFont:       "フォントファイルが破損している可能性があります。別のファイルをお試しください。",
	KindInsufficientSpace: "ディスクの空き容量を確保してから、もう一度お試しください。",
	KindPermissionDenied:  "ファイルへのアクセス権限を確認してください。",
	KindSubsetFailed:      "文字セットを変更して、もう一度お試しください。",
	KindCompressionFailed: "圧縮なしの形式で、もう一度お試しください。",
	KindValidationFailed:  "入力内容を確認して、もう一度お試しください。",
	KindCancelled:         "処理はキャンセルされました。必要であれば再実行してください。",
	KindTimedOut:          "時間をおいて、もう一度お試しください。",
	KindNetworkError:      "ネットワーク接続を確認してください。",
	KindUnknownError:      "もう一度お試しいただくか、アプリを再起動してください。",
}

// AppError は分類済みのアプリケーションエラーです。発生時点で生成され、
// 以後変更されません。オーケストレーション層の境界を例外として越えることは
// なく、常に結果オブジェクトのデータとして呼び出し側へ渡ります。
type AppError struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message"`
	Details     string    `json:"details,omitempty"`
	Recoverable bool      `json:"recoverable"`
	FilePath    string    `json:"filePath,omitempty"`
	Suggestion  string    `json:"suggestion,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Error は error インターフェースを満たします。
func (e *AppError) Error() string {
	if e.Details != "" {
		return string(e.Kind) + ": " + e.Message + " (" + e.Details + ")"
	}
	return string(e.Kind) + ": " + e.Message
}

// NewAppError は種別に応じたリカバリ可否と対処案内を備えたエラーを作成します。
func NewAppError(kind ErrorKind, message, filePath string) *AppError {
	return &AppError{
		Kind:        kind,
		Message:     message,
		Recoverable: kindRecoverable[kind],
		FilePath:    filePath,
		Suggestion:  kindSuggestion[kind],
		Timestamp:   time.Now().UTC(),
	}
}

// Classify は任意の失敗値を閉じたエラー分類へ決定的に写像します。
// 分類済みの *AppError はそのまま返します（冪等）。
func Classify(err error, filePath string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, context.Canceled) {
		return NewAppError(KindCancelled, "処理がキャンセルされました。", filePath)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ae := NewAppError(KindTimedOut, "処理が時間内に完了しませんでした。", filePath)
		ae.Details = err.Error()
		return ae
	}

	msg := err.Error()

	switch {
	case errors.Is(err, fs.ErrNotExist) || strings.Contains(msg, "ENOENT"):
		ae := NewAppError(KindFileNotFound, "ファイルが見つかりません。", filePath)
		ae.Details = msg
		return ae
	case errors.Is(err, fs.ErrPermission) || strings.Contains(msg, "EACCES") || strings.Contains(msg, "EPERM"):
		ae := NewAppError(KindPermissionDenied, "ファイルへのアクセスが拒否されました。", filePath)
		ae.Details = msg
		return ae
	case strings.Contains(msg, "ENOSPC"):
		ae := NewAppError(KindInsufficientSpace, "ディスクの空き容量が不足しています。", filePath)
		ae.Details = msg
		return ae
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid font") || strings.Contains(lower, "corrupt") || strings.Contains(lower, "not a font"):
		ae := NewAppError(KindCorruptFont, "フォントファイルを読み取れませんでした。", filePath)
		ae.Details = msg
		return ae
	case strings.Contains(lower, "subset") || strings.Contains(lower, "glyph"):
		ae := NewAppError(KindSubsetFailed, "サブセット化に失敗しました。", filePath)
		ae.Details = msg
		return ae
	case strings.Contains(lower, "compression") || strings.Contains(lower, "woff2") || strings.Contains(lower, "brotli"):
		ae := NewAppError(KindCompressionFailed, "Web フォントへの圧縮に失敗しました。", filePath)
		ae.Details = msg
		return ae
	case strings.Contains(lower, "network") || strings.Contains(lower, "connection refused"):
		ae := NewAppError(KindNetworkError, "ネットワークエラーが発生しました。", filePath)
		ae.Details = msg
		return ae
	}

	ae := NewAppError(KindUnknownError, "予期しないエラーが発生しました。", filePath)
	ae.Details = msg
	return ae
}
