package font

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/glyph-forge/internal/cancel"
	"github.com/yourusername/glyph-forge/internal/charset"
)

// requesterHeader はキャンセルのスコープに使うリクエスター識別ヘッダーです。
const requesterHeader = "X-Requester-Id"

// JobRunner はジョブを実行できるサービスが実装します。
type JobRunner interface {
	RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*JobResult, error)
	DiscardJob(jobID string) error
}

// SubsetService はサブセットジョブの準備と実行を提供します。
type SubsetService interface {
	JobRunner
	PrepareSubsetJob(ctx context.Context, file *multipart.FileHeader, params SubsetParams) (*JobManifest, error)
}

// AnalyzeService はフォント解析を提供します。
type AnalyzeService interface {
	AnalyzeMultipart(ctx context.Context, file *multipart.FileHeader) (*FontSummary, error)
}

// BatchService はバッチ処理を提供します。
type BatchService interface {
	SubsetBatchMultipart(ctx context.Context, files []*multipart.FileHeader, params SubsetParams, opts BatchOptions, onProgress BatchProgress) (*JobResult, *BatchReport, error)
}

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, jobID string) error
}

// HandlerOptions は同期/非同期切り替えのための設定です。
type HandlerOptions struct {
	Scheduler           JobScheduler
	AsyncThresholdBytes int64
}

// PresetsHandler は GET /api/fonts/presets のハンドラーを返します。
func PresetsHandler(catalog *charset.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"presets": catalog.List()})
	}
}

// AnalyzeHandler は POST /api/fonts/analyze のハンドラーを返します。
func AnalyzeHandler(svc AnalyzeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, ok := extractFontFile(c)
		if !ok {
			return
		}
		summary, err := svc.AnalyzeMultipart(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

// SubsetHandler は POST /api/fonts/subset のハンドラーを返します。
// 閾値を超えるファイルはキューに投入して 202 を返し、それ以外は同期処理で
// 成果物をそのままストリーミングします。
func SubsetHandler(svc SubsetService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, ok := extractFontFile(c)
		if !ok {
			return
		}

		params, err := parseSubsetParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		manifest, err := svc.PrepareSubsetJob(c.Request.Context(), file, params)
		if err != nil {
			respondWithError(c, err)
			return
		}

		if shouldProcessAsync(manifest, opts) {
			if err := opts.Scheduler.Schedule(c.Request.Context(), manifest.JobID); err != nil {
				if cleanupErr := svc.DiscardJob(manifest.JobID); cleanupErr != nil {
					err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
				}
				respondWithError(c, err)
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"jobId": manifest.JobID})
			return
		}

		result, err := svc.RunJob(c.Request.Context(), manifest.JobID, nil)
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer result.Cleanup()

		if err := streamResult(c, result, "サブセット結果の読み込みに失敗しました"); err != nil {
			respondWithError(c, err)
		}
	}
}

// SubsetBatchHandler は POST /api/fonts/subset/batch のハンドラーを返します。
func SubsetBatchHandler(svc BatchService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "multipart/form-data でフォントファイルを送信してください。",
			})
			return
		}
		defer form.RemoveAll()

		files := form.File["files[]"]
		if len(files) == 0 {
			files = form.File["files"]
		}
		if len(files) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "アップロードされたフォントファイルが見つかりません。",
			})
			return
		}

		params, err := parseSubsetParams(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": err.Error(),
			})
			return
		}

		opts := BatchOptions{
			MaxConcurrency:   parseFormInt(c, "maxConcurrency", 0),
			ContinueOnError:  parseFormBool(c, "continueOnError", true),
			StopOnFatalError: parseFormBool(c, "stopOnFatalError", true),
		}

		result, report, err := svc.SubsetBatchMultipart(c.Request.Context(), files, params, opts, nil)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"jobId":       result.JobID,
			"downloadUrl": fmt.Sprintf("/api/jobs/%s/download", result.JobID),
			"report":      report,
		})
	}
}

// CancelHandler は POST /api/fonts/cancel のハンドラーを返します。
// requesterId 未指定の場合は全体キャンセルになります。
func CancelHandler(registry *cancel.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry.Cancel(requesterIDOf(c))
		c.Status(http.StatusNoContent)
	}
}

// CancelResetHandler は POST /api/fonts/cancel/reset のハンドラーを返します。
func CancelResetHandler(registry *cancel.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		registry.Reset(requesterIDOf(c))
		c.Status(http.StatusNoContent)
	}
}

func requesterIDOf(c *gin.Context) string {
	if id := strings.TrimSpace(c.PostForm("requesterId")); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(requesterHeader))
}

func parseSubsetParams(c *gin.Context) (SubsetParams, error) {
	params := SubsetParams{
		PresetID:             strings.TrimSpace(c.PostForm("preset")),
		CustomText:           c.PostForm("customText"),
		OutputFormat:         strings.TrimSpace(c.PostForm("outputFormat")),
		RemoveHinting:        parseFormBool(c, "removeHinting", false),
		SecondaryCompression: parseFormBool(c, "secondaryCompression", false),
		RequesterID:          requesterIDOf(c),
	}
	if params.PresetID == "" && params.CustomText == "" {
		return params, errors.New("preset または customText のどちらかを指定してください。")
	}
	if params.PresetID != "" && params.CustomText != "" {
		return params, errors.New("preset と customText は同時に指定できません。")
	}
	retries := parseFormInt(c, "maxRetries", 0)
	if retries < 0 {
		return params, errors.New("maxRetries には0以上の整数を指定してください。")
	}
	params.MaxRetries = retries
	return params, nil
}

func parseFormBool(c *gin.Context, key string, defaultValue bool) bool {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseFormInt(c *gin.Context, key string, defaultValue int) int {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

func shouldProcessAsync(manifest *JobManifest, opts HandlerOptions) bool {
	if manifest == nil || opts.Scheduler == nil {
		return false
	}
	return opts.AsyncThresholdBytes > 0 && manifest.File.Size > opts.AsyncThresholdBytes
}

func extractFontFile(c *gin.Context) (*multipart.FileHeader, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_INPUT",
			"message": "multipart/form-data でフォントファイルを送信してください。",
		})
		return nil, false
	}

	for _, key := range []string{"file", "file[]", "files", "files[]"} {
		if files := form.File[key]; len(files) > 0 {
			return files[0], true
		}
	}

	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "INVALID_INPUT",
		"message": "フォントファイルを選択してください。",
	})
	return nil, false
}

// appErrorStatus は分類済みエラーをHTTPステータスへ対応付けます。
func appErrorStatus(appErr *AppError) int {
	switch appErr.Kind {
	case KindFileNotFound:
		return http.StatusNotFound
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindInsufficientSpace:
		return http.StatusInsufficientStorage
	case KindValidationFailed, KindInvalidFormat:
		return http.StatusBadRequest
	case KindTimedOut:
		return http.StatusGatewayTimeout
	case KindCancelled:
		return http.StatusConflict
	case KindCorruptFont:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func respondWithError(c *gin.Context, err error) {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		c.JSON(appErrorStatus(appErr), gin.H{
			"code":    string(appErr.Kind),
			"message": appErr.Message,
			"error":   appErr,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func streamResult(c *gin.Context, result *JobResult, readErrMsg string) error {
	file, err := os.Open(result.OutputPath)
	if err != nil {
		return fmt.Errorf("%s: %w", readErrMsg, err)
	}
	defer file.Close()

	contentType := "application/octet-stream"
	switch result.ResultKind {
	case ResultKindFont:
		contentType = fontContentType(result.OutputFilename)
	case ResultKindZIP:
		contentType = "application/zip"
	}

	encodedName := url.PathEscape(result.OutputFilename)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", result.OutputFilename, encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", result.JobID)
	c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	return nil
}

// ContentTypeFor は成果物ファイル名からContent-Typeを導出します。
func ContentTypeFor(filename string) string {
	return fontContentType(filename)
}

func fontContentType(filename string) string {
	switch {
	case strings.HasSuffix(filename, ".woff2"):
		return "font/woff2"
	case strings.HasSuffix(filename, ".woff"):
		return "font/woff"
	case strings.HasSuffix(filename, ".otf"):
		return "font/otf"
	case strings.HasSuffix(filename, ".ttf"):
		return "font/ttf"
	default:
		return "application/octet-stream"
	}
}
