package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/glyph-forge/internal/auth"
	"github.com/yourusername/glyph-forge/internal/config"
	"github.com/yourusername/glyph-forge/internal/font"
	"github.com/yourusername/glyph-forge/internal/jobs"
)

type subsetJobScheduler struct {
	manager *jobs.Manager
}

func (s *subsetJobScheduler) Schedule(ctx context.Context, jobID string) error {
	_, err := s.manager.Enqueue(ctx, &jobs.TaskPayload{JobID: jobID})
	return err
}

func setupJobs(cfg *config.Config, fontService *font.Service) (*jobs.Manager, error) {
	opt, err := redis.ParseURL(cfg.QueueRedisURL)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opt)
	ttlMinutes := cfg.JobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 10
	}
	store := jobs.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)
	return jobs.NewManager(cfg, fontService, store, log.Default())
}

// setupRoutes は API グループと認証周りの配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, fontService *font.Service, jobManager *jobs.Manager) {
	router.GET("/health", handleHealth)

	authManager := auth.NewManager(cfg)
	handlerOpts := font.HandlerOptions{
		Scheduler:           &subsetJobScheduler{manager: jobManager},
		AsyncThresholdBytes: cfg.AsyncThresholdBytes,
	}

	api := router.Group("/api")
	{
		authRoutes := api.Group("/auth")
		{
			// ログイン時はセッション未生成なので CSRF 検証は不要
			authRoutes.POST("/login", authManager.Login)
			authRoutes.POST("/logout",
				authManager.RequireLogin(),
				authManager.VerifyCSRF(),
				authManager.Logout,
			)
		}

		protected := api.Group("")
		protected.Use(authManager.RequireLogin(), authManager.VerifyCSRF())
		{
			fonts := protected.Group("/fonts")
			{
				fonts.GET("/presets", font.PresetsHandler(fontService.Catalog()))
				fonts.POST("/analyze", font.AnalyzeHandler(fontService))
				fonts.POST("/subset", font.SubsetHandler(fontService, handlerOpts))
				fonts.POST("/subset/batch", font.SubsetBatchHandler(fontService))
				fonts.POST("/cancel", font.CancelHandler(fontService.Registry()))
				fonts.POST("/cancel/reset", font.CancelResetHandler(fontService.Registry()))
			}

			jobRoutes := protected.Group("/jobs")
			{
				jobRoutes.GET("/:id", jobStatusHandler(jobManager))
				jobRoutes.GET("/:id/download", jobDownloadHandler(fontService))
			}
		}
	}
}

func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record, err := manager.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":  record.JobID,
			"status": record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"phase":   record.Progress.Phase,
				"message": record.Progress.Message,
			},
			"updatedAt": record.UpdatedAt,
		}
		if record.DownloadURL != "" {
			payload["downloadUrl"] = record.DownloadURL
		}
		if record.Meta != nil {
			payload["meta"] = record.Meta
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

func jobDownloadHandler(fontService *font.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		result, file, err := fontService.OpenResultFile(jobID)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_RESULT_NOT_FOUND",
					"message": "ジョブの成果物が見つかりませんでした。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブの成果物取得に失敗しました。",
			})
			return
		}
		defer file.Close()

		contentType := "application/octet-stream"
		switch result.ResultKind {
		case font.ResultKindZIP:
			contentType = "application/zip"
		case font.ResultKindFont:
			contentType = font.ContentTypeFor(result.OutputFilename)
		}

		encodedName := url.PathEscape(result.OutputFilename)
		c.Header("Content-Type", contentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", result.OutputFilename, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", result.JobID)
		c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	}
}
