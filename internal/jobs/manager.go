// Package jobs は非同期サブセットジョブの投入と状態管理を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/yourusername/glyph-forge/internal/config"
	"github.com/yourusername/glyph-forge/internal/font"
)

const (
	taskTypeSubset = "font:subset"
	queueName      = "font"
)

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	cfg         *config.Config
	client      *asynq.Client
	server      *asynq.Server
	mux         *asynq.ServeMux
	store       *Store
	fontService *font.Service
	logger      *log.Logger
}

// TaskPayload はサブセットジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, fontService *font.Service, store *Store, logger *log.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if fontService == nil {
		return nil, errors.New("fontService is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.MaxConcurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:         cfg,
		client:      client,
		server:      server,
		mux:         mux,
		store:       store,
		fontService: fontService,
		logger:      logger,
	}
	mux.HandleFunc(taskTypeSubset, manager.handleSubsetTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			if m.logger != nil {
				m.logger.Printf("asynq server stopped with error: %v", err)
			} else {
				log.Printf("asynq server stopped with error: %v", err)
			}
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// Enqueue はジョブをキューに投入します。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("payload.JobID is required")
	}

	record := &Record{
		JobID:  payload.JobID,
		Status: StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Phase:   string(font.PhaseIdle),
		},
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeSubset, body, asynq.Queue(queueName))
	info, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1))
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleSubsetTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload")
	}

	if err := m.store.Upsert(ctx, &Record{
		JobID:  payload.JobID,
		Status: StatusRunning,
		Progress: ProgressInfo{
			Percent: 0,
			Phase:   string(font.PhaseIdle),
		},
	}); err != nil {
		return err
	}

	result, err := m.fontService.RunJob(ctx, payload.JobID, func(state font.ProgressState) {
		_ = m.store.UpdateProgress(ctx, payload.JobID, ProgressInfo{
			Percent: state.Progress,
			Phase:   string(state.Phase),
			Message: state.Message,
		})
	})
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	return m.finishJob(ctx, payload.JobID, result)
}

func (m *Manager) finishJob(ctx context.Context, jobID string, result *font.JobResult) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	return m.store.MarkDone(ctx, jobID, m.buildDownloadURL(result), result.Meta)
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	return m.store.MarkFailed(ctx, jobID, font.Classify(err, ""))
}

func (m *Manager) buildDownloadURL(result *font.JobResult) string {
	base := m.cfg.JobResultBaseURL
	if base == "" {
		return fmt.Sprintf("/api/jobs/%s/download", result.JobID)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), result.JobID, url.PathEscape(result.OutputFilename))
}
