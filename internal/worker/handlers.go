// Package worker はasynqタスクとharborサービスを接続するアダプタを提供する。
// ペイロードの復元、エラー分類、メッセージ単位のメトリクス記録を担う。
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hitoshi/feedharbor/internal/harbor"
	"github.com/hitoshi/feedharbor/internal/metrics"
	"github.com/hitoshi/feedharbor/internal/model"
	"github.com/hitoshi/feedharbor/internal/tasks"
	"github.com/hitoshi/feedharbor/internal/worker/sweep"
)

// TaskHandler はharborサービスへのasynqアダプタ。
type TaskHandler struct {
	service   *harbor.Service
	sweeper   *sweep.Sweeper
	collector metrics.MetricsCollector
}

// NewTaskHandler は新しいTaskHandlerを生成する。
func NewTaskHandler(service *harbor.Service, sweeper *sweep.Sweeper, collector metrics.MetricsCollector) *TaskHandler {
	return &TaskHandler{
		service:   service,
		sweeper:   sweeper,
		collector: collector,
	}
}

// Mux は全タスク種別を登録したServeMuxを構築する。
func (h *TaskHandler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeCreationStatus, h.HandleCreationStatus)
	mux.HandleFunc(tasks.TypeCreationResult, h.HandleCreationResult)
	mux.HandleFunc(tasks.TypeFeedUpdate, h.HandleFeedUpdate)
	mux.HandleFunc(tasks.TypeStoryUpdate, h.HandleStoryUpdate)
	mux.HandleFunc(tasks.TypeStoryImages, h.HandleStoryImages)
	mux.HandleFunc(tasks.TypeCreationSweep, h.HandleCreationSweep)
	return mux
}

// HandleCreationStatus はharbor:creation_statusタスクを処理する。
func (h *TaskHandler) HandleCreationStatus(ctx context.Context, t *asynq.Task) error {
	var p tasks.CreationStatusPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return h.finish(t, time.Now(), model.NewInvalidPayloadError(err.Error()))
	}
	start := time.Now()
	return h.finish(t, start, h.service.UpdateFeedCreationStatus(ctx, p))
}

// HandleCreationResult はharbor:creation_resultタスクを処理する。
func (h *TaskHandler) HandleCreationResult(ctx context.Context, t *asynq.Task) error {
	var p tasks.CreationResultPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return h.finish(t, time.Now(), model.NewInvalidPayloadError(err.Error()))
	}
	start := time.Now()
	return h.finish(t, start, h.service.SaveFeedCreationResult(ctx, p))
}

// HandleFeedUpdate はharbor:feed_updateタスクを処理する。
func (h *TaskHandler) HandleFeedUpdate(ctx context.Context, t *asynq.Task) error {
	var p tasks.FeedUpdatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return h.finish(t, time.Now(), model.NewInvalidPayloadError(err.Error()))
	}
	start := time.Now()
	return h.finish(t, start, h.service.UpdateFeed(ctx, p))
}

// HandleStoryUpdate はharbor:story_updateタスクを処理する。
func (h *TaskHandler) HandleStoryUpdate(ctx context.Context, t *asynq.Task) error {
	var p tasks.StoryUpdatePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return h.finish(t, time.Now(), model.NewInvalidPayloadError(err.Error()))
	}
	start := time.Now()
	return h.finish(t, start, h.service.UpdateStory(ctx, p))
}

// HandleStoryImages はharbor:story_imagesタスクを処理する。
func (h *TaskHandler) HandleStoryImages(ctx context.Context, t *asynq.Task) error {
	var p tasks.StoryImagesPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return h.finish(t, time.Now(), model.NewInvalidPayloadError(err.Error()))
	}
	start := time.Now()
	return h.finish(t, start, h.service.UpdateStoryImages(ctx, p))
}

// HandleCreationSweep はharbor:creation_sweepタスクを処理する。
func (h *TaskHandler) HandleCreationSweep(ctx context.Context, t *asynq.Task) error {
	start := time.Now()
	return h.finish(t, start, h.sweeper.Run(ctx))
}

// finish はメトリクスを記録し、エラーをリトライ方針つきで返す。
func (h *TaskHandler) finish(t *asynq.Task, start time.Time, err error) error {
	result := "ok"
	if err != nil {
		result = "error"
	}
	h.collector.RecordMessage(t.Type(), result)
	h.collector.RecordMessageLatency(t.Type(), time.Since(start))

	if err != nil {
		slog.Error("タスクの処理に失敗しました",
			slog.String("task_type", t.Type()),
			slog.String("error", err.Error()),
		)
	}
	return classify(err)
}

// classify はエラーをasynqのリトライ方針へ変換する。
// リトライ不能なメッセージエラー（不正ペイロードや対象レコード無し）は
// SkipRetryでラップし、再配送の無限ループを防ぐ。
// 一時的なエラー（DB障害や一意制約の競合）はそのまま返し、再配送に委ねる。
func classify(err error) error {
	if err == nil {
		return nil
	}

	var msgErr *model.MessageError
	if errors.As(err, &msgErr) && !msgErr.Retryable {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}
	return err
}
