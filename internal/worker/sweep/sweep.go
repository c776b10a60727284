// Package sweep はFeedCreationの定期回収ジョブを提供する。
// 終端状態のまま保持期間を超えた行の削除と、処理中のまま滞留した行の
// PENDINGへの巻き戻しを1サイクルで行う。
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedharbor/internal/metrics"
	"github.com/hitoshi/feedharbor/internal/model"
	"github.com/hitoshi/feedharbor/internal/repository"
)

// Sweeper はFeedCreationの回収ジョブ。
// 定期実行のバッチとして設計されており、各ステップは冪等となる。
// 全てのステップがstatus+時間述語で保護されているため、複数インスタンスが
// 同時に実行しても同じ行を二重に処理することはない。
type Sweeper struct {
	creations repository.FeedCreationRepository
	logger    *slog.Logger
	collector metrics.MetricsCollector

	// Retention は終端状態（ready/error）の行を保持する期間。デフォルト2時間。
	Retention time.Duration
	// StuckUpdating はUPDATINGのまま滞留とみなすまでの時間窓。デフォルト10分。
	StuckUpdating time.Duration
	// StuckPending はPENDINGのまま滞留とみなすまでの時間窓。デフォルト30分。
	StuckPending time.Duration
}

// NewSweeper は新しいSweeperを生成する。
func NewSweeper(creations repository.FeedCreationRepository, logger *slog.Logger, collector metrics.MetricsCollector) *Sweeper {
	return &Sweeper{
		creations:     creations,
		logger:        logger,
		collector:     collector,
		Retention:     2 * time.Hour,
		StuckUpdating: 10 * time.Minute,
		StuckPending:  30 * time.Minute,
	}
}

// Run は回収サイクルを1回実行する。
// 完了済みの古い行を削除し、滞留した行をPENDINGへ戻す。
// 巻き戻された行は、上流のディスパッチャが次回のポーリングで拾い直す。
func (s *Sweeper) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := s.creations.DeleteTerminalOlderThan(ctx, s.Retention)
	if err != nil {
		s.logger.Error("完了済みFeedCreationの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("完了済みFeedCreationの削除に失敗: %w", err)
	}

	retriedUpdating, err := s.creations.ResetStuck(ctx, model.FeedStatusUpdating, s.StuckUpdating)
	if err != nil {
		s.logger.Error("滞留したUPDATING行の巻き戻しに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("滞留したUPDATING行の巻き戻しに失敗: %w", err)
	}

	retriedPending, err := s.creations.ResetStuck(ctx, model.FeedStatusPending, s.StuckPending)
	if err != nil {
		s.logger.Error("滞留したPENDING行の巻き戻しに失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("滞留したPENDING行の巻き戻しに失敗: %w", err)
	}

	s.collector.RecordCreationsDeleted(deleted)
	s.collector.RecordCreationsRetried(retriedUpdating + retriedPending)

	s.logger.Info("FeedCreationの回収サイクルが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int64("retried_updating", retriedUpdating),
		slog.Int64("retried_pending", retriedPending),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
