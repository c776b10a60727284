package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/feedharbor/internal/model"
)

// PostgresFeedCreationRepo はPostgreSQLを使用したフィード作成リクエストリポジトリ。
type PostgresFeedCreationRepo struct {
	db DBTX
}

// NewPostgresFeedCreationRepo はPostgresFeedCreationRepoを生成する。
func NewPostgresFeedCreationRepo(db DBTX) *PostgresFeedCreationRepo {
	return &PostgresFeedCreationRepo{db: db}
}

// FindByID は指定IDのフィード作成リクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedCreationRepo) FindByID(ctx context.Context, id string) (*model.FeedCreation, error) {
	fc := &model.FeedCreation{}
	var message sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, url, status, message, is_from_bookmark, dt_updated, created_at
		 FROM feed_creations WHERE id = $1`,
		id,
	).Scan(
		&fc.ID, &fc.UserID, &fc.URL, &fc.Status, &message,
		&fc.IsFromBookmark, &fc.DtUpdated, &fc.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィード作成リクエストの取得に失敗しました: %w", err)
	}

	fc.Message = nullStringValue(message)
	return fc, nil
}

// Update はstatus・message・dt_updatedを更新する。
func (r *PostgresFeedCreationRepo) Update(ctx context.Context, fc *model.FeedCreation) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_creations SET status = $2, message = $3, dt_updated = $4
		 WHERE id = $1`,
		fc.ID, fc.Status, nullString(fc.Message), fc.DtUpdated,
	)
	if err != nil {
		return fmt.Errorf("フィード作成リクエストの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteTerminalOlderThan は終端状態のままdt_updatedが保持期間を超えた行を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (r *PostgresFeedCreationRepo) DeleteTerminalOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM feed_creations
		 WHERE status IN ($1, $2) AND dt_updated < now() - $3::interval`,
		model.FeedStatusReady, model.FeedStatusError, intervalSeconds(retention),
	)
	if err != nil {
		return 0, fmt.Errorf("終端状態のフィード作成リクエストの削除に失敗しました: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return deleted, nil
}

// ResetStuck は指定statusのままdt_updatedが時間窓を超えた行を一括でpendingへ戻す。
// status+時間述語で保護されているため、並行sweepが同じ行を二重に戻すことはない。
func (r *PostgresFeedCreationRepo) ResetStuck(ctx context.Context, status model.FeedStatus, window time.Duration) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE feed_creations SET status = $1, dt_updated = now()
		 WHERE status = $2 AND dt_updated < now() - $3::interval`,
		model.FeedStatusPending, status, intervalSeconds(window),
	)
	if err != nil {
		return 0, fmt.Errorf("滞留フィード作成リクエストのリセットに失敗しました: %w", err)
	}
	reset, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("リセット件数の取得に失敗しました: %w", err)
	}
	return reset, nil
}

// compile-time interface check
var _ FeedCreationRepository = (*PostgresFeedCreationRepo)(nil)
