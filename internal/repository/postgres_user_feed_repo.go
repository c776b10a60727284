package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/feedharbor/internal/model"
)

// PostgresUserFeedRepo はPostgreSQLを使用したユーザー・フィードリンクリポジトリ。
type PostgresUserFeedRepo struct {
	db DBTX
}

// NewPostgresUserFeedRepo はPostgresUserFeedRepoを生成する。
func NewPostgresUserFeedRepo(db DBTX) *PostgresUserFeedRepo {
	return &PostgresUserFeedRepo{db: db}
}

// Link はリンクを冪等に作成する。
// check-then-insertの競合を避けるため、(user_id, feed_id)の一意制約を前提とした
// ON CONFLICT DO NOTHINGで実装する。既存リンクがある場合はfalseを返す。
func (r *PostgresUserFeedRepo) Link(ctx context.Context, uf *model.UserFeed) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO user_feeds (id, user_id, feed_id, is_from_bookmark, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, feed_id) DO NOTHING`,
		uf.ID, uf.UserID, uf.FeedID, uf.IsFromBookmark, uf.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("ユーザーとフィードのリンク作成に失敗しました: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("リンク作成件数の取得に失敗しました: %w", err)
	}
	return affected > 0, nil
}

// compile-time interface check
var _ UserFeedRepository = (*PostgresUserFeedRepo)(nil)
