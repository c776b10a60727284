package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresFeedUrlMapRepo はPostgreSQLを使用したURLエイリアスリポジトリ。
type PostgresFeedUrlMapRepo struct {
	db DBTX
}

// NewPostgresFeedUrlMapRepo はPostgresFeedUrlMapRepoを生成する。
func NewPostgresFeedUrlMapRepo(db DBTX) *PostgresFeedUrlMapRepo {
	return &PostgresFeedUrlMapRepo{db: db}
}

// Add はエイリアスを追記する。同一sourceの重複は許容され、最新の行が有効となる。
func (r *PostgresFeedUrlMapRepo) Add(ctx context.Context, source, target string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feed_url_map (id, source, target, created_at)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), source, target, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("URLエイリアスの追記に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FeedUrlMapRepository = (*PostgresFeedUrlMapRepo)(nil)
