package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Repos はトランザクション単位で束ねられたリポジトリの集合。
// RunInTxのコールバック内でのみ有効となる。
type Repos struct {
	Feeds     FeedRepository
	Creations FeedCreationRepository
	UserFeeds UserFeedRepository
	Storys    StoryRepository
	URLMap    FeedUrlMapRepository
}

// NewRepos は指定された実行コンテキスト（*sql.DB または *sql.Tx）の上に
// 全リポジトリを構築する。
func NewRepos(db DBTX) *Repos {
	return &Repos{
		Feeds:     NewPostgresFeedRepo(db),
		Creations: NewPostgresFeedCreationRepo(db),
		UserFeeds: NewPostgresUserFeedRepo(db),
		Storys:    NewPostgresStoryRepo(db),
		URLMap:    NewPostgresFeedUrlMapRepo(db),
	}
}

// Store はメッセージ1件分の書き込みを単一トランザクションで括る。
// コールバックがエラーを返した場合は全ての書き込みをロールバックする。
type Store interface {
	RunInTx(ctx context.Context, fn func(r *Repos) error) error
}

// SQLStore はdatabase/sqlトランザクションによるStoreの実装。
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore はSQLStoreを生成する。
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// RunInTx はトランザクションを開始し、tx束縛のリポジトリ集合をコールバックに渡す。
// コールバック成功時のみコミットし、失敗時は全てロールバックする。
func (s *SQLStore) RunInTx(ctx context.Context, fn func(r *Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}

	if err := fn(NewRepos(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return fmt.Errorf("ロールバックに失敗しました: %v (原因: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*SQLStore)(nil)
