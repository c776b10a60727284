// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/feedharbor/internal/model"
)

// DBTX は*sql.DBと*sql.Txの両方を受け付けるクエリ実行インターフェース。
// メッセージハンドラはトランザクションに束縛されたリポジトリを使用し、
// 回収ジョブはDB直結のリポジトリを使用する。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// FeedRepository はフィードデータの永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)

	// FindByURL は正規URLでフィードを検索する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.Feed, error)

	// CreateIfAbsent はフィードを作成する。同一URLの行が既に存在する場合は
	// 何もしない（ON CONFLICT DO NOTHING）。呼び出し側はFindByURLで勝者の行を
	// 取り直すこと。
	CreateIfAbsent(ctx context.Context, feed *model.Feed) error

	// Update はフィードの可変属性を更新する。
	Update(ctx context.Context, feed *model.Feed) error
}

// FeedCreationRepository はフィード作成リクエストの永続化インターフェース。
type FeedCreationRepository interface {
	// FindByID は指定IDのフィード作成リクエストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.FeedCreation, error)

	// Update はstatus・message・dt_updatedを更新する。
	Update(ctx context.Context, fc *model.FeedCreation) error

	// DeleteTerminalOlderThan は終端状態（ready/error）のままdt_updatedが
	// 保持期間を超えた行を削除し、削除件数を返す。
	DeleteTerminalOlderThan(ctx context.Context, retention time.Duration) (int64, error)

	// ResetStuck は指定statusのままdt_updatedが時間窓を超えた行を一括で
	// pendingへ戻し、件数を返す。status+時間述語で保護されているため、
	// 並行して実行しても同じ行を二重に処理することはない。
	ResetStuck(ctx context.Context, status model.FeedStatus, window time.Duration) (int64, error)
}

// UserFeedRepository はユーザーとフィードのリンクの永続化インターフェース。
type UserFeedRepository interface {
	// Link はリンクを冪等に作成する。(user_id, feed_id) の一意制約により
	// 既存リンクがある場合は何もせずfalseを返す。
	Link(ctx context.Context, uf *model.UserFeed) (created bool, err error)
}

// StoryRepository はストーリーデータの永続化インターフェース。
type StoryRepository interface {
	// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Story, error)

	// ListByFeed はフィード配下の全ストーリーを取得する。
	ListByFeed(ctx context.Context, feedID string) ([]*model.Story, error)

	// FindByUniqueIDExcludingFeed はunique_idが一致し、かつ指定フィード以外に
	// 属するストーリーを検索する。フィードURL変更に伴う再割り当ての判定に使用する。
	// 見つからない場合はnilを返す。
	FindByUniqueIDExcludingFeed(ctx context.Context, uniqueID, feedID string) (*model.Story, error)

	// Create は新規ストーリーを作成する。
	Create(ctx context.Context, story *model.Story) error

	// Update は既存ストーリーを上書き更新する。履歴は保持しない。
	Update(ctx context.Context, story *model.Story) error

	// Reassign はストーリーの所属フィードを付け替える。
	Reassign(ctx context.Context, storyID, feedID string) error

	// UpdateContent はフルコンテンツ取得の結果でcontent・summary・linkを上書きする。
	UpdateContent(ctx context.Context, storyID, content, summary, link string) error

	// SetContent は画像書き換え後のcontentのみを上書きする。
	SetContent(ctx context.Context, storyID, content string) error
}

// FeedUrlMapRepository はURLエイリアスの永続化インターフェース。
type FeedUrlMapRepository interface {
	// Add はエイリアスを追記する。同一sourceの重複は許容され、最後の書き込みが有効となる。
	Add(ctx context.Context, source, target string) error
}
