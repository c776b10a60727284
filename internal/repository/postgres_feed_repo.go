package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feedharbor/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db DBTX
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db DBTX) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

const feedColumns = `id, url, title, link, author, icon, description, version,
	        encoding, etag, last_modified, status, dt_updated, created_at, updated_at`

func scanFeed(row *sql.Row) (*model.Feed, error) {
	feed := &model.Feed{}
	var dtUpdated sql.NullTime
	var title, link, author, icon, description, version sql.NullString
	var encoding, etag, lastModified sql.NullString

	err := row.Scan(
		&feed.ID, &feed.URL, &title, &link, &author, &icon, &description, &version,
		&encoding, &etag, &lastModified, &feed.Status, &dtUpdated,
		&feed.CreatedAt, &feed.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	feed.Title = nullStringValue(title)
	feed.Link = nullStringValue(link)
	feed.Author = nullStringValue(author)
	feed.Icon = nullStringValue(icon)
	feed.Description = nullStringValue(description)
	feed.Version = nullStringValue(version)
	feed.Encoding = nullStringValue(encoding)
	feed.ETag = nullStringValue(etag)
	feed.LastModified = nullStringValue(lastModified)
	feed.DtUpdated = nullTimeValue(dtUpdated)

	return feed, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// FindByURL は正規URLでフィードを検索する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByURL(ctx context.Context, url string) (*model.Feed, error) {
	feed, err := scanFeed(r.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE url = $1`, url,
	))
	if err != nil {
		return nil, fmt.Errorf("URLによるフィードの検索に失敗しました: %w", err)
	}
	return feed, nil
}

// CreateIfAbsent はフィードを作成する。同一URLの行が既に存在する場合は何もしない。
// check-then-insertの競合を避けるため、一意制約を前提としたupsertで実装する。
func (r *PostgresFeedRepo) CreateIfAbsent(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO feeds (id, url, title, link, author, icon, description, version,
		                    encoding, etag, last_modified, status, dt_updated, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 ON CONFLICT (url) DO NOTHING`,
		feed.ID, feed.URL, nullString(feed.Title), nullString(feed.Link),
		nullString(feed.Author), nullString(feed.Icon), nullString(feed.Description),
		nullString(feed.Version), nullString(feed.Encoding), nullString(feed.ETag),
		nullString(feed.LastModified), feed.Status, nullTime(feed.DtUpdated),
		feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はフィードの可変属性を更新する。
func (r *PostgresFeedRepo) Update(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET
		    title = $2, link = $3, author = $4, icon = $5, description = $6,
		    version = $7, encoding = $8, etag = $9, last_modified = $10,
		    status = $11, dt_updated = $12, updated_at = $13
		 WHERE id = $1`,
		feed.ID, nullString(feed.Title), nullString(feed.Link), nullString(feed.Author),
		nullString(feed.Icon), nullString(feed.Description), nullString(feed.Version),
		nullString(feed.Encoding), nullString(feed.ETag), nullString(feed.LastModified),
		feed.Status, nullTime(feed.DtUpdated), feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
