package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feedharbor/internal/model"
)

// PostgresStoryRepo はPostgreSQLを使用したストーリーリポジトリ。
type PostgresStoryRepo struct {
	db DBTX
}

// NewPostgresStoryRepo はPostgresStoryRepoを生成する。
func NewPostgresStoryRepo(db DBTX) *PostgresStoryRepo {
	return &PostgresStoryRepo{db: db}
}

const storyColumns = `id, feed_id, unique_id, title, author, link,
	        dt_published, dt_updated, summary, content, content_hash, created_at, updated_at`

func scanStoryRow(scan func(dest ...interface{}) error) (*model.Story, error) {
	story := &model.Story{}
	var dtPublished, dtUpdated sql.NullTime
	var title, author, link, summary, content, contentHash sql.NullString

	err := scan(
		&story.ID, &story.FeedID, &story.UniqueID, &title, &author, &link,
		&dtPublished, &dtUpdated, &summary, &content, &contentHash,
		&story.CreatedAt, &story.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	story.Title = nullStringValue(title)
	story.Author = nullStringValue(author)
	story.Link = nullStringValue(link)
	story.Summary = nullStringValue(summary)
	story.Content = nullStringValue(content)
	story.ContentHash = nullStringValue(contentHash)
	story.DtPublished = nullTimeValue(dtPublished)
	story.DtUpdated = nullTimeValue(dtUpdated)

	return story, nil
}

// FindByID は指定IDのストーリーを取得する。見つからない場合はnilを返す。
func (r *PostgresStoryRepo) FindByID(ctx context.Context, id string) (*model.Story, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM storys WHERE id = $1`, id,
	)
	story, err := scanStoryRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ストーリーの取得に失敗しました: %w", err)
	}
	return story, nil
}

// ListByFeed はフィード配下の全ストーリーを取得する。
func (r *PostgresStoryRepo) ListByFeed(ctx context.Context, feedID string) ([]*model.Story, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+storyColumns+` FROM storys WHERE feed_id = $1`, feedID,
	)
	if err != nil {
		return nil, fmt.Errorf("ストーリー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var storys []*model.Story
	for rows.Next() {
		story, err := scanStoryRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ストーリー行の読み取りに失敗しました: %w", err)
		}
		storys = append(storys, story)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ストーリー一覧の走査に失敗しました: %w", err)
	}

	return storys, nil
}

// FindByUniqueIDExcludingFeed はunique_idが一致し、指定フィード以外に属する
// ストーリーを検索する。複数候補がある場合は最も古い行を返す。
func (r *PostgresStoryRepo) FindByUniqueIDExcludingFeed(ctx context.Context, uniqueID, feedID string) (*model.Story, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+storyColumns+` FROM storys
		 WHERE unique_id = $1 AND feed_id <> $2
		 ORDER BY created_at ASC
		 LIMIT 1`,
		uniqueID, feedID,
	)
	story, err := scanStoryRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unique_idによるストーリーの横断検索に失敗しました: %w", err)
	}
	return story, nil
}

// Create は新規ストーリーを作成する。
func (r *PostgresStoryRepo) Create(ctx context.Context, story *model.Story) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO storys (id, feed_id, unique_id, title, author, link,
		                     dt_published, dt_updated, summary, content, content_hash,
		                     created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		story.ID, story.FeedID, story.UniqueID, nullString(story.Title),
		nullString(story.Author), nullString(story.Link),
		nullTime(story.DtPublished), nullTime(story.DtUpdated),
		nullString(story.Summary), nullString(story.Content), nullString(story.ContentHash),
		story.CreatedAt, story.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ストーリーの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は既存ストーリーを上書き更新する。履歴は保持しない。
func (r *PostgresStoryRepo) Update(ctx context.Context, story *model.Story) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE storys SET
		    title = $2, author = $3, link = $4, dt_published = $5, dt_updated = $6,
		    summary = $7, content = $8, content_hash = $9, updated_at = $10
		 WHERE id = $1`,
		story.ID, nullString(story.Title), nullString(story.Author), nullString(story.Link),
		nullTime(story.DtPublished), nullTime(story.DtUpdated),
		nullString(story.Summary), nullString(story.Content), nullString(story.ContentHash),
		story.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ストーリーの更新に失敗しました: %w", err)
	}
	return nil
}

// Reassign はストーリーの所属フィードを付け替える。
// (feed_id, unique_id)の一意制約により、移動先に同じ自然キーが既に存在する場合は
// エラーとなり、トランザクション全体が巻き戻る。
func (r *PostgresStoryRepo) Reassign(ctx context.Context, storyID, feedID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE storys SET feed_id = $2, updated_at = now() WHERE id = $1`,
		storyID, feedID,
	)
	if err != nil {
		return fmt.Errorf("ストーリーの所属フィード変更に失敗しました: %w", err)
	}
	return nil
}

// UpdateContent はフルコンテンツ取得の結果でcontent・summary・linkを上書きする。
func (r *PostgresStoryRepo) UpdateContent(ctx context.Context, storyID, content, summary, link string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE storys SET content = $2, summary = $3, link = $4, updated_at = now()
		 WHERE id = $1`,
		storyID, nullString(content), nullString(summary), nullString(link),
	)
	if err != nil {
		return fmt.Errorf("ストーリーコンテンツの更新に失敗しました: %w", err)
	}
	return nil
}

// SetContent は画像書き換え後のcontentのみを上書きする。
func (r *PostgresStoryRepo) SetContent(ctx context.Context, storyID, content string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE storys SET content = $2, updated_at = now() WHERE id = $1`,
		storyID, nullString(content),
	)
	if err != nil {
		return fmt.Errorf("ストーリーコンテンツの書き換えに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ StoryRepository = (*PostgresStoryRepo)(nil)
