// Package story はストーリーバッチの調停処理を提供する。
package story

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/feedharbor/internal/model"
	"github.com/hitoshi/feedharbor/internal/repository"
	"github.com/hitoshi/feedharbor/internal/security"
)

// Reconciler は1フィード分の受信ストーリーバッチを既存レコードへ突き合わせる。
// 判定は3通り:
//  1. (feed_id, unique_id) が既存 → content_hash比較。同一なら書き込みなし、
//     差分があればフィールド更新して変更扱い。
//  2. unique_idが別フィード配下に既存 → フィードURL変更による引っ越しとみなし、
//     所属フィードを付け替える（再割り当て）。重複作成はしない。
//  3. どこにも無い → 新規作成して変更扱い。
//
// 同一のcontent_hashでバッチをリプレイした場合、変更ストーリーは0件となり
// 行は一切変化しない（冪等）。
type Reconciler struct {
	sanitizer security.ContentSanitizerService
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
func NewReconciler(sanitizer security.ContentSanitizerService) *Reconciler {
	return &Reconciler{sanitizer: sanitizer}
}

// Reconcile は受信ストーリーバッチをfeedID配下の既存レコードへ突き合わせる。
// storysは呼び出し側のトランザクションに束縛されたリポジトリを渡すこと。
// 戻り値は新規作成または内容が変化したストーリー（フルコンテンツ取得の候補）、
// 再割り当て件数、エラー。
func (r *Reconciler) Reconcile(
	ctx context.Context,
	storys repository.StoryRepository,
	feedID string,
	incoming []model.IncomingStory,
) (modified []*model.Story, numReallocated int, err error) {
	if len(incoming) == 0 {
		return nil, 0, nil
	}

	existing, err := storys.ListByFeed(ctx, feedID)
	if err != nil {
		return nil, 0, fmt.Errorf("既存ストーリーの読み込みに失敗: %w", err)
	}

	byUniqueID := make(map[string]*model.Story, len(existing))
	for _, st := range existing {
		byUniqueID[st.UniqueID] = st
	}

	now := time.Now()

	for _, in := range incoming {
		if in.UniqueID == "" {
			slog.Warn("unique_idが空のストーリーをスキップ",
				slog.String("feed_id", feedID),
				slog.String("title", in.Title),
			)
			continue
		}

		if cur, ok := byUniqueID[in.UniqueID]; ok {
			// 同一ハッシュは書き込みもシグナルも発生させない
			if cur.ContentHash == in.ContentHash {
				continue
			}
			r.applyIncoming(cur, in, now)
			if err := storys.Update(ctx, cur); err != nil {
				return nil, 0, fmt.Errorf("ストーリーの更新に失敗: %w", err)
			}
			modified = append(modified, cur)
			continue
		}

		// 別フィード配下の同一unique_id（ソースURL変更による引っ越し）を探す
		moved, err := storys.FindByUniqueIDExcludingFeed(ctx, in.UniqueID, feedID)
		if err != nil {
			return nil, 0, fmt.Errorf("再割り当て判定に失敗: %w", err)
		}
		if moved != nil {
			if err := storys.Reassign(ctx, moved.ID, feedID); err != nil {
				return nil, 0, fmt.Errorf("ストーリーの再割り当てに失敗: %w", err)
			}
			moved.FeedID = feedID
			numReallocated++

			// 再割り当て後は新鮮なコンテンツとして扱う。内容に差分があれば
			// フィールドを更新し、後続の取得・画像書き換えへ回す。
			if moved.ContentHash != in.ContentHash {
				r.applyIncoming(moved, in, now)
				if err := storys.Update(ctx, moved); err != nil {
					return nil, 0, fmt.Errorf("再割り当てストーリーの更新に失敗: %w", err)
				}
				modified = append(modified, moved)
			}
			byUniqueID[in.UniqueID] = moved
			continue
		}

		st := &model.Story{
			ID:        uuid.New().String(),
			FeedID:    feedID,
			UniqueID:  in.UniqueID,
			CreatedAt: now,
		}
		r.applyIncoming(st, in, now)
		if err := storys.Create(ctx, st); err != nil {
			return nil, 0, fmt.Errorf("ストーリーの作成に失敗: %w", err)
		}
		modified = append(modified, st)
		byUniqueID[in.UniqueID] = st
	}

	return modified, numReallocated, nil
}

// applyIncoming は受信ストーリーのフィールドを既存レコードへ反映する。
// content・summaryはサニタイズしてから保存する。
// タイムスタンプはnilでない場合のみ上書きする。
func (r *Reconciler) applyIncoming(st *model.Story, in model.IncomingStory, now time.Time) {
	st.Title = in.Title
	st.Author = in.Author
	st.Link = in.Link
	st.ContentHash = in.ContentHash
	st.Summary = r.sanitizer.Sanitize(in.Summary)
	st.Content = r.sanitizer.Sanitize(in.Content)
	if in.DtPublished != nil {
		st.DtPublished = in.DtPublished
	}
	if in.DtUpdated != nil {
		st.DtUpdated = in.DtUpdated
	}
	st.UpdatedAt = now
}
