// Package harbor はフィード取り込みメッセージの調停を担うサービス層。
//
// 5種類のメッセージハンドラを提供し、それぞれの派生書き込み
// （Feed・UserFeed・FeedUrlMap・Storyの集合）を単一トランザクションで括る。
// 下流タスクの送出はローカルトランザクションのコミット後、成功経路でのみ行う。
package harbor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hitoshi/feedharbor/internal/image"
	"github.com/hitoshi/feedharbor/internal/metrics"
	"github.com/hitoshi/feedharbor/internal/model"
	"github.com/hitoshi/feedharbor/internal/repository"
	"github.com/hitoshi/feedharbor/internal/security"
	"github.com/hitoshi/feedharbor/internal/story"
	"github.com/hitoshi/feedharbor/internal/tasks"
)

// Options はServiceの構成パラメータ。
type Options struct {
	// RefererDenyStatus は画像書き換え対象と判定するフェッチステータスの集合。
	RefererDenyStatus []int
	// FetchEmitRate はfetch_storyタスク送出のレート（件/秒）。0以下なら既定値50。
	FetchEmitRate float64
	// FetchEmitBurst は送出レートのバースト許容量。0以下なら既定値10。
	FetchEmitBurst int
}

// Service はFeedIngestionCoordinatorの実装。
type Service struct {
	store       repository.Store
	reconciler  *story.Reconciler
	rewriter    *image.Rewriter
	sanitizer   security.ContentSanitizerService
	urlGuard    security.URLGuardService
	publisher   tasks.Publisher
	collector   metrics.MetricsCollector
	limiter     *rate.Limiter
	refererDeny map[int]struct{}
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	store repository.Store,
	reconciler *story.Reconciler,
	rewriter *image.Rewriter,
	sanitizer security.ContentSanitizerService,
	urlGuard security.URLGuardService,
	publisher tasks.Publisher,
	collector metrics.MetricsCollector,
	opts Options,
) *Service {
	emitRate := opts.FetchEmitRate
	if emitRate <= 0 {
		emitRate = 50
	}
	burst := opts.FetchEmitBurst
	if burst <= 0 {
		burst = 10
	}

	deny := make(map[int]struct{}, len(opts.RefererDenyStatus))
	for _, s := range opts.RefererDenyStatus {
		deny[s] = struct{}{}
	}

	return &Service{
		store:       store,
		reconciler:  reconciler,
		rewriter:    rewriter,
		sanitizer:   sanitizer,
		urlGuard:    urlGuard,
		publisher:   publisher,
		collector:   collector,
		limiter:     rate.NewLimiter(rate.Limit(emitRate), burst),
		refererDeny: deny,
	}
}

// UpdateFeedCreationStatus はFeedCreationをUPDATINGへ強制遷移する。
// 他の副作用は持たない。
func (s *Service) UpdateFeedCreationStatus(ctx context.Context, p tasks.CreationStatusPayload) error {
	if p.FeedCreationID == "" {
		return model.NewInvalidPayloadError("feed_creation_idが空です")
	}

	return s.store.RunInTx(ctx, func(r *repository.Repos) error {
		fc, err := r.Creations.FindByID(ctx, p.FeedCreationID)
		if err != nil {
			return err
		}
		if fc == nil {
			return model.NewCreationNotFoundError(p.FeedCreationID)
		}

		fc.Status = model.FeedStatusUpdating
		fc.DtUpdated = time.Now()
		return r.Creations.Update(ctx, fc)
	})
}

// SaveFeedCreationResult はFeedCreationの終端遷移を処理する。
// フィードペイロードが無い場合はERRORとしてNOT_FOUNDエイリアスを記録する。
// ある場合はREADYとし、正規フィードの解決・UserFeedリンク・エイリアス記録を行い、
// コミット後にfeed_updateメッセージを送出する。
func (s *Service) SaveFeedCreationResult(ctx context.Context, p tasks.CreationResultPayload) error {
	if p.FeedCreationID == "" {
		return model.NewInvalidPayloadError("feed_creation_idが空です")
	}
	if p.Feed != nil && p.Feed.URL == "" {
		return model.NewInvalidPayloadError("feed.urlが空です")
	}

	var emit *tasks.FeedUpdatePayload

	err := s.store.RunInTx(ctx, func(r *repository.Repos) error {
		fc, err := r.Creations.FindByID(ctx, p.FeedCreationID)
		if err != nil {
			return err
		}
		if fc == nil {
			return model.NewCreationNotFoundError(p.FeedCreationID)
		}

		now := time.Now()
		fc.Message = strings.Join(p.Messages, "\n\n")
		fc.DtUpdated = now

		if p.Feed == nil {
			fc.Status = model.FeedStatusError
			if err := r.Creations.Update(ctx, fc); err != nil {
				return err
			}
			// 同じURLでの再探索を短絡させるため、不達を記録する
			return r.URLMap.Add(ctx, fc.URL, model.FeedURLNotFound)
		}

		fc.Status = model.FeedStatusReady
		if err := r.Creations.Update(ctx, fc); err != nil {
			return err
		}

		feed, err := s.resolveFeedByURL(ctx, r, p.Feed.URL, now)
		if err != nil {
			return err
		}

		created, err := r.UserFeeds.Link(ctx, &model.UserFeed{
			ID:             uuid.New().String(),
			UserID:         fc.UserID,
			FeedID:         feed.ID,
			IsFromBookmark: fc.IsFromBookmark,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}
		if !created {
			slog.Info("UserFeedは既に存在します",
				slog.String("user_id", fc.UserID),
				slog.String("feed_id", feed.ID),
			)
		}

		if err := r.URLMap.Add(ctx, fc.URL, feed.URL); err != nil {
			return err
		}
		if feed.URL != fc.URL {
			if err := r.URLMap.Add(ctx, feed.URL, feed.URL); err != nil {
				return err
			}
		}

		emit = &tasks.FeedUpdatePayload{FeedID: feed.ID, Feed: *p.Feed}
		return nil
	})
	if err != nil {
		return wrapConflict(err)
	}

	if emit != nil {
		s.enqueueFeedUpdate(*emit)
	}
	return nil
}

// resolveFeedByURL は正規URLのフィードを解決する。存在しなければ作成する。
// 作成はON CONFLICT DO NOTHINGで行い、並行作成に負けた場合は勝者の行を取り直す。
func (s *Service) resolveFeedByURL(ctx context.Context, r *repository.Repos, url string, now time.Time) (*model.Feed, error) {
	feed, err := r.Feeds.FindByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if feed != nil {
		return feed, nil
	}

	feed = &model.Feed{
		ID:        uuid.New().String(),
		URL:       url,
		Status:    model.FeedStatusReady,
		DtUpdated: &now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Feeds.CreateIfAbsent(ctx, feed); err != nil {
		return nil, err
	}

	feed, err = r.Feeds.FindByURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if feed == nil {
		return nil, fmt.Errorf("フィードの作成直後の取得に失敗しました: %s", url)
	}
	return feed, nil
}

// UpdateFeed はフィードの可変属性を更新し、ストーリーバッチを調停する。
// 変更されたストーリーごとに、コミット後にfetch_storyタスクを送出する。
func (s *Service) UpdateFeed(ctx context.Context, p tasks.FeedUpdatePayload) error {
	if p.FeedID == "" {
		return model.NewInvalidPayloadError("feed_idが空です")
	}

	var modified []*model.Story

	err := s.store.RunInTx(ctx, func(r *repository.Repos) error {
		feed, err := r.Feeds.FindByID(ctx, p.FeedID)
		if err != nil {
			return err
		}
		if feed == nil {
			return model.NewFeedNotFoundError(p.FeedID)
		}

		mergeFeedFields(feed, &p.Feed)
		feed.UpdatedAt = time.Now()
		if err := r.Feeds.Update(ctx, feed); err != nil {
			return err
		}

		incoming := toIncomingStorys(p.Feed.Storys)
		var numReallocated int
		modified, numReallocated, err = s.reconciler.Reconcile(ctx, r.Storys, feed.ID, incoming)
		if err != nil {
			return err
		}

		slog.Info("ストーリーバッチを調停しました",
			slog.String("feed_id", feed.ID),
			slog.Int("total", len(incoming)),
			slog.Int("num_modified", len(modified)),
			slog.Int("num_reallocated", numReallocated),
		)
		s.collector.RecordStorysModified(len(modified))
		s.collector.RecordStorysReallocated(numReallocated)
		return nil
	})
	if err != nil {
		return wrapConflict(err)
	}

	// コミット後にのみ下流の取得タスクを送出する
	for _, st := range modified {
		s.enqueueFetchStory(ctx, st)
	}
	return nil
}

// UpdateStory はフルコンテンツ取得の結果でストーリーを上書きする。
// 調停は行わず、最後の書き込みが有効となる。
func (s *Service) UpdateStory(ctx context.Context, p tasks.StoryUpdatePayload) error {
	if p.StoryID == "" {
		return model.NewInvalidPayloadError("story_idが空です")
	}

	content := s.sanitizer.Sanitize(p.Content)
	summary := s.sanitizer.Sanitize(p.Summary)

	return s.store.RunInTx(ctx, func(r *repository.Repos) error {
		st, err := r.Storys.FindByID(ctx, p.StoryID)
		if err != nil {
			return err
		}
		if st == nil {
			return model.NewStoryNotFoundError(p.StoryID)
		}
		return r.Storys.UpdateContent(ctx, st.ID, content, summary, p.URL)
	})
}

// UpdateStoryImages は参照元拒否と判定された画像の参照をプロキシ配下へ書き換える。
// 置換マップに無い参照はバイト単位で不変に保たれる。
func (s *Service) UpdateStoryImages(ctx context.Context, p tasks.StoryImagesPayload) error {
	if p.StoryID == "" {
		return model.NewInvalidPayloadError("story_idが空です")
	}

	replaces := make(map[string]string)
	for _, img := range p.Images {
		if _, deny := s.refererDeny[img.Status]; deny {
			replaces[img.URL] = s.rewriter.ProxyPath(img.URL, p.StoryURL)
		}
	}

	slog.Info("参照元拒否の画像を検出しました",
		slog.String("story_id", p.StoryID),
		slog.String("story_url", p.StoryURL),
		slog.Int("num_images", len(p.Images)),
		slog.Int("num_deny", len(replaces)),
	)

	return s.store.RunInTx(ctx, func(r *repository.Repos) error {
		st, err := r.Storys.FindByID(ctx, p.StoryID)
		if err != nil {
			return err
		}
		if st == nil {
			return model.NewStoryNotFoundError(p.StoryID)
		}

		refs := s.rewriter.Parse(st.Content)
		content := s.rewriter.Process(st.Content, refs, replaces)
		if content == st.Content {
			return nil
		}

		s.collector.RecordImagesRewritten(len(replaces))
		return r.Storys.SetContent(ctx, st.ID, content)
	})
}

// enqueueFeedUpdate はfeed_updateタスクを送出する。
// 既にコミット済みのため、送出失敗は致命的ではなくログに留める。
// 滞留したFeedCreationは回収ジョブが拾い直す。
func (s *Service) enqueueFeedUpdate(p tasks.FeedUpdatePayload) {
	task, err := tasks.NewFeedUpdateTask(p)
	if err != nil {
		slog.Error("feed_updateタスクの生成に失敗しました",
			slog.String("feed_id", p.FeedID),
			slog.String("error", err.Error()),
		)
		return
	}
	if _, err := s.publisher.Enqueue(task); err != nil {
		slog.Error("feed_updateタスクの送出に失敗しました",
			slog.String("feed_id", p.FeedID),
			slog.String("error", err.Error()),
		)
	}
}

// enqueueFetchStory は下流のストーリー取得タスクを送出する。
// リンクが空または危険なURLのストーリーはスキップする。
// 送出はレートリミッタで平滑化し、下流フェッチャーの輻輳を避ける。
func (s *Service) enqueueFetchStory(ctx context.Context, st *model.Story) {
	if st.Link == "" {
		return
	}
	if err := s.urlGuard.ValidateURL(st.Link); err != nil {
		slog.Warn("危険なURLのため取得タスクをスキップします",
			slog.String("story_id", st.ID),
			slog.String("link", st.Link),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		slog.Warn("取得タスク送出の待機が中断されました",
			slog.String("story_id", st.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	task, err := tasks.NewFetchStoryTask(st.ID, st.Link)
	if err != nil {
		slog.Error("fetch_storyタスクの生成に失敗しました",
			slog.String("story_id", st.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if _, err := s.publisher.Enqueue(task); err != nil {
		slog.Error("fetch_storyタスクの送出に失敗しました",
			slog.String("story_id", st.ID),
			slog.String("error", err.Error()),
		)
	}
}

// wrapConflict は一意制約違反をリトライ可能エラーへ変換する。
// 調停処理はリプレイに対して冪等なため、再配送で安全に解消できる。
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	if repository.IsUniqueViolation(err) {
		return model.NewDuplicateKeyError(err.Error())
	}
	return err
}
