package harbor

// テスト用のインメモリ実装群。
// PostgreSQLを使わず、トランザクション境界と副作用の有無を検証するための
// フェイクをこのファイルにまとめる。

import (
	"context"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/hitoshi/feedharbor/internal/image"
	"github.com/hitoshi/feedharbor/internal/model"
	"github.com/hitoshi/feedharbor/internal/repository"
	"github.com/hitoshi/feedharbor/internal/security"
	"github.com/hitoshi/feedharbor/internal/story"
)

// --- インメモリリポジトリ ---

type memFeedRepo struct {
	feeds map[string]*model.Feed // ID -> Feed
}

func newMemFeedRepo() *memFeedRepo {
	return &memFeedRepo{feeds: make(map[string]*model.Feed)}
}

func (r *memFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	f, ok := r.feeds[id]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (r *memFeedRepo) FindByURL(ctx context.Context, url string) (*model.Feed, error) {
	for _, f := range r.feeds {
		if f.URL == url {
			cp := *f
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memFeedRepo) CreateIfAbsent(ctx context.Context, feed *model.Feed) error {
	for _, f := range r.feeds {
		if f.URL == feed.URL {
			return nil
		}
	}
	cp := *feed
	r.feeds[feed.ID] = &cp
	return nil
}

func (r *memFeedRepo) Update(ctx context.Context, feed *model.Feed) error {
	cp := *feed
	r.feeds[feed.ID] = &cp
	return nil
}

type memCreationRepo struct {
	creations map[string]*model.FeedCreation
}

func newMemCreationRepo() *memCreationRepo {
	return &memCreationRepo{creations: make(map[string]*model.FeedCreation)}
}

func (r *memCreationRepo) FindByID(ctx context.Context, id string) (*model.FeedCreation, error) {
	fc, ok := r.creations[id]
	if !ok {
		return nil, nil
	}
	cp := *fc
	return &cp, nil
}

func (r *memCreationRepo) Update(ctx context.Context, fc *model.FeedCreation) error {
	cp := *fc
	r.creations[fc.ID] = &cp
	return nil
}

func (r *memCreationRepo) DeleteTerminalOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	var n int64
	cutoff := time.Now().Add(-retention)
	for id, fc := range r.creations {
		if fc.Status.IsTerminal() && fc.DtUpdated.Before(cutoff) {
			delete(r.creations, id)
			n++
		}
	}
	return n, nil
}

func (r *memCreationRepo) ResetStuck(ctx context.Context, status model.FeedStatus, window time.Duration) (int64, error) {
	var n int64
	cutoff := time.Now().Add(-window)
	for _, fc := range r.creations {
		if fc.Status == status && fc.DtUpdated.Before(cutoff) {
			fc.Status = model.FeedStatusPending
			fc.DtUpdated = time.Now()
			n++
		}
	}
	return n, nil
}

type memUserFeedRepo struct {
	links []*model.UserFeed
}

func (r *memUserFeedRepo) Link(ctx context.Context, uf *model.UserFeed) (bool, error) {
	for _, l := range r.links {
		if l.UserID == uf.UserID && l.FeedID == uf.FeedID {
			return false, nil
		}
	}
	cp := *uf
	r.links = append(r.links, &cp)
	return true, nil
}

type memStoryRepo struct {
	storys map[string]*model.Story
}

func newMemStoryRepo() *memStoryRepo {
	return &memStoryRepo{storys: make(map[string]*model.Story)}
}

func (r *memStoryRepo) FindByID(ctx context.Context, id string) (*model.Story, error) {
	st, ok := r.storys[id]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (r *memStoryRepo) ListByFeed(ctx context.Context, feedID string) ([]*model.Story, error) {
	var out []*model.Story
	for _, st := range r.storys {
		if st.FeedID == feedID {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memStoryRepo) FindByUniqueIDExcludingFeed(ctx context.Context, uniqueID, feedID string) (*model.Story, error) {
	for _, st := range r.storys {
		if st.UniqueID == uniqueID && st.FeedID != feedID {
			cp := *st
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memStoryRepo) Create(ctx context.Context, st *model.Story) error {
	cp := *st
	r.storys[st.ID] = &cp
	return nil
}

func (r *memStoryRepo) Update(ctx context.Context, st *model.Story) error {
	cp := *st
	r.storys[st.ID] = &cp
	return nil
}

func (r *memStoryRepo) Reassign(ctx context.Context, storyID, feedID string) error {
	if st, ok := r.storys[storyID]; ok {
		st.FeedID = feedID
	}
	return nil
}

func (r *memStoryRepo) UpdateContent(ctx context.Context, storyID, content, summary, link string) error {
	if st, ok := r.storys[storyID]; ok {
		st.Content = content
		st.Summary = summary
		st.Link = link
	}
	return nil
}

func (r *memStoryRepo) SetContent(ctx context.Context, storyID, content string) error {
	if st, ok := r.storys[storyID]; ok {
		st.Content = content
	}
	return nil
}

type memURLMapEntry struct {
	Source string
	Target string
}

type memURLMapRepo struct {
	entries []memURLMapEntry
}

func (r *memURLMapRepo) Add(ctx context.Context, source, target string) error {
	r.entries = append(r.entries, memURLMapEntry{Source: source, Target: target})
	return nil
}

// lastTarget は同一sourceの最後の書き込みを返す。無ければ空文字列。
func (r *memURLMapRepo) lastTarget(source string) string {
	target := ""
	for _, e := range r.entries {
		if e.Source == source {
			target = e.Target
		}
	}
	return target
}

// --- フェイクStore ---

// fakeStore はトランザクションを模倣せず、同一のリポジトリ集合を
// コールバックへ渡す。コールバックがエラーを返した場合のロールバックは
// 検証対象外（SQLStoreの責務）とする。
type fakeStore struct {
	repos *repository.Repos
	// txErr が設定されている場合、コールバックを実行せずにエラーを返す
	txErr error
}

func (s *fakeStore) RunInTx(ctx context.Context, fn func(r *repository.Repos) error) error {
	if s.txErr != nil {
		return s.txErr
	}
	return fn(s.repos)
}

// --- モックPublisher ---

type mockPublisher struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (p *mockPublisher) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.tasks = append(p.tasks, task)
	return &asynq.TaskInfo{ID: "test-task", Type: task.Type()}, nil
}

func (p *mockPublisher) tasksOfType(taskType string) []*asynq.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*asynq.Task
	for _, t := range p.tasks {
		if t.Type() == taskType {
			out = append(out, t)
		}
	}
	return out
}

// --- スパイCollector ---

type spyCollector struct {
	messages        int
	storysModified  int
	reallocated     int
	imagesRewritten int
	deleted         int64
	retried         int64
}

func (c *spyCollector) RecordMessage(taskType, result string)                 { c.messages++ }
func (c *spyCollector) RecordMessageLatency(taskType string, d time.Duration) {}
func (c *spyCollector) RecordStorysModified(count int)                        { c.storysModified += count }
func (c *spyCollector) RecordStorysReallocated(count int)                     { c.reallocated += count }
func (c *spyCollector) RecordImagesRewritten(count int)                       { c.imagesRewritten += count }
func (c *spyCollector) RecordCreationsDeleted(count int64)                    { c.deleted += count }
func (c *spyCollector) RecordCreationsRetried(count int64)                    { c.retried += count }

// --- テストフィクスチャ ---

type fixture struct {
	service   *Service
	feeds     *memFeedRepo
	creations *memCreationRepo
	userFeeds *memUserFeedRepo
	storys    *memStoryRepo
	urlMap    *memURLMapRepo
	publisher *mockPublisher
	collector *spyCollector
}

func newFixture() *fixture {
	feeds := newMemFeedRepo()
	creations := newMemCreationRepo()
	userFeeds := &memUserFeedRepo{}
	storys := newMemStoryRepo()
	urlMap := &memURLMapRepo{}

	store := &fakeStore{repos: &repository.Repos{
		Feeds:     feeds,
		Creations: creations,
		UserFeeds: userFeeds,
		Storys:    storys,
		URLMap:    urlMap,
	}}

	sanitizer := security.NewContentSanitizer()
	publisher := &mockPublisher{}
	collector := &spyCollector{}

	service := NewService(
		store,
		story.NewReconciler(sanitizer),
		image.NewRewriter("/api/v1/image/"),
		sanitizer,
		security.NewURLGuard(),
		publisher,
		collector,
		Options{
			RefererDenyStatus: []int{400, 401, 403, 404, -402, -403},
			FetchEmitRate:     1000,
			FetchEmitBurst:    1000,
		},
	)

	return &fixture{
		service:   service,
		feeds:     feeds,
		creations: creations,
		userFeeds: userFeeds,
		storys:    storys,
		urlMap:    urlMap,
		publisher: publisher,
		collector: collector,
	}
}
