// Package tasks はasynqタスクの種別定義とワイヤペイロード、コンストラクタを提供する。
// ペイロードのJSONフィールド名は上流フェッチャーとのワイヤ契約であり変更しないこと。
package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// タスク種別。harbor:* はこのサービスが消費し、fetcher:* は下流へ送出する。
const (
	TypeCreationStatus = "harbor:creation_status"
	TypeCreationResult = "harbor:creation_result"
	TypeFeedUpdate     = "harbor:feed_update"
	TypeStoryUpdate    = "harbor:story_update"
	TypeStoryImages    = "harbor:story_images"
	TypeCreationSweep  = "harbor:creation_sweep"
	TypeFetchStory     = "fetcher:fetch_story"
)

// Publisher はタスク送出のインターフェース。
// *asynq.Clientが実装しており、テストではモックに差し替えられる。
type Publisher interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// StoryPayload はワイヤ上のストーリー1件を表す。
type StoryPayload struct {
	UniqueID          string     `json:"unique_id"`
	Title             string     `json:"title"`
	ContentHashBase64 string     `json:"content_hash_base64"`
	Author            string     `json:"author,omitempty"`
	Link              string     `json:"link,omitempty"`
	DtPublished       *time.Time `json:"dt_published,omitempty"`
	DtUpdated         *time.Time `json:"dt_updated,omitempty"`
	Summary           string     `json:"summary,omitempty"`
	Content           string     `json:"content,omitempty"`
}

// FeedPayload はワイヤ上のフィード1件（ストーリーバッチ込み）を表す。
type FeedPayload struct {
	URL               string         `json:"url"`
	Title             string         `json:"title"`
	ContentHashBase64 string         `json:"content_hash_base64"`
	Link              string         `json:"link,omitempty"`
	Author            string         `json:"author,omitempty"`
	Icon              string         `json:"icon,omitempty"`
	Description       string         `json:"description,omitempty"`
	Version           string         `json:"version,omitempty"`
	DtUpdated         *time.Time     `json:"dt_updated,omitempty"`
	Encoding          string         `json:"encoding,omitempty"`
	ETag              string         `json:"etag,omitempty"`
	LastModified      string         `json:"last_modified,omitempty"`
	Storys            []StoryPayload `json:"storys"`
}

// CreationStatusPayload はFeedCreationの状態強制遷移メッセージ。
type CreationStatusPayload struct {
	FeedCreationID string `json:"feed_creation_id"`
	Status         string `json:"status"`
}

// CreationResultPayload はFeedCreationの終端遷移メッセージ。
// Feedがnilの場合は探索失敗を意味する。
type CreationResultPayload struct {
	FeedCreationID string       `json:"feed_creation_id"`
	Messages       []string     `json:"messages"`
	Feed           *FeedPayload `json:"feed,omitempty"`
}

// FeedUpdatePayload はフィード更新メッセージ。
type FeedUpdatePayload struct {
	FeedID string      `json:"feed_id"`
	Feed   FeedPayload `json:"feed"`
}

// StoryUpdatePayload はフルコンテンツ取得結果のメッセージ。
type StoryUpdatePayload struct {
	StoryID string `json:"story_id"`
	Content string `json:"content"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
}

// ImageStatus は画像URL1件のフェッチ結果を表す。
type ImageStatus struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

// StoryImagesPayload は画像フェッチ結果のメッセージ。
type StoryImagesPayload struct {
	StoryID  string        `json:"story_id"`
	StoryURL string        `json:"story_url"`
	Images   []ImageStatus `json:"images"`
}

// FetchStoryPayload は下流フェッチャーへのストーリー取得依頼。
type FetchStoryPayload struct {
	StoryID string `json:"story_id"`
	URL     string `json:"url"`
}

// NewCreationStatusTask はcreation_statusタスクを生成する。
func NewCreationStatusTask(p CreationStatusPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCreationStatus, payload), nil
}

// NewCreationResultTask はcreation_resultタスクを生成する。
func NewCreationResultTask(p CreationResultPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCreationResult, payload), nil
}

// NewFeedUpdateTask はfeed_updateタスクを生成する。
func NewFeedUpdateTask(p FeedUpdatePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFeedUpdate, payload), nil
}

// NewStoryUpdateTask はstory_updateタスクを生成する。
func NewStoryUpdateTask(p StoryUpdatePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeStoryUpdate, payload), nil
}

// NewStoryImagesTask はstory_imagesタスクを生成する。
func NewStoryImagesTask(p StoryImagesPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeStoryImages, payload), nil
}

// NewFetchStoryTask は下流へのfetch_storyタスクを生成する。
func NewFetchStoryTask(storyID, url string) (*asynq.Task, error) {
	payload, err := json.Marshal(FetchStoryPayload{StoryID: storyID, URL: url})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeFetchStory, payload), nil
}

// NewCreationSweepTask は定期実行されるsweepタスクを生成する。
func NewCreationSweepTask() *asynq.Task {
	return asynq.NewTask(TypeCreationSweep, nil)
}
