// Package model はドメインモデルを定義する。
package model

import "time"

// Story はフィードに属する1記事を表す。
// (feed_id, unique_id) が自然キーであり、一意制約で保証される。
// contentは後続のフルコンテンツ取得と画像書き換えで上書きされる。
type Story struct {
	ID          string
	FeedID      string
	UniqueID    string
	Title       string
	Author      string
	Link        string
	DtPublished *time.Time
	DtUpdated   *time.Time
	Summary     string // サニタイズ済み
	Content     string // サニタイズ済みHTML
	ContentHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IncomingStory はフェッチャーから届いた未保存の記事データを表す。
// StoryReconcilerへの入力であり、unique_idとcontent_hashが同一性判定の鍵となる。
type IncomingStory struct {
	UniqueID    string
	Title       string
	ContentHash string
	Author      string
	Link        string
	DtPublished *time.Time
	DtUpdated   *time.Time
	Summary     string // 未サニタイズ
	Content     string // 未サニタイズHTML
}
