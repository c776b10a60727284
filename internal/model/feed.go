// Package model はドメインモデルを定義する。
package model

import "time"

// FeedStatus はフィードおよびフィード作成リクエストのライフサイクル状態を表す。
// FeedCreationでは PENDING → UPDATING → {READY, ERROR} の状態機械として振る舞う。
type FeedStatus string

const (
	// FeedStatusPending は未着手の状態。
	FeedStatusPending FeedStatus = "pending"
	// FeedStatusUpdating はワーカーが処理中の状態。
	FeedStatusUpdating FeedStatus = "updating"
	// FeedStatusReady は正常終了した状態。
	FeedStatusReady FeedStatus = "ready"
	// FeedStatusError は異常終了した状態。
	FeedStatusError FeedStatus = "error"
)

// IsTerminal はFeedCreationの終端状態（READY/ERROR）かどうかを返す。
func (s FeedStatus) IsTerminal() bool {
	return s == FeedStatusReady || s == FeedStatusError
}

// Feed は購読元フィードを表す。正規URLごとに1行で、ハード削除はしない。
type Feed struct {
	ID           string
	URL          string
	Title        string
	Link         string
	Author       string
	Icon         string
	Description  string
	Version      string
	Encoding     string
	ETag         string
	LastModified string
	Status       FeedStatus
	DtUpdated    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FeedCreation はユーザーからの購読作成リクエストを表す。
// 外部フェッチャーがURL探索を行い、結果がメッセージとして戻ってくるまでの
// 進行状況を status で追跡する。
type FeedCreation struct {
	ID             string
	UserID         string
	URL            string
	Status         FeedStatus
	Message        string // フェッチャーからの診断メッセージ（空行区切りで連結）
	IsFromBookmark bool
	DtUpdated      time.Time
	CreatedAt      time.Time
}

// UserFeed はユーザーとフィードの多対多リンクを表す。
// (user_id, feed_id) の一意制約により冪等に作成される。
type UserFeed struct {
	ID             string
	UserID         string
	FeedID         string
	IsFromBookmark bool
	CreatedAt      time.Time
}

// FeedURLNotFound はfeed_url_mapのtargetに記録される「フィード無し」の番兵値。
const FeedURLNotFound = "#NOT_FOUND#"

// FeedUrlMap はリクエストされたURLから正規フィードURLへのエイリアスを表す。
// 追記中心のテーブルで、同一sourceに対しては最後の書き込みが有効となる。
type FeedUrlMap struct {
	ID        string
	Source    string
	Target    string
	CreatedAt time.Time
}
