package harbor

import (
	"github.com/hitoshi/feedharbor/internal/model"
	"github.com/hitoshi/feedharbor/internal/tasks"
)

// mergeFeedFields はペイロードの非空フィールドだけを既存フィードへ反映する。
// 空文字列やnilは「更新なし」を意味し、既存値を保持する。
// URLは正規識別子のため、ここでは書き換えない。
func mergeFeedFields(feed *model.Feed, p *tasks.FeedPayload) {
	if p.Title != "" {
		feed.Title = p.Title
	}
	if p.Link != "" {
		feed.Link = p.Link
	}
	if p.Description != "" {
		feed.Description = p.Description
	}
	if p.Author != "" {
		feed.Author = p.Author
	}
	if p.Icon != "" {
		feed.Icon = p.Icon
	}
	if p.Version != "" {
		feed.Version = p.Version
	}
	if p.Encoding != "" {
		feed.Encoding = p.Encoding
	}
	if p.ETag != "" {
		feed.ETag = p.ETag
	}
	if p.LastModified != "" {
		feed.LastModified = p.LastModified
	}
	if p.DtUpdated != nil {
		feed.DtUpdated = p.DtUpdated
	}
}

// toIncomingStorys はワイヤ形式のストーリー群をドメイン表現へ変換する。
func toIncomingStorys(in []tasks.StoryPayload) []model.IncomingStory {
	out := make([]model.IncomingStory, 0, len(in))
	for _, sp := range in {
		out = append(out, model.IncomingStory{
			UniqueID:    sp.UniqueID,
			Title:       sp.Title,
			Author:      sp.Author,
			Link:        sp.Link,
			DtPublished: sp.DtPublished,
			DtUpdated:   sp.DtUpdated,
			Summary:     sp.Summary,
			Content:     sp.Content,
			ContentHash: sp.ContentHashBase64,
		})
	}
	return out
}
