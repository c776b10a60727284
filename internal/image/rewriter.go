// Package image はストーリー本文に埋め込まれた画像参照の検出と
// 位置指定の書き換えを提供する。
//
// 書き換えはバイトオフセットに基づく置換であり、文書全体の再シリアライズを
// 行わない。置換対象以外のマークアップはバイト単位で不変に保たれる。
package image

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// Reference は本文中の画像参照1件を表す。
// StartとEndはsrc属性値の本文内バイトオフセット（半開区間）を指す。
type Reference struct {
	URL   string
	Start int
	End   int
}

// srcAttrPattern はimgタグの生バイト列からsrc属性値を取り出す。
// 引用符付きの値のみを対象とする。属性名は直前が空白または引用符の
// 場合だけ一致させ、data-srcのような別属性の末尾には一致しない。
var srcAttrPattern = regexp.MustCompile(`(?i)(?:^|[\s"'])src\s*=\s*["']([^"']*)["']`)

// Rewriter は画像参照の検出と書き換えを行う。
// proxyPrefix配下を指す参照は書き換え済みとみなし、再処理の対象にしない。
type Rewriter struct {
	proxyPrefix string
}

// NewRewriter はRewriterを生成する。
// proxyPrefixは書き換え後URLのパスプレフィックス（例: "/api/v1/image/"）。
func NewRewriter(proxyPrefix string) *Rewriter {
	return &Rewriter{proxyPrefix: proxyPrefix}
}

// Parse は本文を走査し、全ての画像参照を出現順に返す。
// HTMLトークナイザで本文を1トークンずつ読み進め、各トークンの生バイト長を
// 積算することで、src属性値の正確なバイトオフセットを求める。
func (r *Rewriter) Parse(content string) []Reference {
	if content == "" {
		return nil
	}

	z := html.NewTokenizer(strings.NewReader(content))
	offset := 0
	var refs []Reference

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := z.Raw()

		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			name, _ := z.TagName()
			if string(name) == "img" {
				if m := srcAttrPattern.FindSubmatchIndex(raw); m != nil {
					refs = append(refs, Reference{
						URL:   string(raw[m[2]:m[3]]),
						Start: offset + m[2],
						End:   offset + m[3],
					})
				}
			}
		}

		offset += len(raw)
	}

	return refs
}

// Process は置換マップに含まれるURLを持つ参照のみを書き換えた本文を返す。
// 置換マップに無い参照、および既にproxyPrefix配下を指す参照は一切変更されない。
// 置換が1件も発生しない場合は入力文字列をそのまま返す（バイト同一）。
func (r *Rewriter) Process(content string, refs []Reference, replaces map[string]string) string {
	if len(refs) == 0 || len(replaces) == 0 {
		return content
	}

	sorted := make([]Reference, len(refs))
	copy(sorted, refs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var b strings.Builder
	last := 0
	replaced := false

	for _, ref := range sorted {
		if ref.Start < last || ref.End > len(content) || ref.Start > ref.End {
			continue
		}
		// 書き換え済み参照は候補にしない（再処理の冪等性）
		if strings.HasPrefix(ref.URL, r.proxyPrefix) {
			continue
		}
		newURL, ok := replaces[ref.URL]
		if !ok {
			continue
		}
		b.WriteString(content[last:ref.Start])
		b.WriteString(newURL)
		last = ref.End
		replaced = true
	}

	if !replaced {
		return content
	}

	b.WriteString(content[last:])
	return b.String()
}
