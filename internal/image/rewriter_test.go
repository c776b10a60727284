package image

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

const testProxyPrefix = "/api/v1/image/"

// TestParse_FindsImgSrcOffsets はimgタグのsrc属性値と
// そのバイトオフセットが正しく検出されることを検証する。
func TestParse_FindsImgSrcOffsets(t *testing.T) {
	r := NewRewriter(testProxyPrefix)
	content := `<p>前文</p><img src="https://cdn.example.com/a.png" alt="a"><img src='https://cdn.example.com/b.png'/>`

	refs := r.Parse(content)
	if len(refs) != 2 {
		t.Fatalf("len(refs) = %d, want 2", len(refs))
	}
	if refs[0].URL != "https://cdn.example.com/a.png" {
		t.Errorf("refs[0].URL = %q", refs[0].URL)
	}
	if refs[1].URL != "https://cdn.example.com/b.png" {
		t.Errorf("refs[1].URL = %q", refs[1].URL)
	}
	// オフセットが実際の位置を指しているか
	for i, ref := range refs {
		if got := content[ref.Start:ref.End]; got != ref.URL {
			t.Errorf("refs[%d]: content[%d:%d] = %q, want %q", i, ref.Start, ref.End, got, ref.URL)
		}
	}
}

// TestParse_SkipsLazyLoadAttributes はdata-srcのような末尾がsrcの
// 別属性に釣られず、src属性本体だけが検出されることを検証する。
func TestParse_SkipsLazyLoadAttributes(t *testing.T) {
	r := NewRewriter(testProxyPrefix)
	content := `<img data-src="https://lazy.example.com/a.png" src="https://cdn.example.com/real.png">`

	refs := r.Parse(content)
	if len(refs) != 1 {
		t.Fatalf("len(refs) = %d, want 1", len(refs))
	}
	if refs[0].URL != "https://cdn.example.com/real.png" {
		t.Errorf("refs[0].URL = %q, want src属性の値", refs[0].URL)
	}
	if got := content[refs[0].Start:refs[0].End]; got != refs[0].URL {
		t.Errorf("content[%d:%d] = %q, want %q", refs[0].Start, refs[0].End, got, refs[0].URL)
	}
}

// TestParse_IgnoresNonImgTags はimg以外のタグのsrc属性が対象外であることを検証する。
func TestParse_IgnoresNonImgTags(t *testing.T) {
	r := NewRewriter(testProxyPrefix)
	content := `<iframe src="https://example.com/frame"></iframe><video src="https://example.com/v.mp4"></video>`

	refs := r.Parse(content)
	if len(refs) != 0 {
		t.Errorf("len(refs) = %d, want 0", len(refs))
	}
}

// TestParse_EmptyContent は空文字列で参照が検出されないことを検証する。
func TestParse_EmptyContent(t *testing.T) {
	r := NewRewriter(testProxyPrefix)
	if refs := r.Parse(""); refs != nil {
		t.Errorf("Parse(\"\") = %v, want nil", refs)
	}
}

// TestProcess_ReplacesOnlyMappedRefs は置換マップに含まれる参照のみが
// 書き換えられ、他はバイト単位で不変であることを検証する。
func TestProcess_ReplacesOnlyMappedRefs(t *testing.T) {
	r := NewRewriter(testProxyPrefix)
	content := `<img src="https://a.example.com/1.png"><p>本文</p><img src="https://b.example.com/2.png">`
	refs := r.Parse(content)

	proxied := r.ProxyPath("https://a.example.com/1.png", "https://blog.example.com/post")
	replaces := map[string]string{
		"https://a.example.com/1.png": proxied,
	}

	got := r.Process(content, refs, replaces)
	if !strings.Contains(got, proxied) {
		t.Errorf("置換後URLが含まれていない: %q", got)
	}
	if !strings.Contains(got, "https://b.example.com/2.png") {
		t.Errorf("置換対象外の参照が変更された: %q", got)
	}
	if !strings.Contains(got, "<p>本文</p>") {
		t.Errorf("周辺マークアップが変更された: %q", got)
	}
}

// TestProcess_EmptyMapIsByteIdentical は空の置換マップで
// 入力がそのまま返ることを検証する。
func TestProcess_EmptyMapIsByteIdentical(t *testing.T) {
	r := NewRewriter(testProxyPrefix)
	content := `<img src="https://a.example.com/1.png">`
	refs := r.Parse(content)

	if got := r.Process(content, refs, nil); got != content {
		t.Errorf("Process() = %q, want 入力と同一", got)
	}
}

// TestProcess_Idempotent は書き換え済み本文の再処理が
// 変化を生じないことを検証する。
func TestProcess_Idempotent(t *testing.T) {
	r := NewRewriter(testProxyPrefix)
	content := `<img src="https://a.example.com/1.png">`
	refs := r.Parse(content)

	replaces := map[string]string{
		"https://a.example.com/1.png": r.ProxyPath("https://a.example.com/1.png", "https://blog.example.com"),
	}
	once := r.Process(content, refs, replaces)

	// 2回目: 書き換え済みの参照はproxyPrefix配下のため候補から外れる
	refs2 := r.Parse(once)
	twice := r.Process(once, refs2, replaces)
	if twice != once {
		t.Errorf("再処理で本文が変化した:\nonce  = %q\ntwice = %q", once, twice)
	}
}

// TestEncodeImageToken_Deterministic は同一入力から常に同一トークンが
// 得られること、およびトークンが復号可能であることを検証する。
func TestEncodeImageToken_Deterministic(t *testing.T) {
	a := EncodeImageToken("https://cdn.example.com/a.png", "https://blog.example.com/post")
	b := EncodeImageToken("https://cdn.example.com/a.png", "https://blog.example.com/post")
	if a != b {
		t.Errorf("トークンが決定的でない: %q != %q", a, b)
	}

	data, err := base64.RawURLEncoding.DecodeString(a)
	if err != nil {
		t.Fatalf("トークンの復号に失敗: %v", err)
	}
	var p struct {
		URL     string `json:"url"`
		Referer string `json:"referer"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("トークンのJSON復元に失敗: %v", err)
	}
	if p.URL != "https://cdn.example.com/a.png" {
		t.Errorf("url = %q", p.URL)
	}
	if p.Referer != "https://blog.example.com/post" {
		t.Errorf("referer = %q", p.Referer)
	}
}

// TestProxyPath_HasPrefix はProxyPathがプレフィックス配下のパスを返すことを検証する。
func TestProxyPath_HasPrefix(t *testing.T) {
	r := NewRewriter(testProxyPrefix)
	got := r.ProxyPath("https://cdn.example.com/a.png", "https://blog.example.com")
	if !strings.HasPrefix(got, testProxyPrefix) {
		t.Errorf("ProxyPath() = %q, want prefix %q", got, testProxyPrefix)
	}
}
