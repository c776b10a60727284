package image

import (
	"encoding/base64"
	"encoding/json"
)

// proxyPayload はプロキシトークンに符号化される情報。
// フィールド順は固定であり、同一入力からは常に同一のトークンが得られる。
type proxyPayload struct {
	URL     string `json:"url"`
	Referer string `json:"referer"`
}

// EncodeImageToken は(画像URL, 参照元URL)を決定的なトークンへ符号化する。
// 復号はプロキシサービス側の責務であり、このコンポーネントは行わない。
func EncodeImageToken(imageURL, refererURL string) string {
	data, err := json.Marshal(proxyPayload{URL: imageURL, Referer: refererURL})
	if err != nil {
		// 文字列2つのJSON化は失敗しない
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// ProxyPath は書き換え後の画像URL（プロキシ配下のパス）を返す。
func (r *Rewriter) ProxyPath(imageURL, refererURL string) string {
	return r.proxyPrefix + EncodeImageToken(imageURL, refererURL)
}
