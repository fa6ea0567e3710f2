package model

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint は記事の重複排除に使う決定的な識別子を返す。
// GUIDがあればその値をそのまま使用し、なければlink・title・descriptionを
// 連結したSHA-256ダイジェストの16進表現を返す。
// 同一フィードを繰り返し取得しても同じ記事には常に同じ値が計算される。
func Fingerprint(item FeedItem) string {
	if item.GUID != "" {
		return item.GUID
	}

	h := sha256.New()
	h.Write([]byte(item.Link))
	h.Write([]byte(item.Title))
	h.Write([]byte(item.Description))
	return hex.EncodeToString(h.Sum(nil))
}
