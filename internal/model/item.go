// Package model はドメインモデルを定義する。
package model

import "time"

// FeedItem はフィードから取得した1件の記事を表す。
// パース完了後はイミュータブルとして扱う。
type FeedItem struct {
	Title       string
	Link        string
	Description string // サニタイズ済みHTML
	Author      string
	Categories  []string
	GUID        string
	PubDate     time.Time // フィードに公開日時がない場合は取り込み時刻
	SourceTitle string
	SourceURL   string
	Content     string // サニタイズ済みHTML
}

// Event はPollerからEngineのキューへ流れる新着通知を表す。
// 永続化されない一時的な値。
type Event struct {
	Source string // フィードのURL
	Item   FeedItem
}
