// Package repository はレジャー（永続ストア）へのアクセスインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/rssd/internal/model"
)

// SeenRepository は既読セットとアーカイブの永続化インターフェース。
type SeenRepository interface {
	// IsSeen は指定フィンガープリントが既読セットに存在するかを返す。
	IsSeen(ctx context.Context, fingerprint string) (bool, error)

	// MarkSeenAndArchive は既読セットへの登録とアーカイブ行の挿入を
	// 1トランザクションで実行する。両方成功した場合のみコミットする。
	// 既読セットへの挿入が実際に新規行を追加した場合（= この呼び出しが
	// 記事を発見した場合）にtrueを返す。既に登録済みの場合はfalseを返す。
	MarkSeenAndArchive(ctx context.Context, item *model.FeedItem, fingerprint, feedSource string) (bool, error)
}

// RosterRepository は追跡対象フィードURL集合の永続化インターフェース。
type RosterRepository interface {
	// List は追跡中の全フィードURLを返す。
	List(ctx context.Context) ([]string, error)

	// Add はフィードURLをロスターに追加し、実際に挿入された件数を返す。
	// 重複は何もしない（冪等）。個別URLのエラーはログに記録してスキップする。
	Add(ctx context.Context, urls []string) (int64, error)

	// Remove はフィードURLをロスターから削除し、実際に削除された件数を返す。
	// 存在しないURLは何もしない。個別URLのエラーはログに記録してスキップする。
	Remove(ctx context.Context, urls []string) (int64, error)
}
