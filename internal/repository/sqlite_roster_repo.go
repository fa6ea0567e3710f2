package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// SQLiteRosterRepo はSQLiteを使用したフィードロスターリポジトリ。
type SQLiteRosterRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRosterRepo はSQLiteRosterRepoを生成する。
func NewSQLiteRosterRepo(db *sql.DB, logger *slog.Logger) *SQLiteRosterRepo {
	return &SQLiteRosterRepo{db: db, logger: logger}
}

// List は追跡中の全フィードURLを返す。
func (r *SQLiteRosterRepo) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT feed FROM feeds ORDER BY feed`)
	if err != nil {
		return nil, fmt.Errorf("ロスターの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []string
	for rows.Next() {
		var feed string
		if err := rows.Scan(&feed); err != nil {
			return nil, fmt.Errorf("ロスターの読み取りに失敗しました: %w", err)
		}
		feeds = append(feeds, feed)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ロスターの走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// Add はフィードURLをロスターに追加し、実際に挿入された件数を返す。
// 個別URLの失敗はバッチ全体を中断せず、ログに記録してスキップする。
func (r *SQLiteRosterRepo) Add(ctx context.Context, urls []string) (int64, error) {
	var inserted int64

	for _, u := range urls {
		result, err := r.db.ExecContext(ctx,
			`INSERT INTO feeds (feed)
			 VALUES (?)
			 ON CONFLICT(feed) DO NOTHING`,
			u,
		)
		if err != nil {
			r.logger.Error("ロスターへの追加に失敗しました",
				slog.String("feed", u),
				slog.String("error", err.Error()),
			)
			continue
		}
		n, err := result.RowsAffected()
		if err != nil {
			r.logger.Error("ロスター追加件数の取得に失敗しました",
				slog.String("feed", u),
				slog.String("error", err.Error()),
			)
			continue
		}
		inserted += n
	}

	return inserted, nil
}

// Remove はフィードURLをロスターから削除し、実際に削除された件数を返す。
// 個別URLの失敗はバッチ全体を中断せず、ログに記録してスキップする。
func (r *SQLiteRosterRepo) Remove(ctx context.Context, urls []string) (int64, error) {
	var removed int64

	for _, u := range urls {
		result, err := r.db.ExecContext(ctx,
			`DELETE FROM feeds WHERE feed = ?`,
			u,
		)
		if err != nil {
			r.logger.Error("ロスターからの削除に失敗しました",
				slog.String("feed", u),
				slog.String("error", err.Error()),
			)
			continue
		}
		n, err := result.RowsAffected()
		if err != nil {
			r.logger.Error("ロスター削除件数の取得に失敗しました",
				slog.String("feed", u),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed += n
	}

	return removed, nil
}

// compile-time interface check
var _ RosterRepository = (*SQLiteRosterRepo)(nil)
