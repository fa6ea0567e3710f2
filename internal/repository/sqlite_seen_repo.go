package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rssd/internal/model"
)

// SQLiteSeenRepo はSQLiteを使用した既読セット・アーカイブリポジトリ。
type SQLiteSeenRepo struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteSeenRepo はSQLiteSeenRepoを生成する。
func NewSQLiteSeenRepo(db *sql.DB, logger *slog.Logger) *SQLiteSeenRepo {
	return &SQLiteSeenRepo{db: db, logger: logger}
}

// IsSeen は指定フィンガープリントが既読セットに存在するかを返す。
func (r *SQLiteSeenRepo) IsSeen(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_ids WHERE id = ? LIMIT 1`,
		fingerprint,
	).Scan(&one)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("既読セットの照会に失敗しました: %w", err)
	}
	return true, nil
}

// MarkSeenAndArchive は既読セット登録とアーカイブ挿入を1トランザクションで行う。
// どちらの挿入も ON CONFLICT DO NOTHING のため、同一フィンガープリントに対する
// 並行呼び出しでもアーカイブ行はちょうど1行になる。「新規発見」を報告するのは
// 既読セットへの挿入が実際に行を追加した呼び出しだけである。
func (r *SQLiteSeenRepo) MarkSeenAndArchive(ctx context.Context, item *model.FeedItem, fingerprint, feedSource string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	categoriesJSON, err := marshalCategories(item.Categories)
	if err != nil {
		// カテゴリのJSON化失敗は記事全体を失う理由にはしない
		r.logger.Error("カテゴリのJSON変換に失敗しました",
			slog.String("fingerprint", fingerprint),
			slog.String("error", err.Error()),
		)
		categoriesJSON = ""
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO seen_ids (id, first_seen)
		 VALUES (?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		fingerprint, now,
	)
	if err != nil {
		return false, fmt.Errorf("既読セットへの挿入に失敗しました: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("既読セット挿入件数の取得に失敗しました: %w", err)
	}

	pubDate := item.PubDate
	if pubDate.IsZero() {
		pubDate = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO items_archive (
		    id, title, link, description, author, categories, guid,
		    pub_date, source_title, source_url, content, feed_source, archived_at
		 )
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		fingerprint,
		nullString(item.Title),
		nullString(item.Link),
		nullString(item.Description),
		nullString(item.Author),
		nullString(categoriesJSON),
		nullString(item.GUID),
		pubDate.Format(time.RFC3339),
		nullString(item.SourceTitle),
		nullString(item.SourceURL),
		nullString(item.Content),
		feedSource,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("アーカイブへの挿入に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}

	return inserted == 1, nil
}

// marshalCategories はカテゴリ名リストをJSON配列文字列に変換する。
// 空リストは空文字列（NULL格納）を返す。
func marshalCategories(categories []string) (string, error) {
	if len(categories) == 0 {
		return "", nil
	}
	b, err := json.Marshal(categories)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// nullString は空文字列をsql.NullStringに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// compile-time interface check
var _ SeenRepository = (*SQLiteSeenRepo)(nil)
