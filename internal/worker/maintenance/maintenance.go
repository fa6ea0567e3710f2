// Package maintenance はデータベースの定期保守ワーカーを提供する。
package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は保守処理のデフォルト実行間隔。
const DefaultInterval = 1 * time.Hour

// Worker はWALチェックポイントとクエリプランナの統計更新を
// 定期実行するワーカー。台帳は追記専用のため削除処理は行わない。
type Worker struct {
	db       *sql.DB
	interval time.Duration
	logger   *slog.Logger
}

// NewWorker はWorkerの新しいインスタンスを生成する。
// intervalが0以下の場合はDefaultIntervalを使用する。
func NewWorker(db *sql.DB, interval time.Duration, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Worker{
		db:       db,
		interval: interval,
		logger:   logger,
	}
}

// Run は保守ループを実行する。ctxのキャンセルで終了する。
// 失敗してもループは継続し、次回の実行で再試行する。
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("データベース保守ワーカーを開始します",
		slog.Duration("interval", w.interval),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("データベース保守ワーカーを終了します")
			return
		case <-ticker.C:
			if err := w.Checkpoint(ctx); err != nil {
				w.logger.Warn("データベース保守に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Checkpoint はWALファイルを本体にマージして切り詰め、
// クエリプランナの統計を更新する。
func (w *Worker) Checkpoint(ctx context.Context) error {
	start := time.Now()

	if _, err := w.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("WALチェックポイントに失敗しました: %w", err)
	}

	if _, err := w.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("統計の更新に失敗しました: %w", err)
	}

	w.logger.Debug("データベース保守が完了しました",
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}
