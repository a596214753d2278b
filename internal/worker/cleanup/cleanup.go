// Package cleanup は論理削除済みレコードのバックグラウンド物理削除を提供する。
// 一定間隔のティッカーで保持期限を過ぎた投稿・コメントをパージする。
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/keijiban/internal/metrics"
)

// Purger は論理削除済みレコードの物理削除インターフェース。
type Purger interface {
	// PurgeDeletedBefore は指定時刻より前に論理削除されたレコードを物理削除し、削除件数を返す。
	PurgeDeletedBefore(ctx context.Context, before time.Time) (int64, error)
}

// Worker は論理削除済みレコードの定期パージを行う。
// 削除から保持期間を過ぎたレコードのみを対象とする。
// 投稿のパージに伴う配下コメントの削除はDBの外部キーCASCADEに委ねる。
type Worker struct {
	postPurger    Purger
	commentPurger Purger
	collector     metrics.MetricsCollector
	logger        *slog.Logger
	retention     time.Duration
	now           func() time.Time
}

// NewWorker はWorkerの新しいインスタンスを生成する。
// retentionが0以下の場合はデフォルト値30日を使用する。
func NewWorker(
	postPurger Purger,
	commentPurger Purger,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	retention time.Duration,
) *Worker {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Worker{
		postPurger:    postPurger,
		commentPurger: commentPurger,
		collector:     collector,
		logger:        logger,
		retention:     retention,
		now:           time.Now,
	}
}

// Start は指定間隔のティッカーでパージ処理を起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("クリーンアップワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("retention", w.retention),
	)

	// 起動直後に1回実行
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("クリーンアップサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("クリーンアップワーカーを停止しました")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("クリーンアップサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は保持期限を過ぎた論理削除済みレコードを1回パージする。
// 単独で論理削除されたコメントを先にパージし、次に投稿をパージする。
func (w *Worker) RunOnce(ctx context.Context) error {
	start := w.now()
	cutoff := start.Add(-w.retention)

	commentCount, err := w.commentPurger.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if w.collector != nil && commentCount > 0 {
		w.collector.RecordPurgedRecords("comments", commentCount)
	}

	postCount, err := w.postPurger.PurgeDeletedBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if w.collector != nil && postCount > 0 {
		w.collector.RecordPurgedRecords("posts", postCount)
	}

	duration := time.Since(start)
	w.logger.Info("クリーンアップサイクルが完了しました",
		slog.Int64("purged_posts", postCount),
		slog.Int64("purged_comments", commentCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
