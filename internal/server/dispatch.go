package server

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hitoshi/rssd/internal/metrics"
	"github.com/hitoshi/rssd/internal/model"
	"github.com/hitoshi/rssd/internal/notify"
	"github.com/hitoshi/rssd/internal/version"
)

// FeedController はDispatcherが操作する監視エンジンのインターフェース。
// poll.Engineが実装する。
type FeedController interface {
	AddFeed(ctx context.Context, rawURL string) (bool, error)
	RemoveFeed(ctx context.Context, rawURL string) (bool, error)
	Feeds() []string
}

// Dispatcher はイベントキューと制御コマンドを単一のゴルーチンで
// 処理する。エンジンへの変更は全てここを通るため、Engine側の
// 排他制御は不要になる。
type Dispatcher struct {
	engine   FeedController
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
func NewDispatcher(engine FeedController, notifier notify.Notifier, logger *slog.Logger, recorder metrics.Recorder) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		notifier: notifier,
		logger:   logger,
		metrics:  recorder,
	}
}

// Run はイベントとリクエストの消費ループを実行する。
// 両チャネルのクローズで戻る。シャットダウン時もキューに残った
// イベントは通知してから終了する。
func (d *Dispatcher) Run(ctx context.Context, events <-chan model.Event, requests <-chan Request) {
	for events != nil || requests != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			d.metrics.SetQueueDepth(len(events))
			d.notify(ctx, ev)

		case req, ok := <-requests:
			if !ok {
				requests = nil
				continue
			}
			reply := d.handle(ctx, req.Command)
			d.metrics.CommandHandled(req.Command.Kind.Keyword(), strings.HasPrefix(reply, "ACK"))
			d.logger.Info("コマンドを処理しました",
				slog.String("request_id", req.ID),
				slog.String("keyword", req.Command.Kind.Keyword()),
				slog.String("reply", reply),
			)
			req.Reply <- reply
		}
	}
}

// notify はイベントを1件通知する。失敗はログに記録し、再送しない。
// シャットダウン中でも残イベントを送り切れるよう、通知は
// 呼び出しコンテキストのキャンセルに影響されない。
func (d *Dispatcher) notify(ctx context.Context, ev model.Event) {
	if err := d.notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		d.metrics.NotificationFailed()
		d.logger.Warn("通知の送信に失敗しました",
			slog.String("feed", ev.Source),
			slog.String("title", ev.Item.Title),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.NotificationSent()
}

// handle はコマンドを1件処理して応答行を返す。
func (d *Dispatcher) handle(ctx context.Context, cmd Command) string {
	switch cmd.Kind {
	case CmdPing:
		return "ACK Pong"

	case CmdVersion:
		return "ACK " + version.Version

	case CmdFeedAdd:
		added, err := d.engine.AddFeed(ctx, cmd.URL)
		if err != nil {
			return "ERR Could not add feed: " + err.Error()
		}
		if !added {
			return "ACK Feed already tracked: " + cmd.URL
		}
		return "ACK Added feed: " + cmd.URL

	case CmdFeedRemove:
		removed, err := d.engine.RemoveFeed(ctx, cmd.URL)
		if err != nil {
			return "ERR Could not remove feed: " + err.Error()
		}
		if !removed {
			return "ACK Feed was not being followed: " + cmd.URL
		}
		return "ACK Removed " + cmd.URL + " feed"

	case CmdFeedList:
		return "ACK Tracking feeds: " + strings.Join(d.engine.Feeds(), ", ")

	default:
		return "ERR Unknown keyword"
	}
}
