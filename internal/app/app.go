// Package app はアプリケーションのエントリーポイントと配線を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/rssd/internal/config"
	"github.com/hitoshi/rssd/internal/database"
	"github.com/hitoshi/rssd/internal/feed"
	"github.com/hitoshi/rssd/internal/handler"
	"github.com/hitoshi/rssd/internal/logger"
	"github.com/hitoshi/rssd/internal/metrics"
	"github.com/hitoshi/rssd/internal/notify"
	"github.com/hitoshi/rssd/internal/repository"
	"github.com/hitoshi/rssd/internal/security"
	"github.com/hitoshi/rssd/internal/server"
	"github.com/hitoshi/rssd/internal/worker/maintenance"
	"github.com/hitoshi/rssd/internal/worker/poll"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映してログを再セットアップする
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// send はワンショットのクライアントのため、フル初期化をスキップする
	if cmd == CommandSend {
		return runSend(w, args[1:])
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting rssd",
		slog.String("command", string(cmd)),
		slog.String("database", cfg.DatabasePath),
	)

	switch cmd {
	case CommandCheck:
		return runCheck(w, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runDaemon(cfg)
	}
}

// runDaemon はデーモンモードで起動する。
// DB接続・監視エンジン・制御ソケット・Dispatcherをワイヤリングし、
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runDaemon(cfg *config.Config) error {
	// 1. DB接続とマイグレーション
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	seenRepo := repository.NewSQLiteSeenRepo(db, slog.Default())
	rosterRepo := repository.NewSQLiteRosterRepo(db, slog.Default())

	// 3. セキュリティサービスとソースクライアントの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	limiter := feed.NewHostLimiter(cfg.FetchRate, cfg.FetchBurst)
	defer limiter.Stop()

	client := feed.NewClient(
		ssrfGuard, sanitizer, limiter,
		slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize,
	)

	// 4. メトリクスの初期化（METRICS_PORT未設定時は無効）
	var recorder metrics.Recorder = metrics.NopRecorder{}
	var registry *prometheus.Registry
	if cfg.MetricsPort != "" {
		registry = prometheus.NewRegistry()
		recorder = metrics.NewCollector(registry)
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down daemon...")
		cancel()
	}()

	// 5. 監視エンジンの起動
	engine, failedURLs, err := poll.NewEngine(ctx, poll.Options{
		Resolver:     client,
		Fetcher:      client,
		Roster:       rosterRepo,
		Seen:         seenRepo,
		Logger:       slog.Default(),
		Metrics:      recorder,
		QueueSize:    cfg.QueueSize,
		CacheSize:    cfg.CacheSize,
		Interval:     cfg.PollInterval,
		FailBackoff:  cfg.FailBackoff,
		InitialFeeds: cfg.FeedList(),
	})
	if err != nil {
		return fmt.Errorf("failed to start watch engine: %w", err)
	}

	slog.Info("watch engine started",
		slog.Int("tracked", len(engine.Feeds())),
		slog.Int("failed", len(failedURLs)),
		slog.Duration("poll_interval", cfg.PollInterval),
	)
	for _, u := range failedURLs {
		slog.Warn("フィードURLの検証に失敗したため監視対象から除外します",
			slog.String("url", u),
		)
	}

	// 6. 通知シンクの初期化
	var notifier notify.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL, 10*time.Second, slog.Default())
	} else {
		slog.Info("WEBHOOK_URL is not set, new items will only be logged")
		notifier = notify.NewLogNotifier(slog.Default())
	}

	// 7. 制御ソケットの起動
	ipc := server.NewIPCServer(cfg.SocketPath, slog.Default())
	if err := ipc.Listen(); err != nil {
		engine.Close()
		return fmt.Errorf("failed to start control socket: %w", err)
	}
	defer ipc.Close()

	serveDone := make(chan struct{})
	go func() {
		defer close(serveDone)
		ipc.Serve(ctx)
	}()

	// 8. データベース保守ワーカーの起動
	maintWorker := maintenance.NewWorker(db, maintenance.DefaultInterval, slog.Default())
	go maintWorker.Run(ctx)

	// 9. メトリクスHTTPサーバーの起動
	var metricsServer *http.Server
	if cfg.MetricsPort != "" {
		metricsServer = &http.Server{
			Addr:         ":" + cfg.MetricsPort,
			Handler:      handler.NewRouter(db, registry, slog.Default()),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		go func() {
			slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server listen error", slog.String("error", err.Error()))
			}
		}()
	}

	// シグナル受信後にエンジンを停止し、イベントチャネルをクローズする
	go func() {
		<-ctx.Done()
		engine.Close()
	}()

	// 10. Dispatcherをメインgoroutineで実行（ブロッキング）
	// イベントと制御コマンドの両チャネルがクローズされると戻る
	dispatcher := server.NewDispatcher(engine, notifier, slog.Default(), recorder)
	dispatcher.Run(ctx, engine.Events(), ipc.Requests())

	<-serveDone

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}

	slog.Info("daemon stopped gracefully")
	return nil
}

// runCheck は設定済みフィードを1回だけ並行検証して結果を出力する。
// デーモンは起動しない。
func runCheck(w io.Writer, cfg *config.Config) error {
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()

	limiter := feed.NewHostLimiter(cfg.FetchRate, cfg.FetchBurst)
	defer limiter.Stop()

	client := feed.NewClient(
		ssrfGuard, sanitizer, limiter,
		slog.Default(), cfg.FetchTimeout, cfg.FetchMaxSize,
	)

	urls := cfg.FeedList()
	resolved, failed := feed.ResolveAll(context.Background(), client, slog.Default(), urls)

	fmt.Fprintf(w, "checked %d feeds: %d valid, %d invalid\n", len(urls), len(resolved), len(failed))
	for _, u := range failed {
		fmt.Fprintf(w, "invalid: %s\n", u)
	}

	return nil
}

// runSend は稼働中デーモンの制御ソケットへコマンドを送信し、
// 応答をそのまま出力する。
func runSend(w io.Writer, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("send requires a command, e.g.: rssd send feed list")
	}

	socketPath := os.Getenv("SOCKET_PATH")
	if socketPath == "" {
		socketPath = "/tmp/rssd.sock"
	}

	reply, err := server.Send(socketPath, strings.Join(args, " "), 10*time.Second)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, reply)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database", cfg.DatabasePath),
	)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}
