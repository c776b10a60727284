// Package app はプロセスの起動とコンポーネントのワイヤリングを担う。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/feedharbor/internal/config"
	"github.com/hitoshi/feedharbor/internal/database"
	"github.com/hitoshi/feedharbor/internal/harbor"
	"github.com/hitoshi/feedharbor/internal/image"
	"github.com/hitoshi/feedharbor/internal/logger"
	"github.com/hitoshi/feedharbor/internal/metrics"
	"github.com/hitoshi/feedharbor/internal/ops"
	"github.com/hitoshi/feedharbor/internal/repository"
	"github.com/hitoshi/feedharbor/internal/security"
	"github.com/hitoshi/feedharbor/internal/story"
	"github.com/hitoshi/feedharbor/internal/tasks"
	"github.com/hitoshi/feedharbor/internal/worker"
	"github.com/hitoshi/feedharbor/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// .envがあれば読み込み、JSON構造化ログをセットアップした後に
// 環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// .envはローカル開発用。無くてもエラーにしない
	_ = godotenv.Load()

	logger.SetupDefault(w)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("OPS_PORT")
		if port == "" {
			port = "9090"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("redis_addr", cfg.RedisAddr),
	)

	switch cmd {
	case CommandScheduler:
		return runScheduler(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runWorker(cfg)
	}
}

// runWorker はメッセージ消費ワーカーモードで起動する。
// DB接続とRedis接続を開き、全依存関係をワイヤリングし、
// asynqサーバーと運用HTTPサーバーを起動する。
// asynqサーバーはSIGINT/SIGTERMを自前で処理し、処理中のタスクの
// 完了を待ってから停止する。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. メトリクスの初期化
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. タスク送出クライアントの初期化
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	client := asynq.NewClient(redisOpt)
	defer client.Close()

	// 4. ドメインサービスのワイヤリング
	store := repository.NewSQLStore(db)
	sanitizer := security.NewContentSanitizer()
	urlGuard := security.NewURLGuard()
	reconciler := story.NewReconciler(sanitizer)
	rewriter := image.NewRewriter(cfg.ImageProxyPathPrefix)

	service := harbor.NewService(
		store, reconciler, rewriter, sanitizer, urlGuard, client, collector,
		harbor.Options{
			RefererDenyStatus: cfg.RefererDenyStatus,
			FetchEmitRate:     cfg.FetchEmitRate,
			FetchEmitBurst:    cfg.FetchEmitBurst,
		},
	)

	sweeper := sweep.NewSweeper(repository.NewPostgresFeedCreationRepo(db), slog.Default(), collector)
	sweeper.Retention = cfg.CreationRetention
	sweeper.StuckUpdating = cfg.StuckUpdatingWindow
	sweeper.StuckPending = cfg.StuckPendingWindow

	handler := worker.NewTaskHandler(service, sweeper, collector)

	// 5. 運用HTTPサーバーの起動
	opsServer := &http.Server{
		Addr:         ":" + cfg.OpsPort,
		Handler:      ops.NewRouter(db, registry, slog.Default()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("ops server starting",
			slog.String("addr", opsServer.Addr),
		)
		if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("ops server listen error", slog.String("error", err.Error()))
		}
	}()

	// 6. asynqサーバーの起動（ブロッキング。シグナル処理はasynqが行う）
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues: map[string]int{
			"default": 1,
		},
	})

	slog.Info("worker starting",
		slog.Int("concurrency", cfg.WorkerConcurrency),
	)

	runErr := srv.Run(handler.Mux())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := opsServer.Shutdown(ctx); err != nil {
		slog.Error("ops server shutdown failed", slog.String("error", err.Error()))
	}

	if runErr != nil {
		return fmt.Errorf("worker server failed: %w", runErr)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runScheduler は定期タスク発行スケジューラモードで起動する。
// FeedCreation回収タスクを一定間隔でキューへ投入する。
// ワーカーとは別プロセスで1インスタンスのみ動かすこと。
func runScheduler(cfg *config.Config) error {
	scheduler := asynq.NewScheduler(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		&asynq.SchedulerOpts{},
	)

	spec := fmt.Sprintf("@every %s", cfg.SweepInterval)
	entryID, err := scheduler.Register(spec, tasks.NewCreationSweepTask())
	if err != nil {
		return fmt.Errorf("failed to register sweep task: %w", err)
	}

	slog.Info("scheduler starting",
		slog.String("sweep_spec", spec),
		slog.String("entry_id", entryID),
	)

	// シグナル処理はasynqスケジューラが行う
	if err := scheduler.Run(); err != nil {
		return fmt.Errorf("scheduler failed: %w", err)
	}

	slog.Info("scheduler stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// 運用サーバーの /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
