// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis (asynq)
	RedisAddr string

	// Worker
	WorkerConcurrency int

	// Sweep: FeedCreationの回収ジョブの時間窓
	CreationRetention   time.Duration // 終端状態レコードの保持期間
	StuckUpdatingWindow time.Duration // UPDATING滞留をPENDINGへ戻すまでの時間
	StuckPendingWindow  time.Duration // PENDING滞留をリセットするまでの時間
	SweepInterval       time.Duration // スケジューラがsweepタスクを発行する間隔

	// Image rewrite
	ImageProxyPathPrefix string // 書き換え後の画像URLのパスプレフィックス
	RefererDenyStatus    []int  // 書き換え対象と判定するフェッチステータス

	// Downstream emission
	FetchEmitRate  float64 // fetch_storyタスク送出のレート（件/秒）
	FetchEmitBurst int

	// Ops
	OpsPort string
}

// 参照元拒否と判定するステータスのデフォルト。
// 400/401/403/404 に加え、フィードフェッチャー固有の番兵コードを含む。
const defaultRefererDenyStatus = "400,401,403,404,-402,-403"

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "127.0.0.1:6379")
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 10)
	cfg.CreationRetention = getEnvDuration("CREATION_RETENTION", 2*time.Hour)
	cfg.StuckUpdatingWindow = getEnvDuration("STUCK_UPDATING_WINDOW", 10*time.Minute)
	cfg.StuckPendingWindow = getEnvDuration("STUCK_PENDING_WINDOW", 30*time.Minute)
	cfg.SweepInterval = getEnvDuration("SWEEP_INTERVAL", time.Minute)
	cfg.ImageProxyPathPrefix = getEnvString("IMAGE_PROXY_PATH_PREFIX", "/api/v1/image/")
	cfg.FetchEmitRate = getEnvFloat("FETCH_EMIT_RATE", 50)
	cfg.FetchEmitBurst = getEnvInt("FETCH_EMIT_BURST", 10)
	cfg.OpsPort = getEnvString("OPS_PORT", "9090")

	statusList, err := parseIntList(getEnvString("REFERER_DENY_STATUS", defaultRefererDenyStatus))
	if err != nil {
		return nil, fmt.Errorf("invalid REFERER_DENY_STATUS: %w", err)
	}
	cfg.RefererDenyStatus = statusList

	return cfg, nil
}

// parseIntList はカンマ区切りの整数リストをパースする。
func parseIntList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	list := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", p)
		}
		list = append(list, n)
	}
	return list, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
