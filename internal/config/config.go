// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	DatabasePath string

	// IPC
	SocketPath string

	// Feeds
	FeedURLs  []string
	FeedsFile string

	// Watcher
	QueueSize    int
	PollInterval time.Duration
	FailBackoff  time.Duration
	CacheSize    int

	// Fetch
	FetchTimeout time.Duration
	FetchMaxSize int64
	FetchRate    float64
	FetchBurst   int

	// Sink
	WebhookURL string

	// Observability
	MetricsPort string
	LogLevel    string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabasePath = os.Getenv("DATABASE_PATH")
	if cfg.DatabasePath == "" {
		missing = append(missing, "DATABASE_PATH")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SocketPath = getEnvString("SOCKET_PATH", "/tmp/rssd.sock")
	cfg.FeedURLs = splitURLList(os.Getenv("FEED_URLS"))
	cfg.FeedsFile = getEnvString("FEEDS_FILE", "")
	cfg.QueueSize = getEnvInt("QUEUE_SIZE", 64)
	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 5*time.Minute)
	cfg.FailBackoff = getEnvDuration("FAIL_BACKOFF", time.Hour)
	cfg.CacheSize = getEnvInt("CACHE_SIZE", 300)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchRate = getEnvFloat("FETCH_RATE", 1.0)
	cfg.FetchBurst = getEnvInt("FETCH_BURST", 3)
	cfg.WebhookURL = getEnvString("WEBHOOK_URL", "")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("QUEUE_SIZE must be positive, got %d", cfg.QueueSize)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("CACHE_SIZE must be positive, got %d", cfg.CacheSize)
	}

	return cfg, nil
}

// FeedList はFEED_URLSとFEEDS_FILEをマージした追跡対象URLリストを返す。
// FEEDS_FILEは1行1URLのテキストファイル。ファイルが開けない場合は
// FEED_URLSのみを返す。重複はそのまま返す（ロスター側で冪等化される）。
func (c *Config) FeedList() []string {
	list := make([]string, 0, len(c.FeedURLs))
	list = append(list, c.FeedURLs...)

	if c.FeedsFile == "" {
		return list
	}

	f, err := os.Open(c.FeedsFile)
	if err != nil {
		return list
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		list = append(list, line)
	}

	return list
}

// splitURLList はカンマ区切りのURLリストをパースする。
func splitURLList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		urls = append(urls, p)
	}
	return urls
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
