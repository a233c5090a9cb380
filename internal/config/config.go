// Package config はCodeBridge APIサービスの設定管理を提供する。
//
// すべての設定値は環境変数から読み込み、未設定の場合はデフォルト値を使用する。
// 設定値は起動時に一度だけ解決され、以降は読み取り専用として扱う。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はサービス全体の設定値を保持する。
type Config struct {
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// JWTSecret はJWT署名用の秘密鍵。
	JWTSecret string
	// TokenTTL はアクセストークンの有効期間。
	TokenTTL time.Duration
	// RateLimitPerWindow は標準ティアのウィンドウあたり最大リクエスト数。
	RateLimitPerWindow int
	// StrictRateLimitPerWindow は厳格ティア（ログイン等）のウィンドウあたり最大リクエスト数。
	StrictRateLimitPerWindow int
	// RateLimitWindow はレート制限のスライディングウィンドウ幅。
	RateLimitWindow time.Duration
	// DatabasePath はSQLiteデータベースファイルのパス。
	DatabasePath string
	// AllowedOrigins はCORSで許可するオリジンのリスト。
	AllowedOrigins []string
}

// Load は環境変数から設定を読み込む。
// JWT_SECRETが未設定の場合は開発用の値にフォールバックする。
// 本番環境では必ずJWT_SECRETを設定すること。
func Load() (*Config, error) {
	tokenTTLMinutes, err := getEnvIntOr("TOKEN_TTL_MINUTES", 30)
	if err != nil {
		return nil, err
	}

	rateLimit, err := getEnvIntOr("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}

	strictRateLimit, err := getEnvIntOr("STRICT_RATE_LIMIT_PER_MINUTE", 10)
	if err != nil {
		return nil, err
	}

	windowSeconds, err := getEnvIntOr("RATE_LIMIT_WINDOW_SECONDS", 60)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:                     getEnvOr("PORT", "3047"),
		JWTSecret:                getEnvOr("JWT_SECRET", "dev-secret-key"),
		TokenTTL:                 time.Duration(tokenTTLMinutes) * time.Minute,
		RateLimitPerWindow:       rateLimit,
		StrictRateLimitPerWindow: strictRateLimit,
		RateLimitWindow:          time.Duration(windowSeconds) * time.Second,
		DatabasePath:             getEnvOr("DATABASE_PATH", "./codebridge.db"),
		AllowedOrigins:           splitAndTrim(getEnvOr("ALLOWED_ORIGINS", "http://localhost:3000")),
	}, nil
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getEnvIntOr は整数の環境変数を取得し、設定されていない場合はデフォルト値を返す。
// 整数として解釈できない値が設定されている場合はエラーを返す。
func getEnvIntOr(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("環境変数 %s の値 %q を整数として解釈できません: %w", key, v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("環境変数 %s は正の整数である必要があります: %d", key, n)
	}
	return n, nil
}

// splitAndTrim はカンマ区切りの文字列を分割し、各要素の空白を除去する。
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
