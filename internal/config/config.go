package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Storage はデータファイルの配置を保持する。
type Storage struct {
	DataDir   string
	UsersFile string
	TodosFile string
}

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
//
// 優先順位は 環境変数 > CONFIG_FILE で指定したTOMLファイル > デフォルト値。
type Config struct {
	// Server
	ServerPort  string
	MetricsPort string
	TrustProxy  bool

	// Storage
	Storage Storage

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Rate Limit
	RateLimitGeneral int // 認証済みAPI req/min/user
	RateLimitLogin   int // ログイン req/min/IP

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// fileConfig はTOML設定ファイルの構造。未指定の項目はゼロ値のまま残る。
type fileConfig struct {
	Server struct {
		Port              string `toml:"port"`
		MetricsPort       string `toml:"metrics_port"`
		TrustProxy        *bool  `toml:"trust_proxy"`
		CORSAllowedOrigin string `toml:"cors_allowed_origin"`
	} `toml:"server"`
	Storage struct {
		DataDir   string `toml:"data_dir"`
		UsersFile string `toml:"users_file"`
		TodosFile string `toml:"todos_file"`
	} `toml:"storage"`
	Auth struct {
		JWTSecret string `toml:"jwt_secret"`
		TokenTTL  string `toml:"token_ttl"`
	} `toml:"auth"`
	RateLimit struct {
		General int `toml:"general"`
		Login   int `toml:"login"`
	} `toml:"rate_limit"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

// Load は設定ファイルと環境変数からConfigを読み込む。
// 必須項目が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	// Required fields
	var missing []string
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	return cfg, nil
}

// LoadStorage はデータファイルの配置のみを読み込む。
// サーバーを起動しないコマンド（init, adduser, validate）で使う。
func LoadStorage() (Storage, error) {
	cfg, err := load()
	if err != nil {
		return Storage{}, err
	}
	return cfg.Storage, nil
}

func load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if cfg.Storage.UsersFile == "" {
		cfg.Storage.UsersFile = filepath.Join(cfg.Storage.DataDir, "users.json")
	}
	if cfg.Storage.TodosFile == "" {
		cfg.Storage.TodosFile = filepath.Join(cfg.Storage.DataDir, "todos.json")
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ServerPort:        "5001",
		MetricsPort:       "9090",
		Storage:           Storage{DataDir: "./data"},
		TokenTTL:          24 * time.Hour,
		RateLimitGeneral:  120,
		RateLimitLogin:    10,
		CORSAllowedOrigin: "http://localhost:3000",
		LogLevel:          "info",
	}
}

// applyFile はTOMLファイルの値でcfgを上書きする。
// 未知のキーは設定ミスとしてエラーにする。
func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys in config file %s: %s", path, strings.Join(keys, ", "))
	}

	setString(&cfg.ServerPort, fc.Server.Port)
	setString(&cfg.MetricsPort, fc.Server.MetricsPort)
	if fc.Server.TrustProxy != nil {
		cfg.TrustProxy = *fc.Server.TrustProxy
	}
	setString(&cfg.CORSAllowedOrigin, fc.Server.CORSAllowedOrigin)

	setString(&cfg.Storage.DataDir, fc.Storage.DataDir)
	setString(&cfg.Storage.UsersFile, fc.Storage.UsersFile)
	setString(&cfg.Storage.TodosFile, fc.Storage.TodosFile)

	setString(&cfg.JWTSecret, fc.Auth.JWTSecret)
	if fc.Auth.TokenTTL != "" {
		d, err := time.ParseDuration(fc.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("invalid auth.token_ttl %q: %w", fc.Auth.TokenTTL, err)
		}
		cfg.TokenTTL = d
	}

	if fc.RateLimit.General > 0 {
		cfg.RateLimitGeneral = fc.RateLimit.General
	}
	if fc.RateLimit.Login > 0 {
		cfg.RateLimitLogin = fc.RateLimit.Login
	}

	setString(&cfg.LogLevel, fc.Log.Level)
	return nil
}

// applyEnv は環境変数の値でcfgを上書きする。
// 解析できない値は無視し、それまでの値を保持する。
func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnvString("SERVER_PORT", cfg.ServerPort)
	cfg.MetricsPort = getEnvString("METRICS_PORT", cfg.MetricsPort)
	cfg.TrustProxy = getEnvBool("TRUST_PROXY", cfg.TrustProxy)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.CORSAllowedOrigin)

	cfg.Storage.DataDir = getEnvString("DATA_DIR", cfg.Storage.DataDir)
	cfg.Storage.UsersFile = getEnvString("USERS_FILE", cfg.Storage.UsersFile)
	cfg.Storage.TodosFile = getEnvString("TODOS_FILE", cfg.Storage.TodosFile)

	cfg.JWTSecret = getEnvString("JWT_SECRET", cfg.JWTSecret)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", cfg.TokenTTL)

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", cfg.RateLimitGeneral)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimitLogin)

	cfg.LogLevel = getEnvString("LOG_LEVEL", cfg.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
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
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
