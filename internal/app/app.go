// Package app はサブコマンドの解析と依存関係のワイヤリングを行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/config"
	"github.com/hitoshi/todoman/internal/database"
	"github.com/hitoshi/todoman/internal/handler"
	"github.com/hitoshi/todoman/internal/logger"
	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/repository"
	"github.com/hitoshi/todoman/internal/todo"
)

// shutdownTimeout はグレースフルシャットダウンの待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 設定を読み込み、設定されたレベルでJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "5001"
		}
		return runHealthcheck(port)
	}

	// サーバーを起動しないコマンドはJWT_SECRETを必要としない
	switch cmd {
	case CommandInit, CommandAddUser, CommandValidate:
		logger.SetupDefault(w, slog.LevelInfo)
		storage, err := config.LoadStorage()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		switch cmd {
		case CommandInit:
			return runInit(storage)
		case CommandAddUser:
			return runAddUser(storage, args[1:])
		default:
			return runValidate(storage)
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("metrics_port", cfg.MetricsPort),
		slog.String("users_file", cfg.Storage.UsersFile),
		slog.String("todos_file", cfg.Storage.TodosFile),
	)

	return runServe(cfg)
}

// newStore は設定のファイルパスでJSONStoreを生成する。
func newStore(storage config.Storage, opts ...repository.StoreOption) *repository.JSONStore {
	return repository.NewJSONStore(repository.StorePaths{
		UsersFile: storage.UsersFile,
		TodosFile: storage.TodosFile,
	}, opts...)
}

// server はAPIサーバーとメトリクスサーバーを束ねる。
type server struct {
	api         *http.Server
	metrics     *http.Server
	rateLimiter *middleware.RateLimiter
}

// newServer はデータファイルを初期化し、全依存関係をワイヤリングしたserverを返す。
func newServer(cfg *config.Config) (*server, error) {
	// 1. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 2. ストアとデータファイルの初期化
	store := newStore(cfg.Storage, repository.WithMetrics(collector))
	created, err := database.EnsureSeeded(store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize data files: %w", err)
	}
	if len(created) == 0 {
		slog.Info("data files already exist")
	}
	// 読み込みは失敗時に空配列となるため、起動時に違反を知らせておく
	violations, err := checkDataFiles(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if violations > 0 {
		slog.Warn("serving with invalid data files, run validate for details",
			slog.Int("violations", violations),
		)
	}

	// 3. リポジトリとドメインサービス
	userRepo := repository.NewJSONUserRepo(store)
	todoRepo := repository.NewJSONTodoRepo(store)

	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	authService := auth.NewService(userRepo, tokens, collector)
	todoService := todo.NewService(todoRepo, collector)

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		TokenParser:       tokens,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxy:        cfg.TrustProxy,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		Logger:            slog.Default(),
		AuthService:       authService,
		TodoService:       todoService,
	})

	return &server{
		api: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		metrics: &http.Server{
			Addr:              ":" + cfg.MetricsPort,
			Handler:           metrics.SetupMetricsRoute(registry),
			ReadHeaderTimeout: 5 * time.Second,
		},
		rateLimiter: rateLimiter,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	return srv.run(ctx)
}

// run はctxがキャンセルされるか、いずれかのサーバーが異常終了するまでブロックする。
func (s *server) run(ctx context.Context) error {
	defer s.rateLimiter.Stop()

	apiLn, err := net.Listen("tcp", s.api.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.api.Addr, err)
	}
	metricsLn, err := net.Listen("tcp", s.metrics.Addr)
	if err != nil {
		apiLn.Close()
		return fmt.Errorf("failed to listen on %s: %w", s.metrics.Addr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("API server starting", slog.String("addr", apiLn.Addr().String()))
		errCh <- serveListener(s.api, apiLn)
	}()
	go func() {
		slog.Info("metrics server starting", slog.String("addr", metricsLn.Addr().String()))
		errCh <- serveListener(s.metrics, metricsLn)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		slog.Info("shutting down API server...")
	case serveErr = <-errCh:
		slog.Error("server listen error", slog.String("error", serveErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.api.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := s.metrics.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	if serveErr != nil {
		return serveErr
	}
	slog.Info("API server stopped gracefully")
	return nil
}

// serveListener はhttp.ErrServerClosedを正常終了として扱う。
func serveListener(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", srv.Addr, err)
	}
	return nil
}

// runInit は存在しないデータファイルをデフォルト内容で作成する。
func runInit(storage config.Storage) error {
	created, err := database.EnsureSeeded(newStore(storage))
	if err != nil {
		return fmt.Errorf("failed to initialize data files: %w", err)
	}

	slog.Info("data files initialized",
		slog.Int("created", len(created)),
		slog.String("users_file", storage.UsersFile),
		slog.String("todos_file", storage.TodosFile),
	)
	return nil
}

// runAddUser はusers.jsonにユーザーを追加する。
// サーバー停止中に実行することを想定している。
func runAddUser(storage config.Storage, args []string) error {
	parsed, err := ParseAddUserArgs(args)
	if err != nil {
		return err
	}

	userRepo := repository.NewJSONUserRepo(newStore(storage))
	// トークンを発行しないため、TokenIssuerは不要
	service := auth.NewService(userRepo, nil, nil)

	user, err := service.AddUser(context.Background(), parsed.Email, parsed.Password, parsed.Name, parsed.Hash)
	if err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	slog.Info("user added successfully",
		slog.Int("id", user.ID),
		slog.String("email", user.Email),
		slog.String("name", user.Name),
	)
	return nil
}

// checkDataFiles はデータファイルをJSON Schemaで検証し、違反をERRORログに出力して件数を返す。
func checkDataFiles(storage config.Storage) (int, error) {
	validator, err := database.NewValidator()
	if err != nil {
		return 0, fmt.Errorf("failed to load schemas: %w", err)
	}

	violations := validator.Validate(repository.StorePaths{
		UsersFile: storage.UsersFile,
		TodosFile: storage.TodosFile,
	})
	for _, v := range violations {
		slog.Error("data file violation",
			slog.String("file", v.File),
			slog.String("path", v.Path),
			slog.String("message", v.Message),
		)
	}
	return len(violations), nil
}

// runValidate はデータファイルをJSON Schemaで検証する。
// 違反がある場合はログに出力し、エラーを返す。
func runValidate(storage config.Storage) error {
	n, err := checkDataFiles(storage)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("validation failed: %d violation(s)", n)
	}

	slog.Info("data files are valid",
		slog.String("users_file", storage.UsersFile),
		slog.String("todos_file", storage.TodosFile),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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
