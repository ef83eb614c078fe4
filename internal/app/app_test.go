package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/todoman/internal/auth"
	"github.com/hitoshi/todoman/internal/config"
	"github.com/hitoshi/todoman/internal/repository"
)

// setTestEnv は一時ディレクトリをデータディレクトリとする環境変数を設定し、そのパスを返す。
func setTestEnv(t *testing.T) string {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	for _, key := range []string{
		"CONFIG_FILE", "USERS_FILE", "TODOS_FILE", "TOKEN_TTL", "TRUST_PROXY",
		"RATE_LIMIT_GENERAL", "RATE_LIMIT_LOGIN", "CORS_ALLOWED_ORIGIN", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("JWT_SECRET", "test-jwt-secret")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("SERVER_PORT", "0")
	t.Setenv("METRICS_PORT", "0")
	return dir
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.JWTSecret != "test-jwt-secret" {
		t.Errorf("JWTSecret = %q", cfg.JWTSecret)
	}

	// グローバルロガーがJSON出力になっていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_AppliesLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "error")

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected no output at ERROR level, got %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("JWT_SECRET", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing JWT_SECRET, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestRun_ServeWithMissingSecret_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("JWT_SECRET", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing JWT_SECRET should return error")
	}
}

func TestRun_Init_CreatesDataFiles(t *testing.T) {
	dir := setTestEnv(t)
	t.Setenv("JWT_SECRET", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"init"}); err != nil {
		t.Fatalf("Run(init) error = %v", err)
	}

	for _, name := range []string{"users.json", "todos.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s should exist: %v", name, err)
		}
	}
}

func TestRun_AddUser(t *testing.T) {
	dir := setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"adduser", "john@example.com", "password123", "John Doe"}); err != nil {
		t.Fatalf("Run(adduser) error = %v", err)
	}

	store := repository.NewJSONStore(repository.StorePaths{
		UsersFile: filepath.Join(dir, "users.json"),
		TodosFile: filepath.Join(dir, "todos.json"),
	})
	users := store.ReadUsers()
	if len(users) != 1 || users[0].ID != 1 || users[0].Password != "password123" {
		t.Fatalf("users = %+v", users)
	}

	// 同じメールアドレスは追加できない
	if err := Run(&buf, []string{"adduser", "john@example.com", "other", "John"}); err == nil {
		t.Error("duplicate adduser should return error")
	}
}

func TestRun_AddUser_Hash(t *testing.T) {
	dir := setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"adduser", "jane@example.com", "secret", "Jane", "--hash"}); err != nil {
		t.Fatalf("Run(adduser --hash) error = %v", err)
	}

	store := repository.NewJSONStore(repository.StorePaths{UsersFile: filepath.Join(dir, "users.json")})
	users := store.ReadUsers()
	if len(users) != 1 {
		t.Fatalf("len(users) = %d, want 1", len(users))
	}
	if !auth.IsHashed(users[0].Password) {
		t.Errorf("password should be hashed, got %q", users[0].Password)
	}
	if !auth.VerifyPassword(users[0].Password, "secret") {
		t.Error("hashed password should verify")
	}
}

func TestRun_AddUser_Usage(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"adduser", "john@example.com"})
	if err == nil || !strings.Contains(err.Error(), "usage") {
		t.Fatalf("error = %v, want usage error", err)
	}
}

func TestRun_Validate(t *testing.T) {
	dir := setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"init"}); err != nil {
		t.Fatalf("Run(init) error = %v", err)
	}
	if err := Run(&buf, []string{"validate"}); err != nil {
		t.Fatalf("Run(validate) on seeded files error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "todos.json"), []byte(`[{"id":1}]`), 0o644); err != nil {
		t.Fatalf("failed to write todos: %v", err)
	}
	buf.Reset()
	err := Run(&buf, []string{"validate"})
	if err == nil {
		t.Fatal("Run(validate) on broken file should return error")
	}
	if !strings.Contains(buf.String(), "data file violation") {
		t.Errorf("violations should be logged, got %s", buf.String())
	}
}

func TestRunHealthcheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	if err := runHealthcheck(serverPort(t, healthy)); err != nil {
		t.Errorf("runHealthcheck() error = %v", err)
	}

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	if err := runHealthcheck(serverPort(t, unhealthy)); err == nil {
		t.Error("runHealthcheck() should fail on 503")
	}
}

func serverPort(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}
	return u.Port()
}

// --- サーバー構成 ---

func newTestServer(t *testing.T) (*server, string) {
	t.Helper()
	dir := setTestEnv(t)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	srv, err := newServer(cfg)
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	t.Cleanup(srv.rateLimiter.Stop)
	return srv, dir
}

func TestNewServer_SeedsDataAndServesAPI(t *testing.T) {
	srv, dir := newTestServer(t)

	if _, err := os.Stat(filepath.Join(dir, "todos.json")); err != nil {
		t.Fatalf("todos.json should be seeded: %v", err)
	}

	body := strings.NewReader(`{"email":"user@example.com","password":"Mm12345!"}`)
	w := httptest.NewRecorder()
	srv.api.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", body))
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", w.Code, w.Body.String())
	}
	var login auth.LoginResult
	if err := json.NewDecoder(w.Body).Decode(&login); err != nil {
		t.Fatalf("failed to decode login: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/todos", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w = httptest.NewRecorder()
	srv.api.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}

	// メトリクスエンドポイントにアプリケーションのメトリクスが出ること
	w = httptest.NewRecorder()
	srv.metrics.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	for _, name := range []string{"todoman_http_status_total", "todoman_login_total", "todoman_todo_operations_total", "go_goroutines"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("metrics output should contain %s", name)
		}
	}
}

func TestNewServer_InvalidDataFiles_LogsViolations(t *testing.T) {
	dir := setTestEnv(t)
	if err := os.WriteFile(filepath.Join(dir, "todos.json"), []byte(`[{"id":"3"}]`), 0o644); err != nil {
		t.Fatalf("failed to write todos: %v", err)
	}

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	srv, err := newServer(cfg)
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	t.Cleanup(srv.rateLimiter.Stop)

	for _, want := range []string{"data file violation", "serving with invalid data files"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log should contain %q, got %s", want, buf.String())
		}
	}
}

func TestServer_Run_StopsOnContextCancel(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.api.Addr = "127.0.0.1:0"
	srv.metrics.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestServer_Run_PortInUse_ReturnsError(t *testing.T) {
	srv, _ := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()

	srv.api.Addr = ln.Addr().String()
	srv.metrics.Addr = "127.0.0.1:0"

	if err := srv.run(context.Background()); err == nil {
		t.Fatal("run() should fail when the port is in use")
	}
}
