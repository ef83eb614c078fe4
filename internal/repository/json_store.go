package repository

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
)

// Collection はデータファイル単位のコレクション種別。
type Collection string

const (
	// CollectionUsers は users.json に対応する。
	CollectionUsers Collection = "users"
	// CollectionTodos は todos.json に対応する。
	CollectionTodos Collection = "todos"
)

// StorePaths はコレクションごとのデータファイルパス。
// インスタンスごとに指定するため、テストでは一時ディレクトリを使える。
type StorePaths struct {
	UsersFile string
	TodosFile string
}

// StoreOption はJSONStoreのオプション。
type StoreOption func(*JSONStore)

// WithClock は採番時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) StoreOption {
	return func(s *JSONStore) {
		s.now = now
	}
}

// WithMetrics はメトリクスコレクタを設定する。
func WithMetrics(m metrics.MetricsCollector) StoreOption {
	return func(s *JSONStore) {
		if m != nil {
			s.metrics = m
		}
	}
}

// JSONStore はコレクション全体をJSON配列として1ファイルに保存するストア。
// 変更は常に「全件読み込み → 変更 → 全件上書き」で行う。
//
// 読み込み失敗（ファイルなし・パース失敗）は空配列として扱い、呼び出し元には返さない。
// 書き込み失敗はエラーとして返す。
//
// コレクションごとのミューテックスで読み込みから書き込みまでを直列化する。
// 同一プロセス内の同時更新による採番重複や更新消失は起きないが、
// 複数プロセスが同じファイルを共有した場合は後勝ちになる。
type JSONStore struct {
	paths   StorePaths
	usersMu sync.Mutex
	todosMu sync.Mutex
	now     func() time.Time
	metrics metrics.MetricsCollector
}

// NewJSONStore はJSONStoreを生成する。
func NewJSONStore(paths StorePaths, opts ...StoreOption) *JSONStore {
	s := &JSONStore{
		paths:   paths,
		now:     time.Now,
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths はデータファイルのパスを返す。
func (s *JSONStore) Paths() StorePaths {
	return s.paths
}

// Now はストアの時計で現在時刻を返す。
func (s *JSONStore) Now() time.Time {
	return s.now()
}

// ReadUsers は users.json の全件を返す。失敗時は空配列。
func (s *JSONStore) ReadUsers() []model.User {
	return readAll[model.User](s, CollectionUsers, s.paths.UsersFile)
}

// ReadTodos は todos.json の全件を返す。失敗時は空配列。
func (s *JSONStore) ReadTodos() []model.Todo {
	return readAll[model.Todo](s, CollectionTodos, s.paths.TodosFile)
}

// WriteUsers は users.json を全件上書きする。
func (s *JSONStore) WriteUsers(users []model.User) error {
	return writeAll(s, CollectionUsers, s.paths.UsersFile, users)
}

// WriteTodos は todos.json を全件上書きする。
func (s *JSONStore) WriteTodos(todos []model.Todo) error {
	return writeAll(s, CollectionTodos, s.paths.TodosFile, todos)
}

// withLock はコレクションのロックを取得してfnを実行する。
func (s *JSONStore) withLock(c Collection, fn func() error) error {
	mu := &s.todosMu
	if c == CollectionUsers {
		mu = &s.usersMu
	}
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// readAll はファイルからコレクション全件を読み込む。
// 読み込み・パースに失敗した場合はWARNログを出して空配列を返す。
func readAll[T any](s *JSONStore, c Collection, path string) []T {
	data, err := os.ReadFile(path)
	if err != nil {
		s.readFailed(c, path, err)
		return []T{}
	}

	var records []T
	if err := json.Unmarshal(data, &records); err != nil {
		// 型の合わないレコードは手編集の誤りとみなし、次の書き込みで失われることを知らせる
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			slog.Error("collection has a record of the wrong type, treating as empty until fixed",
				slog.String("collection", string(c)),
				slog.String("path", path),
				slog.String("field", typeErr.Field),
				slog.String("error", err.Error()),
			)
			s.metrics.RecordStoreReadFailure(string(c))
			return []T{}
		}
		s.readFailed(c, path, err)
		return []T{}
	}
	if records == nil {
		return []T{}
	}
	return records
}

func (s *JSONStore) readFailed(c Collection, path string, err error) {
	slog.Warn("failed to read collection, treating as empty",
		slog.String("collection", string(c)),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
	s.metrics.RecordStoreReadFailure(string(c))
}

// writeAll はコレクション全件を2スペースインデントのJSON配列として上書き保存する。
func writeAll[T any](s *JSONStore, c Collection, path string, records []T) error {
	if records == nil {
		records = []T{}
	}

	start := time.Now()
	err := writeJSONFile(path, records)
	s.metrics.RecordStoreWrite(string(c), time.Since(start), err)
	if err != nil {
		slog.Error("failed to write collection",
			slog.String("collection", string(c)),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to write %s: %w", c, err)
	}
	return nil
}

// writeJSONFile は値をインデント付きJSONでファイルに書き込む。
// HTMLエスケープは行わず、末尾改行も付けない。
func writeJSONFile(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}

	if err := os.WriteFile(path, bytes.TrimRight(buf.Bytes(), "\n"), 0o644); err != nil {
		return err
	}
	return nil
}

// nextID は max(ids ∪ {0}) + 1 を返す。
func nextID(ids []int) int {
	maxID := 0
	for _, id := range ids {
		if id > maxID {
			maxID = id
		}
	}
	return maxID + 1
}
