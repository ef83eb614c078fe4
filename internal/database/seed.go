// Package database はJSONデータファイルの初期投入とスキーマ検証を提供する。
package database

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

//go:embed seed/*.json
var seedFS embed.FS

// DefaultUsers は初期投入するユーザーを返す。
func DefaultUsers() ([]model.User, error) {
	var users []model.User
	if err := decodeSeed("seed/users.json", &users); err != nil {
		return nil, err
	}
	return users, nil
}

// DefaultTodos は初期投入するTodoを返す。
func DefaultTodos() ([]model.Todo, error) {
	var todos []model.Todo
	if err := decodeSeed("seed/todos.json", &todos); err != nil {
		return nil, err
	}
	return todos, nil
}

func decodeSeed(name string, v any) error {
	data, err := seedFS.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read seed %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse seed %s: %w", name, err)
	}
	return nil
}

// EnsureSeeded は存在しないデータファイルをデフォルト内容で作成する。
// 既存ファイルは内容に関わらず変更しない。作成したファイルのパスを返す。
func EnsureSeeded(store *repository.JSONStore) ([]string, error) {
	paths := store.Paths()
	var created []string

	ok, err := seedIfAbsent(paths.UsersFile, func() error {
		users, err := DefaultUsers()
		if err != nil {
			return err
		}
		return store.WriteUsers(users)
	})
	if err != nil {
		return created, err
	}
	if ok {
		created = append(created, paths.UsersFile)
	}

	ok, err = seedIfAbsent(paths.TodosFile, func() error {
		todos, err := DefaultTodos()
		if err != nil {
			return err
		}
		return store.WriteTodos(todos)
	})
	if err != nil {
		return created, err
	}
	if ok {
		created = append(created, paths.TodosFile)
	}

	return created, nil
}

// seedIfAbsent はpathが存在しない場合のみ親ディレクトリを作成してwriteを実行する。
func seedIfAbsent(path string, write func() error) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := write(); err != nil {
		return false, err
	}

	slog.Info("data file initialized", slog.String("path", path))
	return true, nil
}
