// Package todo はTodoの作成・更新・削除のドメインロジックを提供する。
package todo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// メトリクスの操作種別
const (
	opList   = "list"
	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// Service はTodo管理のサービス層。
// タイトルの必須・重複チェックと部分更新を担う。
type Service struct {
	repo    repository.TodoRepository
	metrics metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TodoRepository, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{repo: repo, metrics: mc}
}

// List は全Todoを保存順で返す。
func (s *Service) List(ctx context.Context) ([]model.Todo, error) {
	todos, err := s.repo.List(ctx)
	s.record(opList, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list todos: %w", err)
	}
	return todos, nil
}

// Create はTodoを作成する。completedはfalse、descriptionは未指定なら空文字になる。
func (s *Service) Create(ctx context.Context, title, description string) (*model.Todo, error) {
	if title == "" {
		s.record(opCreate, model.NewTitleRequiredError())
		return nil, model.NewTitleRequiredError()
	}

	created, err := s.repo.Add(ctx, model.Todo{
		Title:       title,
		Description: description,
		Completed:   false,
	}, uniqueTitle(title, 0))
	s.record(opCreate, err)
	if err != nil {
		return nil, wrap("failed to create todo", err)
	}

	slog.Info("todo created", slog.Int("todo_id", created.ID))
	return created, nil
}

// Update はpatchで指定されたフィールドのみを更新する。
// チェック順は タイトル必須 → タイトル重複 → 存在確認。
func (s *Service) Update(ctx context.Context, id int, patch model.TodoPatch) (*model.Todo, error) {
	if patch.Title != nil && *patch.Title == "" {
		s.record(opUpdate, model.NewTitleRequiredError())
		return nil, model.NewTitleRequiredError()
	}

	var guard repository.TodoGuard
	if patch.Title != nil {
		guard = uniqueTitle(*patch.Title, id)
	}

	updated, err := s.repo.Update(ctx, id, patch, guard)
	s.record(opUpdate, err)
	if err != nil {
		return nil, wrap("failed to update todo", err)
	}
	return updated, nil
}

// Delete は指定IDのTodoを削除し、削除したTodoを返す。
func (s *Service) Delete(ctx context.Context, id int) (*model.Todo, error) {
	deleted, err := s.repo.Delete(ctx, id)
	s.record(opDelete, err)
	if err != nil {
		return nil, wrap("failed to delete todo", err)
	}

	slog.Info("todo deleted", slog.Int("todo_id", id))
	return deleted, nil
}

// uniqueTitle は他のTodoと大文字小文字を区別せずタイトルが重複しないことを確認するガードを返す。
// excludeIDのTodoは比較対象から除く。0は除外なし。
func uniqueTitle(title string, excludeID int) repository.TodoGuard {
	return func(todos []model.Todo) error {
		for _, t := range todos {
			if t.ID != excludeID && model.SameTitle(t.Title, title) {
				return model.NewDuplicateTitleError()
			}
		}
		return nil
	}
}

func (s *Service) record(op string, err error) {
	var apiErr *model.APIError
	switch {
	case err == nil:
		s.metrics.RecordTodoOperation(op, metrics.ResultSuccess)
	case errors.As(err, &apiErr):
		s.metrics.RecordTodoOperation(op, metrics.ResultRejected)
	default:
		s.metrics.RecordTodoOperation(op, metrics.ResultError)
	}
}

// wrap はAPIErrorはそのまま返し、それ以外はメッセージを付けてラップする。
func wrap(msg string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	return fmt.Errorf("%s: %w", msg, err)
}
