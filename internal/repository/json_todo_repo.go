package repository

import (
	"context"

	"github.com/hitoshi/todoman/internal/model"
)

// JSONTodoRepo はtodos.jsonを使ったTodoRepositoryの実装。
type JSONTodoRepo struct {
	store *JSONStore
}

// NewJSONTodoRepo は新しいJSONTodoRepoを生成する。
func NewJSONTodoRepo(store *JSONStore) *JSONTodoRepo {
	return &JSONTodoRepo{store: store}
}

// List は全Todoを保存順で返す。
func (r *JSONTodoRepo) List(ctx context.Context) ([]model.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.ReadTodos(), nil
}

// FindByID は指定IDのTodoを取得する。見つからない場合はnilを返す。
func (r *JSONTodoRepo) FindByID(ctx context.Context, id int) (*model.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	todos := r.store.ReadTodos()
	if i := indexOfTodo(todos, id); i >= 0 {
		found := todos[i]
		return &found, nil
	}
	return nil, nil
}

// Add はTodoを追加する。
func (r *JSONTodoRepo) Add(ctx context.Context, todo model.Todo, guard TodoGuard) (*model.Todo, error) {
	var created model.Todo
	err := r.store.withLock(CollectionTodos, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		todos := r.store.ReadTodos()
		if guard != nil {
			if err := guard(todos); err != nil {
				return err
			}
		}

		ids := make([]int, len(todos))
		for i, t := range todos {
			ids[i] = t.ID
		}

		created = todo
		created.ID = nextID(ids)
		created.CreatedAt = model.NewTimestamp(r.store.Now())

		return r.store.WriteTodos(append(todos, created))
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// Update はpatchで指定されたフィールドのみをマージする。
func (r *JSONTodoRepo) Update(ctx context.Context, id int, patch model.TodoPatch, guard TodoGuard) (*model.Todo, error) {
	var updated model.Todo
	err := r.store.withLock(CollectionTodos, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		todos := r.store.ReadTodos()
		if guard != nil {
			if err := guard(todos); err != nil {
				return err
			}
		}

		i := indexOfTodo(todos, id)
		if i < 0 {
			return model.NewTodoNotFoundError()
		}

		updated = patch.ApplyTo(todos[i])
		todos[i] = updated

		return r.store.WriteTodos(todos)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete は指定IDのTodoを削除し、削除したレコードを返す。
func (r *JSONTodoRepo) Delete(ctx context.Context, id int) (*model.Todo, error) {
	var deleted model.Todo
	err := r.store.withLock(CollectionTodos, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		todos := r.store.ReadTodos()
		i := indexOfTodo(todos, id)
		if i < 0 {
			return model.NewTodoNotFoundError()
		}

		deleted = todos[i]
		remaining := append(todos[:i:i], todos[i+1:]...)

		return r.store.WriteTodos(remaining)
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

func indexOfTodo(todos []model.Todo, id int) int {
	for i, t := range todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}
