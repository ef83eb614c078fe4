// Package repository はデータ永続化のインターフェースとJSONファイル実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/todoman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByEmail はメールアドレス（大文字小文字を区別）でユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int) (*model.User, error)

	// List は全ユーザーを返す。
	List(ctx context.Context) ([]model.User, error)

	// Create はユーザーを追加する。IDは既存の最大値+1を採番する。
	// 同じメールアドレスのユーザーが存在する場合はDUPLICATE_USERエラーを返す。
	Create(ctx context.Context, user model.User) (*model.User, error)
}

// TodoGuard は書き込み直前のTodoコレクション全体を検査する関数。
// エラーを返した場合、書き込みは行われずそのエラーが呼び出し元に返る。
// コレクションのロック内で呼ばれるため、検査と書き込みの間に他の更新は割り込まない。
type TodoGuard func(todos []model.Todo) error

// TodoRepository はTodoデータの永続化インターフェース。
type TodoRepository interface {
	// List は全Todoを保存順で返す。
	List(ctx context.Context) ([]model.Todo, error)

	// FindByID は指定IDのTodoを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int) (*model.Todo, error)

	// Add はTodoを追加する。IDは max(既存ID, 0)+1、CreatedAtは現在時刻を設定する。
	Add(ctx context.Context, todo model.Todo, guard TodoGuard) (*model.Todo, error)

	// Update はpatchで指定されたフィールドのみをマージする。
	// guardの検査後にIDで検索し、存在しない場合はTODO_NOT_FOUNDエラーを返す。
	Update(ctx context.Context, id int, patch model.TodoPatch, guard TodoGuard) (*model.Todo, error)

	// Delete は指定IDのTodoを削除し、削除したレコードを返す。
	// 存在しない場合はTODO_NOT_FOUNDエラーを返す。
	Delete(ctx context.Context, id int) (*model.Todo, error)
}
