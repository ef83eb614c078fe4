package repository

import (
	"context"

	"github.com/hitoshi/todoman/internal/model"
)

// JSONUserRepo はusers.jsonを使ったUserRepositoryの実装。
type JSONUserRepo struct {
	store *JSONStore
}

// NewJSONUserRepo は新しいJSONUserRepoを生成する。
func NewJSONUserRepo(store *JSONStore) *JSONUserRepo {
	return &JSONUserRepo{store: store}
}

// FindByEmail はメールアドレスの完全一致でユーザーを検索する。
func (r *JSONUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, u := range r.store.ReadUsers() {
		if u.Email == email {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

// FindByID は指定IDのユーザーを取得する。
func (r *JSONUserRepo) FindByID(ctx context.Context, id int) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, u := range r.store.ReadUsers() {
		if u.ID == id {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}

// List は全ユーザーを返す。
func (r *JSONUserRepo) List(ctx context.Context) ([]model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.store.ReadUsers(), nil
}

// Create はユーザーを追加する。
func (r *JSONUserRepo) Create(ctx context.Context, user model.User) (*model.User, error) {
	var created model.User
	err := r.store.withLock(CollectionUsers, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		users := r.store.ReadUsers()
		ids := make([]int, len(users))
		for i, u := range users {
			if u.Email == user.Email {
				return model.NewDuplicateUserError(user.Email)
			}
			ids[i] = u.ID
		}

		created = user
		created.ID = nextID(ids)

		return r.store.WriteUsers(append(users, created))
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}
