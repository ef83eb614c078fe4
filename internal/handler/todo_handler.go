package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/todoman/internal/middleware"
	"github.com/hitoshi/todoman/internal/model"
)

// TodoServiceInterface はTodoハンドラーが必要とするサービスインターフェース。
type TodoServiceInterface interface {
	List(ctx context.Context) ([]model.Todo, error)
	Create(ctx context.Context, title, description string) (*model.Todo, error)
	Update(ctx context.Context, id int, patch model.TodoPatch) (*model.Todo, error)
	Delete(ctx context.Context, id int) (*model.Todo, error)
}

// TodoHandler はTodo管理のHTTPハンドラー。
type TodoHandler struct {
	service TodoServiceInterface
}

// NewTodoHandler はTodoHandlerを生成する。
func NewTodoHandler(service TodoServiceInterface) *TodoHandler {
	return &TodoHandler{service: service}
}

// createTodoRequest はTodo作成リクエストのボディ。
// titleのnullは未指定と同じく空文字として扱う。
type createTodoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

// optionalString はJSONでキーが存在したか、nullだったかを区別する文字列。
type optionalString struct {
	Set   bool
	Null  bool
	Value string
}

// UnmarshalJSON はjson.Unmarshalerを実装する。キーが存在した場合のみ呼ばれる。
func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(data, []byte("null")) {
		o.Null = true
		return nil
	}
	return json.Unmarshal(data, &o.Value)
}

// updateTodoRequest はTodo更新リクエストのボディ。
// completedのnullは未指定として扱う。
type updateTodoRequest struct {
	Title       optionalString `json:"title"`
	Description optionalString `json:"description"`
	Completed   *bool          `json:"completed"`
}

// toPatch はリクエストを部分更新内容に変換する。
// titleのnullは空文字となりタイトル必須エラーになる。descriptionのnullは空文字にする。
func (req updateTodoRequest) toPatch() model.TodoPatch {
	var patch model.TodoPatch
	if req.Title.Set {
		title := req.Title.Value
		patch.Title = &title
	}
	if req.Description.Set {
		description := req.Description.Value
		patch.Description = &description
	}
	patch.Completed = req.Completed
	return patch
}

// deleteTodoResponse はTodo削除のレスポンス。
type deleteTodoResponse struct {
	Message string     `json:"message"`
	Todo    model.Todo `json:"todo"`
}

// ListTodos は全Todoを返す。
// GET /todos
func (h *TodoHandler) ListTodos(w http.ResponseWriter, r *http.Request) {
	todos, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if todos == nil {
		todos = []model.Todo{}
	}

	writeJSON(w, http.StatusOK, todos)
}

// CreateTodo はTodoを作成する。
// POST /todos
func (h *TodoHandler) CreateTodo(w http.ResponseWriter, r *http.Request) {
	var req createTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var title, description string
	if req.Title != nil {
		title = *req.Title
	}
	if req.Description != nil {
		description = *req.Description
	}

	todo, err := h.service.Create(r.Context(), title, description)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, todo)
}

// UpdateTodo はTodoを部分更新する。
// PUT /todos/{id}
func (h *TodoHandler) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := todoIDParam(w, r)
	if !ok {
		return
	}

	var req updateTodoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	todo, err := h.service.Update(r.Context(), id, req.toPatch())
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, todo)
}

// DeleteTodo はTodoを削除し、削除したTodoを返す。
// DELETE /todos/{id}
func (h *TodoHandler) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	id, ok := todoIDParam(w, r)
	if !ok {
		return
	}

	todo, err := h.service.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deleteTodoResponse{
		Message: model.MsgTodoDeleted,
		Todo:    *todo,
	})
}

// todoIDParam はURLの{id}を整数として取り出す。
// 数値でないIDに一致するTodoは存在しないため404を返す。
func todoIDParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewTodoNotFoundError())
		return 0, false
	}
	return id, true
}
