// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, todo, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeMissingToken       = "MISSING_TOKEN"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeDuplicateTitle     = "DUPLICATE_TITLE"
	ErrCodeTodoNotFound       = "TODO_NOT_FOUND"
	ErrCodeDuplicateUser      = "DUPLICATE_USER"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// クライアントに返すメッセージ。既存フロントエンドが文字列一致で判定しているため変更しないこと。
const (
	MsgCredentialsRequired = "Email and password are required"
	MsgInvalidCredentials  = "Invalid credentials"
	MsgAccessTokenRequired = "Access token required"
	MsgInvalidToken        = "Invalid token"
	MsgTitleRequired       = "Title is required"
	MsgDuplicateTitle      = "A todo with this title already exists"
	MsgTodoNotFound        = "Todo not found"
	MsgTodoDeleted         = "Todo deleted successfully"
	MsgInvalidRequestBody  = "Invalid request body"
	MsgTooManyRequests     = "Too many requests"
	MsgInternalError       = "Internal server error"
)

// NewCredentialsRequiredError はメールアドレスまたはパスワード未入力エラーを生成する。
func NewCredentialsRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  MsgCredentialsRequired,
		Category: "validation",
		Action:   "Enter both email and password.",
	}
}

// NewInvalidCredentialsError は認証情報不一致エラーを生成する。
// メールアドレスの存在有無を推測させないため、未登録と不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  MsgInvalidCredentials,
		Category: "auth",
		Action:   "Check your email and password.",
	}
}

// NewMissingTokenError はアクセストークン未指定エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  MsgAccessTokenRequired,
		Category: "auth",
		Action:   "Log in and send the token in the Authorization header.",
	}
}

// NewInvalidTokenError は署名不正・期限切れトークンのエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  MsgInvalidToken,
		Category: "auth",
		Action:   "Log in again.",
	}
}

// NewTitleRequiredError はタイトル未入力エラーを生成する。
func NewTitleRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  MsgTitleRequired,
		Category: "validation",
		Action:   "Enter a title.",
	}
}

// NewDuplicateTitleError はタイトル重複エラーを生成する。
func NewDuplicateTitleError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateTitle,
		Message:  MsgDuplicateTitle,
		Category: "validation",
		Action:   "Choose a different title.",
	}
}

// NewTodoNotFoundError はTodo未検出エラーを生成する。
func NewTodoNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeTodoNotFound,
		Message:  MsgTodoNotFound,
		Category: "todo",
		Action:   "Reload the list and try again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  MsgInvalidRequestBody,
		Category: "validation",
		Action:   "Send a valid JSON body.",
	}
}

// NewDuplicateUserError は同一メールアドレスのユーザーが既に存在する場合のエラーを生成する。
func NewDuplicateUserError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  fmt.Sprintf("User already exists with this email: %s", email),
		Category: "auth",
		Action:   "Use a different email address.",
	}
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  MsgTooManyRequests,
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}

// NewInternalError は内部エラーの統一レスポンス用エラーを生成する。
// 詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  MsgInternalError,
		Category: "system",
		Action:   "Please try again later.",
	}
}
