// Package model はドメインモデルを定義する。
package model

// User はログイン可能なユーザーを表す。
// users.json の1レコードに対応する。
type User struct {
	ID       int    `json:"id"`
	Email    string `json:"email"`
	Password string `json:"password"` // 平文またはbcryptハッシュ
	Name     string `json:"name"`
}

// Summary はレスポンスに含めてよいユーザー情報を返す。
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
	}
}

// UserSummary はパスワードを除いたユーザー情報。
type UserSummary struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Principal はトークンから復元した認証済みユーザー。
// トークン発行時点の情報であり、users.json の最新状態とは限らない。
type Principal struct {
	UserID int
	Email  string
	Name   string
}
