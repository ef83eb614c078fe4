// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayout はcreatedAtの書式。ミリ秒精度のUTC（例: 2024-01-01T00:00:00.000Z）。
const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp はJSON上でミリ秒精度のISO-8601文字列として表現される時刻。
type Timestamp struct {
	time.Time
}

// NewTimestamp はUTCに正規化したTimestampを生成する。
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// MarshalJSON はjson.Marshalerを実装する。
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.Time.UTC().Format(timestampLayout) + `"`), nil
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
// 小数秒の桁数やタイムゾーン表記の違いは許容する。
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		ts.Time = time.Time{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	ts.Time = t.UTC()
	return nil
}

// Todo はtodos.json の1レコードを表す。
type Todo struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   Timestamp `json:"createdAt"`
}

// TodoPatch はTodoの部分更新内容。
// nilのフィールドは変更しない。
type TodoPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

// ApplyTo はpatchで指定されたフィールドのみをtodoに上書きしたコピーを返す。
// ID と CreatedAt は変更しない。
func (p TodoPatch) ApplyTo(todo Todo) Todo {
	if p.Title != nil {
		todo.Title = *p.Title
	}
	if p.Description != nil {
		todo.Description = *p.Description
	}
	if p.Completed != nil {
		todo.Completed = *p.Completed
	}
	return todo
}

// SameTitle はタイトルが大文字小文字を区別せずに一致するかを返す。
// 小文字化した結果を比較するため、ケースフォールディングでのみ一致する文字は区別する。
func SameTitle(a, b string) bool {
	return strings.ToLower(a) == strings.ToLower(b)
}
