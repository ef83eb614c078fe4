package database

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBaseURL = "https://todoman.local/schemas/"

// Violation はデータファイルの検証違反1件を表す。
type Violation struct {
	File    string // 対象ファイルのパス
	Path    string // JSON Pointer形式の位置（例: /0/title）
	Message string
}

// String は "file#path: message" 形式の文字列を返す。
func (v Violation) String() string {
	if v.Path == "" {
		return fmt.Sprintf("%s: %s", v.File, v.Message)
	}
	return fmt.Sprintf("%s#%s: %s", v.File, v.Path, v.Message)
}

// Validator はusers.json / todos.json をJSON Schemaと重複チェックで検証する。
type Validator struct {
	users *jsonschema.Schema
	todos *jsonschema.Schema
}

// NewValidator は埋め込みスキーマをコンパイルしてValidatorを生成する。
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	users, err := compileSchema(compiler, "users.schema.json")
	if err != nil {
		return nil, err
	}
	todos, err := compileSchema(compiler, "todos.schema.json")
	if err != nil {
		return nil, err
	}

	return &Validator{users: users, todos: todos}, nil
}

func compileSchema(compiler *jsonschema.Compiler, name string) (*jsonschema.Schema, error) {
	data, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
	}

	url := schemaBaseURL + name
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return schema, nil
}

// Validate は両データファイルを検証し、違反を返す。
// ファイルが存在しない場合も違反として扱う。
func (v *Validator) Validate(paths repository.StorePaths) []Violation {
	var violations []Violation
	violations = append(violations, v.validateFile(paths.UsersFile, v.users, checkUsers)...)
	violations = append(violations, v.validateFile(paths.TodosFile, v.todos, checkTodos)...)
	return violations
}

// validateFile はスキーマ検証を行い、合格した場合のみ重複チェックを行う。
func (v *Validator) validateFile(path string, schema *jsonschema.Schema, check func(path string, data []byte) []Violation) []Violation {
	data, err := os.ReadFile(path)
	if err != nil {
		return []Violation{{File: path, Message: fmt.Sprintf("failed to read file: %v", err)}}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return []Violation{{File: path, Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	if err := schema.Validate(doc); err != nil {
		return schemaViolations(path, err)
	}

	return check(path, data)
}

// schemaViolations はValidationErrorの末端の原因を違反として展開する。
func schemaViolations(path string, err error) []Violation {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []Violation{{File: path, Message: err.Error()}}
	}

	var violations []Violation
	var collect func(e *jsonschema.ValidationError)
	collect = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			violations = append(violations, Violation{
				File:    path,
				Path:    e.InstanceLocation,
				Message: e.Message,
			})
			return
		}
		for _, cause := range e.Causes {
			collect(cause)
		}
	}
	collect(ve)
	return violations
}

// checkUsers はidとemailの重複を検出する。
func checkUsers(path string, data []byte) []Violation {
	var users []model.User
	if err := json.Unmarshal(data, &users); err != nil {
		return []Violation{{File: path, Message: fmt.Sprintf("invalid users: %v", err)}}
	}

	var violations []Violation
	ids := make(map[int]bool, len(users))
	emails := make(map[string]bool, len(users))
	for i, u := range users {
		if ids[u.ID] {
			violations = append(violations, Violation{File: path, Path: fmt.Sprintf("/%d/id", i), Message: fmt.Sprintf("duplicate id %d", u.ID)})
		}
		ids[u.ID] = true

		if emails[u.Email] {
			violations = append(violations, Violation{File: path, Path: fmt.Sprintf("/%d/email", i), Message: fmt.Sprintf("duplicate email %q", u.Email)})
		}
		emails[u.Email] = true
	}
	return violations
}

// checkTodos はidの重複と、大文字小文字を区別しないタイトルの重複を検出する。
func checkTodos(path string, data []byte) []Violation {
	var todos []model.Todo
	if err := json.Unmarshal(data, &todos); err != nil {
		return []Violation{{File: path, Message: fmt.Sprintf("invalid todos: %v", err)}}
	}

	var violations []Violation
	ids := make(map[int]bool, len(todos))
	titles := make(map[string]bool, len(todos))
	for i, t := range todos {
		if ids[t.ID] {
			violations = append(violations, Violation{File: path, Path: fmt.Sprintf("/%d/id", i), Message: fmt.Sprintf("duplicate id %d", t.ID)})
		}
		ids[t.ID] = true

		key := strings.ToLower(t.Title)
		if titles[key] {
			violations = append(violations, Violation{File: path, Path: fmt.Sprintf("/%d/title", i), Message: fmt.Sprintf("duplicate title %q", t.Title)})
		}
		titles[key] = true
	}
	return violations
}
