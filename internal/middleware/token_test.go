package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/todoman/internal/model"
)

// --- モック定義 ---

type mockTokenParser struct {
	parseFn func(token string) (*model.Principal, error)
}

func (m *mockTokenParser) Parse(token string) (*model.Principal, error) {
	if m.parseFn != nil {
		return m.parseFn(token)
	}
	return nil, errors.New("invalid token")
}

var _ TokenParser = (*mockTokenParser)(nil)

// validParser は "valid-token" のみを受け付けるパーサー。
func validParser() *mockTokenParser {
	return &mockTokenParser{
		parseFn: func(token string) (*model.Principal, error) {
			if token == "valid-token" {
				return &model.Principal{UserID: 7, Email: "test@example.com", Name: "Test User"}, nil
			}
			return nil, errors.New("invalid token")
		},
	}
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

// --- テスト ---

func TestTokenMiddleware_ValidToken_InjectsPrincipal(t *testing.T) {
	var captured *model.Principal
	handler := NewTokenMiddleware(validParser())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := PrincipalFromContext(r.Context())
		if err != nil {
			t.Fatalf("PrincipalFromContext() error = %v", err)
		}
		captured = p
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/todos", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if captured == nil || captured.UserID != 7 || captured.Email != "test@example.com" {
		t.Errorf("principal = %+v", captured)
	}
}

func TestTokenMiddleware_MissingToken_Returns401(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"scheme only", "Bearer"},
		{"empty token", "Bearer   "},
		{"other scheme", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewTokenMiddleware(validParser())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/todos", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			body := decodeErrorBody(t, w)
			if body.Message != "Access token required" {
				t.Errorf("message = %q, want %q", body.Message, "Access token required")
			}
		})
	}
}

func TestTokenMiddleware_InvalidToken_Returns403(t *testing.T) {
	handler := NewTokenMiddleware(validParser())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/todos", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	body := decodeErrorBody(t, w)
	if body.Message != "Invalid token" || body.Code != model.ErrCodeInvalidToken {
		t.Errorf("body = %+v", body)
	}
}

func TestTokenMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	handler := NewTokenMiddleware(validParser())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/todos", nil)
	req.Header.Set("Authorization", "bearer valid-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestPrincipalFromContext_Missing(t *testing.T) {
	if _, err := PrincipalFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}
}

func TestContextWithPrincipal_RoundTrip(t *testing.T) {
	ctx := ContextWithPrincipal(context.Background(), &model.Principal{UserID: 3})

	p, err := PrincipalFromContext(ctx)
	if err != nil {
		t.Fatalf("PrincipalFromContext() error = %v", err)
	}
	if p.UserID != 3 {
		t.Errorf("UserID = %d, want 3", p.UserID)
	}
}
