// Package auth はログイン、トークンの発行・検証、ユーザー追加を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/todoman/internal/metrics"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// LoginResult はログイン成功時のレスポンス。
type LoginResult struct {
	Token string            `json:"token"`
	User  model.UserSummary `json:"user"`
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	tokens   *TokenIssuer
	metrics  metrics.MetricsCollector
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(userRepo repository.UserRepository, tokens *TokenIssuer, mc metrics.MetricsCollector) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Service{
		userRepo: userRepo,
		tokens:   tokens,
		metrics:  mc,
	}
}

// Login はメールアドレスとパスワードを照合し、トークンを発行する。
// 未登録とパスワード不一致は区別せずInvalidCredentialsを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		return nil, model.NewCredentialsRequiredError()
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !VerifyPassword(user.Password, password) {
		s.metrics.RecordLogin(metrics.LoginInvalidCredentials)
		slog.Warn("login rejected")
		return nil, model.NewInvalidCredentialsError()
	}

	token, _, err := s.tokens.Issue(*user)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginError)
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.metrics.RecordLogin(metrics.LoginSuccess)
	slog.Info("user logged in", slog.Int("user_id", user.ID))

	return &LoginResult{
		Token: token,
		User:  user.Summary(),
	}, nil
}

// AddUser はユーザーを追加する。hashがtrueの場合はパスワードをbcryptで保存する。
func (s *Service) AddUser(ctx context.Context, email, password, name string, hash bool) (*model.User, error) {
	if email == "" || password == "" {
		return nil, model.NewCredentialsRequiredError()
	}

	stored := password
	if hash {
		hashed, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		stored = hashed
	}

	user, err := s.userRepo.Create(ctx, model.User{
		Email:    email,
		Password: stored,
		Name:     name,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("user added",
		slog.Int("user_id", user.ID),
		slog.String("email", user.Email),
		slog.Bool("hashed", hash),
	)
	return user, nil
}
