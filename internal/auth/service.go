// Package auth はOAuthログインからセッショントークン発行までの受け渡しと、トークン検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hitoshi/notekeeper/internal/model"
	"github.com/hitoshi/notekeeper/internal/repository"
)

var (
	// ErrUserNotFound はトークンのユーザーが存在しないか無効化されていることを表す。
	ErrUserNotFound = errors.New("user not found or inactive")
	// ErrAccountDisabled は無効化されたユーザーのログインを表す。
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUnknownProvider は未登録のOAuthプロバイダーを表す。
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrCodeExchange は認可コードの交換またはプロフィール取得の失敗を表す。
	ErrCodeExchange = errors.New("oauth code exchange failed")
)

// ログイン失敗時にフロントエンドへ渡すエラーコード
const (
	LoginErrorInvalidState    = "invalid_state"
	LoginErrorOAuthFailed     = "oauth_failed"
	LoginErrorAuthFailed      = "auth_failed"
	LoginErrorAccountDisabled = "account_disabled"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// プロバイダーを追加しても呼び出し側は変更しない。
type OAuthProvider interface {
	// Name はプロバイダー名を返す（"google" 等）。
	Name() string
	// GetLoginURL は同意画面への認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードを交換し、検証済みプロフィールを取得する。
	ExchangeCode(ctx context.Context, code string) (*model.Identity, error)
}

// LoginRecorder はログイン結果を記録するメトリクスのインターフェース。
type LoginRecorder interface {
	RecordLogin(result string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	FrontendURL string // ログイン後のリダイレクト先のオリジン
}

// LoginResult はログイン完了時の結果。
type LoginResult struct {
	User        *model.User
	Token       *IssuedToken
	Created     bool   // 初回ログインでユーザーを作成した場合true
	RedirectURL string // トークンをクエリパラメータに載せたフロントエンドのURL
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers map[string]OAuthProvider
	users     repository.UserRepository
	tokens    *TokenIssuer
	metrics   LoginRecorder
	config    ServiceConfig
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	users repository.UserRepository,
	tokens *TokenIssuer,
	metrics LoginRecorder,
	config ServiceConfig,
	providers ...OAuthProvider,
) *Service {
	byName := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		providers: byName,
		users:     users,
		tokens:    tokens,
		metrics:   metrics,
		config:    config,
		now:       time.Now,
	}
}

func (s *Service) provider(name string) (OAuthProvider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// GetLoginURL は指定プロバイダーの認証URLを生成する。この時点ではサーバー側に状態を作らない。
func (s *Service) GetLoginURL(providerName, state string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback は認可コードを交換し、ログインを完了する。
func (s *Service) HandleCallback(ctx context.Context, providerName, code string) (*LoginResult, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	identity, err := p.ExchangeCode(ctx, code)
	if err != nil {
		s.recordLogin(LoginErrorOAuthFailed)
		return nil, fmt.Errorf("%w: %w", ErrCodeExchange, err)
	}

	return s.CompleteLogin(ctx, identity)
}

// CompleteLogin は検証済みプロフィールからユーザーを作成または更新し、セッショントークンを発行する。
// 無効化されたユーザーにはトークンを発行しない。
func (s *Service) CompleteLogin(ctx context.Context, identity *model.Identity) (*LoginResult, error) {
	if identity == nil || identity.ProviderUserID == "" || identity.Email == "" {
		s.recordLogin(LoginErrorAuthFailed)
		return nil, fmt.Errorf("incomplete identity from provider")
	}

	user, created, err := s.users.UpsertByIdentity(ctx, identity, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		s.recordLogin(LoginErrorAuthFailed)
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	if !user.IsActive {
		s.recordLogin(LoginErrorAccountDisabled)
		slog.Warn("login rejected for disabled user", slog.String("user_id", user.ID))
		return nil, ErrAccountDisabled
	}

	issued, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		s.recordLogin(LoginErrorAuthFailed)
		return nil, err
	}

	if created {
		slog.Info("new user created",
			slog.String("user_id", user.ID),
			slog.String("provider", identity.Provider),
		)
	} else {
		slog.Info("existing user logged in",
			slog.String("user_id", user.ID),
			slog.String("provider", identity.Provider),
		)
	}
	s.recordLogin("success")

	return &LoginResult{
		User:        user,
		Token:       issued,
		Created:     created,
		RedirectURL: s.callbackURL(issued.Token),
	}, nil
}

// callbackURL はOAuthリダイレクトとクライアントの間で共有ストアを持たないため、
// トークンをクエリパラメータに載せてフロントエンドへ渡す。
func (s *Service) callbackURL(token string) string {
	return s.config.FrontendURL + "/auth/callback?" + url.Values{"token": {token}}.Encode()
}

// LoginFailureCode はコールバック処理のエラーをフロントエンド向けのエラーコードに変換する。
func LoginFailureCode(err error) string {
	switch {
	case errors.Is(err, ErrAccountDisabled):
		return LoginErrorAccountDisabled
	case errors.Is(err, ErrCodeExchange):
		return LoginErrorOAuthFailed
	default:
		return LoginErrorAuthFailed
	}
}

// LoginFailureURL はログイン失敗時のリダイレクト先を返す。
func (s *Service) LoginFailureURL(code string) string {
	return s.config.FrontendURL + "/login?" + url.Values{"error": {code}}.Encode()
}

// Validate はトークンを検証し、呼び出し元を返す。
// 署名・期限の検証に失敗した場合はErrInvalidToken、ユーザーが存在しないか無効な場合はErrUserNotFoundを返す。
func (s *Service) Validate(ctx context.Context, token string) (*model.Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	return &model.Principal{UserID: user.ID, Email: user.Email, Name: user.Name}, nil
}

// Refresh は有効なユーザーに新しいトークンを発行する。
func (s *Service) Refresh(ctx context.Context, userID string) (*IssuedToken, error) {
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.tokens.Issue(user.ID, user.Email)
}

// Logout はログアウト時刻を記録する。トークンは失効させず、破棄はクライアントが行う。
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.users.UpdateLastLogout(ctx, userID, s.now().UTC().Truncate(time.Millisecond)); err != nil {
		return fmt.Errorf("failed to record logout: %w", err)
	}
	slog.Info("user logged out", slog.String("user_id", userID))
	return nil
}

// GetCurrentUser は現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, userID string) (*model.User, error) {
	return s.activeUser(ctx, userID)
}

func (s *Service) activeUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *Service) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(result)
	}
}
