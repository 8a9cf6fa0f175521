package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
)

// State はクライアントのログイン状態。
type State string

const (
	StateLoading       State = "loading"
	StateAuthenticated State = "authenticated"
	StateAnonymous     State = "anonymous"
)

// ErrNoToken はコールバックURLにトークンもエラーも含まれないことを表す。
var ErrNoToken = errors.New("callback url has neither token nor error")

// LoginError はOAuthコールバックでサーバーが通知したログイン失敗。
type LoginError struct {
	Code string // invalid_state, oauth_failed, auth_failed, account_disabled
}

func (e *LoginError) Error() string {
	return "login failed: " + e.Code
}

// AuthAPI はSessionが必要とするAPI。*Clientが満たす。
type AuthAPI interface {
	Profile(ctx context.Context) (*User, error)
	Logout(ctx context.Context) error
}

// callbackOutcome は1つのトークンに対するコールバック処理の結果。
// doneが閉じられるまで後続の呼び出しは待機する。
type callbackOutcome struct {
	done    chan struct{}
	user    *User
	err     error
	aborted bool // ctxの取り消しで中断した
}

// Session はトークンと、そこから導出したログイン中ユーザーを保持する。
// アプリケーションのルートでNewSessionし、Initで状態を確定させてから利用する。
type Session struct {
	api   AuthAPI
	store CredentialStore

	mu    sync.Mutex
	state State
	user  *User

	callbacks map[string]*callbackOutcome
}

// NewSession はloading状態のSessionを生成する。
func NewSession(api AuthAPI, store CredentialStore) *Session {
	return &Session{
		api:       api,
		store:     store,
		state:     StateLoading,
		callbacks: make(map[string]*callbackOutcome),
	}
}

// State は現在の状態を返す。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User はログイン中のユーザーを返す。未ログインの場合はnil。
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) resolve(state State, user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.user = user
}

// Init は保存済みトークンから状態を確定させる。
// トークンがなければ即座にanonymous、プロフィール取得に失敗すればトークンを破棄してanonymousになる。
func (s *Session) Init(ctx context.Context) State {
	token, err := s.store.Load()
	if err != nil {
		slog.Warn("failed to load token", slog.String("error", err.Error()))
	}
	if token == "" {
		s.resolve(StateAnonymous, nil)
		return StateAnonymous
	}

	if _, err := s.Login(ctx); err != nil {
		return StateAnonymous
	}
	return StateAuthenticated
}

// Login は保存済みトークンでプロフィールを取得し直す。
// 結果が確定するまで戻らないため、呼び出し元は戻り値を見てから画面遷移する。
func (s *Session) Login(ctx context.Context) (*User, error) {
	user, err := s.api.Profile(ctx)
	if err != nil {
		slog.Warn("profile fetch failed, discarding token", slog.String("error", err.Error()))
		if clearErr := s.store.Clear(); clearErr != nil {
			slog.Error("failed to clear token", slog.String("error", clearErr.Error()))
		}
		s.resolve(StateAnonymous, nil)
		return nil, fmt.Errorf("login failed: %w", err)
	}
	s.resolve(StateAuthenticated, user)
	return user, nil
}

// Logout はサーバーに通知したうえでトークンを破棄する。
// 通知の失敗は記録するだけで、トークンは必ず破棄する。
func (s *Session) Logout(ctx context.Context) error {
	if token, _ := s.store.Load(); token != "" {
		if err := s.api.Logout(ctx); err != nil {
			slog.Warn("logout notification failed", slog.String("error", err.Error()))
		}
	}
	err := s.store.Clear()
	s.resolve(StateAnonymous, nil)
	if err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

// CompleteCallback はOAuthリダイレクト先のURLを処理する。
// ?token= を保存してLoginし、?error= はLoginErrorとして返す。
// 同じトークンで複数回呼ばれても処理は1回だけ行い、以降は最初の結果を返す。
// 呼び出し元のctxが取り消されて中断した場合は結果を残さず、後続の呼び出しが処理をやり直す。
func (s *Session) CompleteCallback(ctx context.Context, redirectURL string) (*User, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("invalid callback url: %w", err)
	}
	query := u.Query()
	token := query.Get("token")
	if token == "" {
		if code := query.Get("error"); code != "" {
			s.resolve(StateAnonymous, nil)
			return nil, &LoginError{Code: code}
		}
		return nil, ErrNoToken
	}

	for {
		s.mu.Lock()
		outcome, seen := s.callbacks[token]
		if !seen {
			outcome = &callbackOutcome{done: make(chan struct{})}
			s.callbacks[token] = outcome
		}
		s.mu.Unlock()

		if !seen {
			return s.consumeCallback(ctx, token, outcome)
		}

		select {
		case <-outcome.done:
			if !outcome.aborted {
				return outcome.user, outcome.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// consumeCallback はトークンを保存してLoginする。
// ctxの取り消しで失敗した場合はoutcomeを破棄し、待機中の呼び出しに再試行させる。
func (s *Session) consumeCallback(ctx context.Context, token string, outcome *callbackOutcome) (*User, error) {
	defer close(outcome.done)

	if err := s.store.Save(token); err != nil {
		outcome.err = err
		return nil, err
	}
	outcome.user, outcome.err = s.Login(ctx)
	if outcome.err != nil && ctx.Err() != nil {
		outcome.aborted = true
		s.mu.Lock()
		delete(s.callbacks, token)
		s.mu.Unlock()
	}
	return outcome.user, outcome.err
}
