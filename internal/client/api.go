// Package client はノートAPIのGoクライアントと、トークン保持・ログイン状態・ノート一覧の
// クライアント側ロジックを提供する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrUnauthorized はトークンがない・無効・期限切れでAPIが401を返したことを表す。
var ErrUnauthorized = errors.New("unauthorized")

// FieldError はAPIが返した入力フィールド1件分の検証エラー。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError はAPIのエラーレスポンス。
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Fields     []FieldError
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// Is は401のAPIErrorをErrUnauthorizedとして扱う。
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// User はログイン中ユーザーのプロフィール。
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Avatar    string     `json:"avatar"`
	CreatedAt time.Time  `json:"createdAt"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}

// Note はAPIが返すノート。
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Category  string    `json:"category"`
	IsPrivate bool      `json:"isPrivate"`
	IsPinned  bool      `json:"isPinned"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteFields はノート作成・更新時に送るフィールド。
// 更新（PUT）ではIsPrivate以外をすべて送る必要がある。
type NoteFields struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
	Category  string   `json:"category"`
	Color     string   `json:"color"`
	IsPinned  bool     `json:"isPinned"`
	IsPrivate *bool    `json:"isPrivate,omitempty"`
}

// ListOptions はノート一覧の検索条件。ゼロ値の項目は送らない。
type ListOptions struct {
	Page     int
	Limit    int
	Category string
	Search   string
	SortBy   string
}

func (o ListOptions) values() url.Values {
	v := url.Values{}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		v.Set("limit", strconv.Itoa(o.Limit))
	}
	if o.Category != "" {
		v.Set("category", o.Category)
	}
	if o.Search != "" {
		v.Set("search", o.Search)
	}
	if o.SortBy != "" {
		v.Set("sortBy", o.SortBy)
	}
	return v
}

// Pagination はノート一覧のページ情報。
type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalNotes  int  `json:"totalNotes"`
	Limit       int  `json:"limit"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// NoteList はノート一覧の1ページ分。
type NoteList struct {
	Notes      []Note     `json:"notes"`
	Pagination Pagination `json:"pagination"`
}

// Client はノートAPIのHTTPクライアント。
// リクエストごとにCredentialStoreからトークンを読み出してBearerヘッダーに載せる。
type Client struct {
	baseURL    string
	httpClient *http.Client
	store      CredentialStore
}

// NewClient はClientを生成する。httpClientがnilの場合はタイムアウト30秒のクライアントを使う。
func NewClient(baseURL string, store CredentialStore, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		store:      store,
	}
}

// LoginURL はブラウザで開くOAuthログインURLを返す。
func (c *Client) LoginURL(provider string) string {
	return c.baseURL + "/auth/" + url.PathEscape(provider)
}

// envelope はAPIの共通レスポンス形式。
type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []FieldError    `json:"errors"`
}

// do はリクエストを送信し、成功時はdataをoutにデコードしてmessageを返す。
func (c *Client) do(ctx context.Context, method, path string, in, out any) (string, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return "", fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := c.store.Load()
	if err != nil {
		return "", err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", &APIError{StatusCode: resp.StatusCode}
		}
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Message:    env.Message,
			Fields:     env.Errors,
		}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return env.Message, nil
}

// Profile はトークンの持ち主のプロフィールを取得する。
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var data struct {
		User User `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/auth/me", nil, &data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

// Refresh は新しいトークンを発行してもらい、保存先を更新する。
func (c *Client) Refresh(ctx context.Context) (time.Time, error) {
	var data struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/auth/refresh", nil, &data); err != nil {
		return time.Time{}, err
	}
	if err := c.store.Save(data.Token); err != nil {
		return time.Time{}, err
	}
	return data.ExpiresAt, nil
}

// Logout はサーバーにログアウトを通知する。トークンは破棄しない。
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	return err
}

// ListNotes はノート一覧を取得する。
func (c *Client) ListNotes(ctx context.Context, opts ListOptions) (*NoteList, error) {
	path := "/api/notes"
	if q := opts.values().Encode(); q != "" {
		path += "?" + q
	}
	var list NoteList
	if _, err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// CreateNote はノートを作成する。
func (c *Client) CreateNote(ctx context.Context, fields NoteFields) (*Note, error) {
	return c.noteRequest(ctx, http.MethodPost, "/api/notes", fields)
}

// UpdateNote はノートの全フィールドを置き換える。
func (c *Client) UpdateNote(ctx context.Context, id string, fields NoteFields) (*Note, error) {
	return c.noteRequest(ctx, http.MethodPut, "/api/notes/"+url.PathEscape(id), fields)
}

// TogglePin はピン留めを切り替え、更新後のノートとサーバーのメッセージを返す。
func (c *Client) TogglePin(ctx context.Context, id string) (*Note, string, error) {
	var data struct {
		Note Note `json:"note"`
	}
	msg, err := c.do(ctx, http.MethodPatch, "/api/notes/"+url.PathEscape(id)+"/pin", nil, &data)
	if err != nil {
		return nil, "", err
	}
	return &data.Note, msg, nil
}

// DeleteNote はノートを削除する。
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), nil, nil)
	return err
}

func (c *Client) noteRequest(ctx context.Context, method, path string, fields NoteFields) (*Note, error) {
	if fields.Tags == nil {
		fields.Tags = []string{}
	}
	var data struct {
		Note Note `json:"note"`
	}
	if _, err := c.do(ctx, method, path, fields, &data); err != nil {
		return nil, err
	}
	return &data.Note, nil
}
