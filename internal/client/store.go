package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CredentialStore はセッショントークンの永続化先。
// トークンが保存されていない場合、Loadは空文字とnilを返す。
type CredentialStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// FileStore はトークンをユーザー本人のみ読み書きできるファイルに保存する。
type FileStore struct {
	path string
}

var _ CredentialStore = (*FileStore)(nil)

// NewFileStore は指定パスのFileStoreを生成する。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultTokenPath はOSのユーザー設定ディレクトリ配下のトークン保存先を返す。
func DefaultTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "notekeeper", "token"), nil
}

// Path は保存先のパスを返す。
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load() (string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Save はトークンを0600で書き込む。既存ファイルの権限も0600に戻す。
func (s *FileStore) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("failed to chmod token file: %w", err)
	}
	return nil
}

// Clear はトークンファイルを削除する。存在しない場合もエラーにしない。
func (s *FileStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}

// MemoryStore はプロセス内のみでトークンを保持する。
type MemoryStore struct {
	mu    sync.Mutex
	token string
}

var _ CredentialStore = (*MemoryStore)(nil)

func (s *MemoryStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}
