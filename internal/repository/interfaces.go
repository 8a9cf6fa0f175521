// Package repository はユーザーとノートの永続化インターフェースと実装を定義する。
// PostgreSQL実装とMongoDB実装があり、どちらも同じインターフェースを満たす。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/notekeeper/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// UpsertByIdentity はprovider + provider_user_idでユーザーを検索し、
	// 存在すればプロフィール（email, name, avatar_url）とlast_login_atを更新、
	// 存在しなければ新規作成する。createdは新規作成時にtrueとなる。
	UpsertByIdentity(ctx context.Context, identity *model.Identity, now time.Time) (user *model.User, created bool, err error)

	// UpdateLastLogout はlast_logout_atを記録する。ユーザーが存在しない場合は何もしない。
	UpdateLastLogout(ctx context.Context, id string, at time.Time) error

	// SetActive は有効フラグを更新する。ユーザーが存在しない場合はfalseを返す。
	SetActive(ctx context.Context, id string, active bool, at time.Time) (bool, error)

	// DeleteByID は指定IDのユーザーを削除する。ユーザーが存在しない場合はfalseを返す。
	DeleteByID(ctx context.Context, id string) (bool, error)
}

// NoteRepository はノートデータの永続化インターフェース。
// すべての操作は所有ユーザーIDでスコープされ、他ユーザーのノートは存在しないものとして扱う。
// 入力値は呼び出し側で正規化・検証済みであること。
type NoteRepository interface {
	// Create はノートを作成する。
	Create(ctx context.Context, note *model.Note) error

	// FindByID はユーザーが所有する指定IDのノートを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, userID, noteID string) (*model.Note, error)

	// List は検索条件に一致するノートの1ページ分と、ページネーション前の総件数を返す。
	List(ctx context.Context, userID string, q model.NoteQuery) ([]*model.Note, int, error)

	// Update はノートの全フィールドを置き換える。in.IsPrivateがnilの場合は既存値を維持する。
	// 見つからない場合はnilを返す。
	Update(ctx context.Context, userID, noteID string, in *model.NoteInput, at time.Time) (*model.Note, error)

	// TogglePin はピン留めフラグを反転する。他のフィールド（updated_atを含む）は変更しない。
	// 見つからない場合はnilを返す。
	TogglePin(ctx context.Context, userID, noteID string) (*model.Note, error)

	// Delete はノートを削除し、削除したノートを返す。見つからない場合はnilを返す。
	Delete(ctx context.Context, userID, noteID string) (*model.Note, error)

	// DeleteMany は指定IDのうちユーザーが所有するノートを削除し、実際の削除件数を返す。
	DeleteMany(ctx context.Context, userID string, noteIDs []string) (int64, error)

	// DeleteByUserID はユーザーの全ノートを削除し、削除件数を返す。
	DeleteByUserID(ctx context.Context, userID string) (int64, error)

	// Stats はユーザーのノート集計を返す。カテゴリ内訳は件数降順、同数はカテゴリ名昇順。
	Stats(ctx context.Context, userID string) (*model.NoteStats, error)
}
