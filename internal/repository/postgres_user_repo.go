package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/notekeeper/internal/model"
)

const userColumns = `id, provider, provider_user_id, email, name, avatar_url, is_active,
	last_login_at, last_logout_at, created_at, updated_at`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser はuserColumnsの順で1行を読み取る。追加の列はextraに読み込む。
func scanUser(row rowScanner, extra ...any) (*model.User, error) {
	user := &model.User{}
	var lastLogin, lastLogout sql.NullTime
	dest := []any{
		&user.ID, &user.Provider, &user.ProviderUserID, &user.Email, &user.Name, &user.AvatarURL,
		&user.IsActive, &lastLogin, &lastLogout, &user.CreatedAt, &user.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		user.LastLoginAt = lastLogin.Time
	}
	if lastLogout.Valid {
		t := lastLogout.Time
		user.LastLogoutAt = &t
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// UpsertByIdentity はprovider + provider_user_idの一意制約を使って1文でユーザーを作成または更新する。
// xmax = 0 はその行が今回のINSERTで作られたことを示す。
func (r *PostgresUserRepo) UpsertByIdentity(ctx context.Context, identity *model.Identity, now time.Time) (*model.User, bool, error) {
	var created bool
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, provider, provider_user_id, email, name, avatar_url, is_active, last_login_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $7, $7)
		 ON CONFLICT (provider, provider_user_id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			last_login_at = EXCLUDED.last_login_at,
			updated_at = EXCLUDED.updated_at
		 RETURNING `+userColumns+`, (xmax = 0)`,
		model.NewID(), identity.Provider, identity.ProviderUserID,
		identity.Email, identity.Name, identity.AvatarURL, now,
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert user: %w", err)
	}
	return user, created, nil
}

// UpdateLastLogout はlast_logout_atを記録する。
func (r *PostgresUserRepo) UpdateLastLogout(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_logout_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update last logout: %w", err)
	}
	return nil
}

// SetActive は有効フラグを更新する。
func (r *PostgresUserRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, at,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update user active flag: %w", err)
	}
	return affectedAny(result)
}

// DeleteByID は指定IDのユーザーを削除する。
// 所有ノートはON DELETE CASCADEで削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete user: %w", err)
	}
	return affectedAny(result)
}

func affectedAny(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
