package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/hitoshi/notekeeper/internal/model"
)

var noteColumnList = []string{
	"id", "user_id", "title", "content", "tags", "category",
	"is_private", "is_pinned", "color", "created_at", "updated_at",
}

var noteColumns = strings.Join(noteColumnList, ", ")

// psql はPostgreSQL用のプレースホルダ（$1, $2...）を使うクエリビルダ。
var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PostgresNoteRepo はPostgreSQLを使用したノートリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

func scanNote(row rowScanner) (*model.Note, error) {
	note := &model.Note{}
	var tags []string
	err := row.Scan(
		&note.ID, &note.UserID, &note.Title, &note.Content, pq.Array(&tags), &note.Category,
		&note.IsPrivate, &note.IsPinned, &note.Color, &note.CreatedAt, &note.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []string{}
	}
	note.Tags = tags
	return note, nil
}

// tagsArray はタグをtext[]として渡す。nilはNOT NULL制約に合わせて空配列にする。
func tagsArray(tags []string) any {
	if tags == nil {
		tags = []string{}
	}
	return pq.Array(tags)
}

// queryNote は1行を返すクエリを実行する。該当行がなければnilを返す。
func (r *PostgresNoteRepo) queryNote(ctx context.Context, op, query string, args ...any) (*model.Note, error) {
	note, err := scanNote(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return note, nil
}

// Create はノートを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (`+noteColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		note.ID, note.UserID, note.Title, note.Content, tagsArray(note.Tags), note.Category,
		note.IsPrivate, note.IsPinned, note.Color, note.CreatedAt, note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// FindByID はユーザーが所有する指定IDのノートを取得する。
func (r *PostgresNoteRepo) FindByID(ctx context.Context, userID, noteID string) (*model.Note, error) {
	return r.queryNote(ctx, "find note",
		`SELECT `+noteColumns+` FROM notes WHERE id = $1 AND user_id = $2`,
		noteID, userID,
	)
}

// List は検索条件に一致するノートの1ページ分と総件数を返す。
func (r *PostgresNoteRepo) List(ctx context.Context, userID string, q model.NoteQuery) ([]*model.Note, int, error) {
	listQuery, countQuery := buildListQuery(userID, q)

	query, args, err := countQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notes: %w", err)
	}

	query, args, err = listQuery.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build list query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query notes: %w", err)
	}
	defer rows.Close()

	notes := make([]*model.Note, 0, q.Limit)
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate notes: %w", err)
	}

	return notes, total, nil
}

// buildListQuery は一覧取得クエリと、同じ絞り込み条件の件数取得クエリを組み立てる。
func buildListQuery(userID string, q model.NoteQuery) (squirrel.SelectBuilder, squirrel.SelectBuilder) {
	where := squirrel.And{squirrel.Eq{"user_id": userID}}
	if q.Category != "" {
		where = append(where, squirrel.Eq{"category": q.Category})
	}
	if q.Search != "" {
		pattern := "%" + escapeLike(q.Search) + "%"
		where = append(where, squirrel.Or{
			squirrel.Expr("title ILIKE ?", pattern),
			squirrel.Expr("content ILIKE ?", pattern),
			squirrel.Expr("EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE ?)", pattern),
		})
	}

	list := psql.Select(noteColumnList...).
		From("notes").
		Where(where).
		OrderBy(listOrder(q.SortBy)...).
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset()))

	count := psql.Select("count(*)").
		From("notes").
		Where(where)

	return list, count
}

// listOrder は並び順ごとのORDER BY句を返す。同順位はidで安定させる。
func listOrder(sortBy model.SortBy) []string {
	switch sortBy {
	case model.SortByTitle:
		return []string{`title COLLATE "C" ASC`, "id ASC"}
	case model.SortByUpdated:
		return []string{"updated_at DESC", "id ASC"}
	default:
		return []string{"is_pinned DESC", "created_at DESC", "id ASC"}
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike はLIKEのメタ文字をエスケープし、検索語を部分一致の文字列として扱う。
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Update はノートの全フィールドを置き換える。
func (r *PostgresNoteRepo) Update(ctx context.Context, userID, noteID string, in *model.NoteInput, at time.Time) (*model.Note, error) {
	return r.queryNote(ctx, "update note",
		`UPDATE notes SET
			title = $3,
			content = $4,
			tags = $5,
			category = $6,
			color = $7,
			is_pinned = $8,
			is_private = COALESCE($9::boolean, is_private),
			updated_at = $10
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+noteColumns,
		noteID, userID, in.Title, in.Content, tagsArray(in.Tags), in.Category,
		in.Color, in.IsPinned, in.IsPrivate, at,
	)
}

// TogglePin はピン留めフラグを反転する。
func (r *PostgresNoteRepo) TogglePin(ctx context.Context, userID, noteID string) (*model.Note, error) {
	return r.queryNote(ctx, "toggle pin",
		`UPDATE notes SET is_pinned = NOT is_pinned
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+noteColumns,
		noteID, userID,
	)
}

// Delete はノートを削除し、削除したノートを返す。
func (r *PostgresNoteRepo) Delete(ctx context.Context, userID, noteID string) (*model.Note, error) {
	return r.queryNote(ctx, "delete note",
		`DELETE FROM notes WHERE id = $1 AND user_id = $2 RETURNING `+noteColumns,
		noteID, userID,
	)
}

// DeleteMany は指定IDのうちユーザーが所有するノートを削除する。
func (r *PostgresNoteRepo) DeleteMany(ctx context.Context, userID string, noteIDs []string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE user_id = $1 AND id = ANY($2::uuid[])`,
		userID, pq.Array(noteIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// DeleteByUserID はユーザーの全ノートを削除する。
func (r *PostgresNoteRepo) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM notes WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notes by user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// Stats はユーザーのノート集計を返す。
func (r *PostgresNoteRepo) Stats(ctx context.Context, userID string) (*model.NoteStats, error) {
	stats := &model.NoteStats{}
	var categories []string
	err := r.db.QueryRowContext(ctx,
		`SELECT
			count(*),
			count(*) FILTER (WHERE is_pinned),
			COALESCE(array_agg(DISTINCT category ORDER BY category), '{}'),
			COALESCE(avg(char_length(content)), 0)::float8
		 FROM notes WHERE user_id = $1`,
		userID,
	).Scan(&stats.TotalNotes, &stats.PinnedNotes, pq.Array(&categories), &stats.AverageContentLength)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate notes: %w", err)
	}
	if categories == nil {
		categories = []string{}
	}
	stats.Categories = categories

	rows, err := r.db.QueryContext(ctx,
		`SELECT category, count(*) FROM notes
		 WHERE user_id = $1
		 GROUP BY category
		 ORDER BY count(*) DESC, category ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query category breakdown: %w", err)
	}
	defer rows.Close()

	stats.CategoryBreakdown = []model.CategoryCount{}
	for rows.Next() {
		var cc model.CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.CategoryBreakdown = append(stats.CategoryBreakdown, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category breakdown: %w", err)
	}

	return stats, nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
