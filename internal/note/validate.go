package note

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/notekeeper/internal/model"
)

// NormalizeInput は作成・更新共通の入力を正規化し、検証する。
// 失敗したフィールドはすべて返す。inは正規化後の値で上書きされる。
//
// 正規化:
//   - title, content は前後の空白を除去
//   - tags は小文字化・空要素除去・重複排除し、先頭から最大10件に切り詰める
//   - category は小文字化し、空なら "general"
//   - color は空なら "default"
func NormalizeInput(in *model.NoteInput) []model.FieldError {
	var errs []model.FieldError

	in.Title = strings.TrimSpace(in.Title)
	switch n := utf8.RuneCountInString(in.Title); {
	case n == 0:
		errs = append(errs, model.FieldError{Field: "title", Message: "Title is required"})
	case n > model.MaxTitleLength:
		errs = append(errs, model.FieldError{
			Field:   "title",
			Message: fmt.Sprintf("Title must be at most %d characters", model.MaxTitleLength),
		})
	}

	in.Content = strings.TrimSpace(in.Content)
	switch n := utf8.RuneCountInString(in.Content); {
	case n == 0:
		errs = append(errs, model.FieldError{Field: "content", Message: "Content is required"})
	case n > model.MaxContentLength:
		errs = append(errs, model.FieldError{
			Field:   "content",
			Message: fmt.Sprintf("Content must be at most %d characters", model.MaxContentLength),
		})
	}

	tags, tooLong := normalizeTags(in.Tags)
	in.Tags = tags
	if tooLong {
		errs = append(errs, model.FieldError{
			Field:   "tags",
			Message: fmt.Sprintf("Each tag must be at most %d characters", model.MaxTagLength),
		})
	}

	in.Category = normalizeCategory(in.Category)
	if in.Category == "" {
		in.Category = model.DefaultCategory
	}
	if utf8.RuneCountInString(in.Category) > model.MaxCategoryLength {
		errs = append(errs, model.FieldError{
			Field:   "category",
			Message: fmt.Sprintf("Category must be at most %d characters", model.MaxCategoryLength),
		})
	}

	if in.Color == "" {
		in.Color = model.ColorDefault
	}
	if !in.Color.IsValid() {
		names := make([]string, len(model.Colors))
		for i, c := range model.Colors {
			names[i] = string(c)
		}
		errs = append(errs, model.FieldError{
			Field:   "color",
			Message: "Color must be one of: " + strings.Join(names, ", "),
		})
	}

	return errs
}

// normalizeTags はタグを小文字化して重複を除き、最大件数に切り詰める。
// 長すぎるタグが含まれていた場合はtooLongを返す。
func normalizeTags(raw []string) (tags []string, tooLong bool) {
	tags = make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, t := range raw {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if utf8.RuneCountInString(t) > model.MaxTagLength {
			tooLong = true
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	if len(tags) > model.MaxTags {
		tags = tags[:model.MaxTags]
	}
	return tags, tooLong
}

func normalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeQuery は一覧の検索条件を正規化し、検証する。失敗したフィールドはすべて返す。
// SortByが空の場合は作成日時順とする。
func NormalizeQuery(q *model.NoteQuery) []model.FieldError {
	var errs []model.FieldError

	limitValid := q.Limit >= 1 && q.Limit <= model.MaxPageLimit
	// スキップ件数 (page-1)*limit がintに収まらないページは検証エラーとする
	if q.Page < 1 || (limitValid && q.Page > math.MaxInt/q.Limit) {
		errs = append(errs, model.FieldError{Field: "page", Message: "Page must be a positive integer"})
	}
	if !limitValid {
		errs = append(errs, model.FieldError{
			Field:   "limit",
			Message: fmt.Sprintf("Limit must be between 1 and %d", model.MaxPageLimit),
		})
	}

	q.Category = normalizeCategory(q.Category)
	if utf8.RuneCountInString(q.Category) > model.MaxCategoryLength {
		errs = append(errs, model.FieldError{
			Field:   "category",
			Message: fmt.Sprintf("Category must be at most %d characters", model.MaxCategoryLength),
		})
	}

	q.Search = strings.TrimSpace(q.Search)
	if utf8.RuneCountInString(q.Search) > model.MaxSearchLength {
		errs = append(errs, model.FieldError{
			Field:   "search",
			Message: fmt.Sprintf("Search term must be at most %d characters", model.MaxSearchLength),
		})
	}

	if q.SortBy == "" {
		q.SortBy = model.SortByCreated
	}
	if !q.SortBy.IsValid() {
		errs = append(errs, model.FieldError{Field: "sortBy", Message: "Sort must be one of: created, updated, title"})
	}

	return errs
}

// parseNoteID はノートIDを検証する。
func parseNoteID(raw string) (string, error) {
	id, ok := model.ParseID(raw)
	if !ok {
		return "", model.NewValidationError([]model.FieldError{{Field: "id", Message: "Invalid note ID"}})
	}
	return id, nil
}
