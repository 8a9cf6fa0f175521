package note

import (
	"math"
	"strings"
	"testing"

	"github.com/hitoshi/notekeeper/internal/model"
)

func fieldNames(errs []model.FieldError) []string {
	names := make([]string, len(errs))
	for i, e := range errs {
		names[i] = e.Field
	}
	return names
}

// TestNormalizeInput_Defaults は省略可能なフィールドに既定値が入ることを検証する。
func TestNormalizeInput_Defaults(t *testing.T) {
	in := &model.NoteInput{Title: "  Groceries ", Content: " milk, eggs \n"}

	if errs := NormalizeInput(in); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if in.Title != "Groceries" {
		t.Errorf("Title = %q, want trimmed", in.Title)
	}
	if in.Content != "milk, eggs" {
		t.Errorf("Content = %q, want trimmed", in.Content)
	}
	if in.Category != model.DefaultCategory {
		t.Errorf("Category = %q, want %q", in.Category, model.DefaultCategory)
	}
	if in.Color != model.ColorDefault {
		t.Errorf("Color = %q, want %q", in.Color, model.ColorDefault)
	}
	if in.Tags == nil || len(in.Tags) != 0 {
		t.Errorf("Tags = %v, want empty non-nil slice", in.Tags)
	}
}

// TestNormalizeInput_Tags はタグが小文字化・重複排除・切り詰めされることを検証する。
func TestNormalizeInput_Tags(t *testing.T) {
	tests := []struct {
		name string
		tags []string
		want []string
	}{
		{"lowercase", []string{"Work", "URGENT"}, []string{"work", "urgent"}},
		{"dedupe after lowercase", []string{"Go", "go", " GO "}, []string{"go"}},
		{"drop empty", []string{"", "  ", "a"}, []string{"a"}},
		{
			"truncate to cap",
			[]string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11", "t12"},
			[]string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := &model.NoteInput{Title: "t", Content: "c", Tags: tt.tags}
			if errs := NormalizeInput(in); len(errs) != 0 {
				t.Fatalf("unexpected errors: %v", errs)
			}
			if strings.Join(in.Tags, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Tags = %v, want %v", in.Tags, tt.want)
			}
		})
	}
}

// TestNormalizeInput_ReportsAllFields は失敗したフィールドがすべて返ることを検証する。
func TestNormalizeInput_ReportsAllFields(t *testing.T) {
	in := &model.NoteInput{
		Title:    "   ",
		Content:  strings.Repeat("x", model.MaxContentLength+1),
		Tags:     []string{strings.Repeat("a", model.MaxTagLength+1)},
		Category: strings.Repeat("c", model.MaxCategoryLength+1),
		Color:    "magenta",
	}

	errs := NormalizeInput(in)
	got := strings.Join(fieldNames(errs), ",")
	want := "title,content,tags,category,color"
	if got != want {
		t.Errorf("fields = %s, want %s", got, want)
	}
}

// TestNormalizeInput_Boundaries は文字数上限ちょうどが許容されることを検証する。
func TestNormalizeInput_Boundaries(t *testing.T) {
	in := &model.NoteInput{
		Title:    strings.Repeat("あ", model.MaxTitleLength),
		Content:  strings.Repeat("x", model.MaxContentLength),
		Tags:     []string{strings.Repeat("a", model.MaxTagLength)},
		Category: strings.Repeat("c", model.MaxCategoryLength),
		Color:    model.ColorPink,
	}
	if errs := NormalizeInput(in); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	in.Title = strings.Repeat("あ", model.MaxTitleLength+1)
	errs := NormalizeInput(in)
	if len(errs) != 1 || errs[0].Field != "title" {
		t.Errorf("errors = %v, want only title", errs)
	}
}

// TestNormalizeQuery は一覧条件の既定値と検証を検証する。
func TestNormalizeQuery(t *testing.T) {
	q := &model.NoteQuery{Page: 1, Limit: 20, Category: " Work ", Search: "  plan  "}
	if errs := NormalizeQuery(q); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if q.SortBy != model.SortByCreated {
		t.Errorf("SortBy = %q, want created", q.SortBy)
	}
	if q.Category != "work" {
		t.Errorf("Category = %q, want work", q.Category)
	}
	if q.Search != "plan" {
		t.Errorf("Search = %q, want plan", q.Search)
	}

	bad := &model.NoteQuery{
		Page:   0,
		Limit:  model.MaxPageLimit + 1,
		Search: strings.Repeat("s", model.MaxSearchLength+1),
		SortBy: "random",
	}
	got := strings.Join(fieldNames(NormalizeQuery(bad)), ",")
	if got != "page,limit,search,sortBy" {
		t.Errorf("fields = %s, want page,limit,search,sortBy", got)
	}
}

// TestNormalizeQuery_PageOverflow はスキップ件数がintを超えるページを拒否することを検証する。
func TestNormalizeQuery_PageOverflow(t *testing.T) {
	tests := []struct {
		name    string
		page    int
		limit   int
		wantErr bool
	}{
		{name: "最大ページ", page: math.MaxInt, limit: model.DefaultPageLimit, wantErr: true},
		{name: "上限の直上", page: math.MaxInt/model.MaxPageLimit + 1, limit: model.MaxPageLimit, wantErr: true},
		{name: "上限ちょうど", page: math.MaxInt / model.MaxPageLimit, limit: model.MaxPageLimit},
		{name: "通常のページ", page: 1000, limit: model.MaxPageLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &model.NoteQuery{Page: tt.page, Limit: tt.limit}
			got := strings.Join(fieldNames(NormalizeQuery(q)), ",")
			if tt.wantErr {
				if got != "page" {
					t.Errorf("fields = %q, want page", got)
				}
				return
			}
			if got != "" {
				t.Fatalf("unexpected errors: %s", got)
			}
			if q.Offset() < 0 {
				t.Errorf("Offset = %d, want non-negative", q.Offset())
			}
		})
	}
}

// TestParseNoteID は不正なIDが検証エラーになることを検証する。
func TestParseNoteID(t *testing.T) {
	if _, err := parseNoteID("not-a-uuid"); err == nil {
		t.Fatal("expected error for malformed id")
	} else if apiErr, ok := err.(*model.APIError); !ok || apiErr.Code != model.ErrCodeValidationFailed {
		t.Errorf("err = %v, want VALIDATION_FAILED", err)
	}

	id, err := parseNoteID(" 0B7E3C1A-54A8-4A0E-9A55-3F3D6F1A2B9C ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "0b7e3c1a-54a8-4a0e-9a55-3f3d6f1a2b9c" {
		t.Errorf("id = %q, want canonical lowercase", id)
	}
}
