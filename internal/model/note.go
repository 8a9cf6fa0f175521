package model

import "time"

// ノートのフィールド制約
const (
	MaxTitleLength    = 200
	MaxContentLength  = 50000
	MaxTagLength      = 30
	MaxTags           = 10
	MaxCategoryLength = 50
	MaxSearchLength   = 100

	DefaultCategory = "general"

	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Color はノートの色タグを表す。
type Color string

const (
	ColorDefault Color = "default"
	ColorRed     Color = "red"
	ColorOrange  Color = "orange"
	ColorYellow  Color = "yellow"
	ColorGreen   Color = "green"
	ColorBlue    Color = "blue"
	ColorPurple  Color = "purple"
	ColorPink    Color = "pink"
)

// Colors は選択可能な色の一覧。
var Colors = []Color{
	ColorDefault, ColorRed, ColorOrange, ColorYellow,
	ColorGreen, ColorBlue, ColorPurple, ColorPink,
}

// IsValid は色がパレットに含まれるかを返す。
func (c Color) IsValid() bool {
	for _, v := range Colors {
		if c == v {
			return true
		}
	}
	return false
}

// Note はユーザーが所有するノートを表す。
// UserIDは作成後に変更されない。
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Tags      []string // 小文字化・重複排除済み
	Category  string
	IsPrivate bool
	IsPinned  bool
	Color     Color
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NoteInput はノート作成・更新時の入力値を表す。
type NoteInput struct {
	Title     string
	Content   string
	Tags      []string
	Category  string
	Color     Color
	IsPinned  bool
	IsPrivate *bool // nilの場合、作成時はtrue、更新時は既存値を維持する
}

// SortBy はノート一覧の並び順を表す。
type SortBy string

const (
	// SortByCreated はピン留めを先頭に、作成日時の新しい順に並べる。
	SortByCreated SortBy = "created"
	// SortByUpdated は更新日時の新しい順に並べる。
	SortByUpdated SortBy = "updated"
	// SortByTitle はタイトルの辞書順（昇順）に並べる。
	SortByTitle SortBy = "title"
)

// IsValid は並び順がサポート対象かを返す。
func (s SortBy) IsValid() bool {
	switch s {
	case SortByCreated, SortByUpdated, SortByTitle:
		return true
	}
	return false
}

// NoteQuery はノート一覧の検索条件を表す。Pageは1始まり。
type NoteQuery struct {
	Page     int
	Limit    int
	Category string
	Search   string
	SortBy   SortBy
}

// Offset はページネーションのスキップ件数を返す。
func (q NoteQuery) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// NotePage はノート一覧の1ページ分の結果を表す。
// Totalはページネーション前のフィルタ結果件数。
type NotePage struct {
	Notes      []*Note
	Page       int
	Limit      int
	Total      int
	TotalPages int
}

// HasNext は次ページが存在するかを返す。
func (p *NotePage) HasNext() bool {
	return p.Page < p.TotalPages
}

// HasPrev は前ページが存在するかを返す。
func (p *NotePage) HasPrev() bool {
	return p.Page > 1
}

// CategoryCount はカテゴリごとのノート数を表す。
type CategoryCount struct {
	Category string
	Count    int
}

// NoteStats はユーザーのノート集計を表す。
type NoteStats struct {
	TotalNotes           int
	PinnedNotes          int
	Categories           []string
	AverageContentLength float64
	CategoryBreakdown    []CategoryCount
}
