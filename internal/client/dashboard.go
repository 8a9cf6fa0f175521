package client

import (
	"context"
	"slices"
	"sync"
)

// NotesAPI はDashboardが必要とするAPI。*Clientが満たす。
type NotesAPI interface {
	ListNotes(ctx context.Context, opts ListOptions) (*NoteList, error)
	CreateNote(ctx context.Context, fields NoteFields) (*Note, error)
	UpdateNote(ctx context.Context, id string, fields NoteFields) (*Note, error)
	TogglePin(ctx context.Context, id string) (*Note, string, error)
	DeleteNote(ctx context.Context, id string) error
}

// Dashboard は取得済みのノート一覧を保持し、変更操作をAPIに送ってローカルの一覧に反映する。
type Dashboard struct {
	api NotesAPI

	mu         sync.Mutex
	opts       ListOptions
	notes      []Note
	pagination Pagination
	categories []string
}

// NewDashboard はDashboardを生成する。
func NewDashboard(api NotesAPI) *Dashboard {
	return &Dashboard{api: api}
}

// Load は検索条件でノート一覧を取得し直す。
func (d *Dashboard) Load(ctx context.Context, opts ListOptions) error {
	list, err := d.api.ListNotes(ctx, opts)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = opts
	d.notes = list.Notes
	d.pagination = list.Pagination
	d.categories = d.categories[:0]
	for _, n := range list.Notes {
		if !slices.Contains(d.categories, n.Category) {
			d.categories = append(d.categories, n.Category)
		}
	}
	return nil
}

// Reload は直前の検索条件で一覧を取得し直す。
func (d *Dashboard) Reload(ctx context.Context) error {
	d.mu.Lock()
	opts := d.opts
	d.mu.Unlock()
	return d.Load(ctx, opts)
}

// Notes は表示中のノートを返す。
func (d *Dashboard) Notes() []Note {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.notes)
}

// Pinned はピン留めされたノートを返す。
func (d *Dashboard) Pinned() []Note {
	return d.partition(true)
}

// Regular はピン留めされていないノートを返す。
func (d *Dashboard) Regular() []Note {
	return d.partition(false)
}

func (d *Dashboard) partition(pinned bool) []Note {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Note
	for _, n := range d.notes {
		if n.IsPinned == pinned {
			out = append(out, n)
		}
	}
	return out
}

// Categories は表示中のノートに含まれるカテゴリを出現順に返す。
func (d *Dashboard) Categories() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.categories)
}

// Pagination は最後に取得したページ情報を返す。
func (d *Dashboard) Pagination() Pagination {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pagination
}

// Create はノートを作成して一覧の先頭に追加する。
func (d *Dashboard) Create(ctx context.Context, fields NoteFields) (*Note, error) {
	n, err := d.api.CreateNote(ctx, fields)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes = append([]Note{*n}, d.notes...)
	if !slices.Contains(d.categories, n.Category) {
		d.categories = append(d.categories, n.Category)
	}
	return n, nil
}

// Update はノートを更新して一覧の該当要素を置き換える。
func (d *Dashboard) Update(ctx context.Context, id string, fields NoteFields) (*Note, error) {
	n, err := d.api.UpdateNote(ctx, id, fields)
	if err != nil {
		return nil, err
	}
	d.replace(*n)
	return n, nil
}

// TogglePin はピン留めを切り替え、サーバーのメッセージを返す。
func (d *Dashboard) TogglePin(ctx context.Context, id string) (string, error) {
	n, msg, err := d.api.TogglePin(ctx, id)
	if err != nil {
		return "", err
	}
	d.replace(*n)
	return msg, nil
}

// Delete はノートを削除して一覧から取り除く。
func (d *Dashboard) Delete(ctx context.Context, id string) error {
	if err := d.api.DeleteNote(ctx, id); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes = slices.DeleteFunc(d.notes, func(n Note) bool { return n.ID == id })
	return nil
}

func (d *Dashboard) replace(updated Note) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := slices.IndexFunc(d.notes, func(n Note) bool { return n.ID == updated.ID }); i >= 0 {
		d.notes[i] = updated
	}
}
