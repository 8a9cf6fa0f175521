// Package events はノートのライフサイクルイベントを外部へ通知する。
// 発行はベストエフォートで、失敗してもリクエストは失敗させない。
package events

import (
	"context"
	"time"

	"github.com/hitoshi/notekeeper/internal/model"
)

// Type はイベント種別。
type Type string

const (
	NoteCreated     Type = "note.created"
	NoteUpdated     Type = "note.updated"
	NotePinned      Type = "note.pinned"
	NoteDeleted     Type = "note.deleted"
	NotesBulkDelete Type = "notes.bulk_deleted"
	AccountDeleted  Type = "account.deleted"
)

// Event はノートのライフサイクルイベント。ノート本文は含めない。
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	UserID     string    `json:"userId"`
	NoteIDs    []string  `json:"noteIds,omitempty"`
	Count      int64     `json:"count,omitempty"`
	Pinned     *bool     `json:"pinned,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// New はIDと発生時刻を割り当てたイベントを生成する。
func New(typ Type, userID string, noteIDs ...string) Event {
	return Event{
		ID:         model.NewID(),
		Type:       typ,
		UserID:     userID,
		NoteIDs:    noteIDs,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher はイベント発行のインターフェース。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher はイベントを破棄するPublisher。ブローカー未設定時に使う。
type NopPublisher struct{}

// Publish は何もしない。
func (NopPublisher) Publish(context.Context, Event) error { return nil }

// Close は何もしない。
func (NopPublisher) Close() error { return nil }

var _ Publisher = NopPublisher{}
