// Package note は所有ユーザーでスコープされたノートのCRUD・検索・集計のドメインロジックを提供する。
package note

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/notekeeper/internal/events"
	"github.com/hitoshi/notekeeper/internal/model"
	"github.com/hitoshi/notekeeper/internal/repository"
)

// Recorder はノート件数のメトリクスを記録するインターフェース。
type Recorder interface {
	RecordNotesCreated(count int)
	RecordNotesDeleted(count int)
}

// Service はノート管理のサービス層。
// 他ユーザーのノートは存在しないノートと同じNOTE_NOT_FOUNDとして扱う。
type Service struct {
	repo      repository.NoteRepository
	publisher events.Publisher
	metrics   Recorder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.NoteRepository, publisher events.Publisher, metrics Recorder) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}
}

// timestamp は両バックエンドで往復しても変わらない精度の現在時刻を返す。
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// List は検索条件に一致するノートの1ページ分を返す。
func (s *Service) List(ctx context.Context, userID string, q model.NoteQuery) (*model.NotePage, error) {
	if errs := NormalizeQuery(&q); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	notes, total, err := s.repo.List(ctx, userID, q)
	if err != nil {
		return nil, fmt.Errorf("ノート一覧の取得に失敗しました: %w", err)
	}

	return &model.NotePage{
		Notes:      notes,
		Page:       q.Page,
		Limit:      q.Limit,
		Total:      total,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}, nil
}

// Get はユーザーが所有するノートを取得する。
func (s *Service) Get(ctx context.Context, userID, noteID string) (*model.Note, error) {
	id, err := parseNoteID(noteID)
	if err != nil {
		return nil, err
	}

	note, err := s.repo.FindByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("ノートの取得に失敗しました: %w", err)
	}
	if note == nil {
		return nil, model.NewNoteNotFoundError()
	}
	return note, nil
}

// Create はノートを作成する。IDとタイムスタンプはサーバーで割り当てる。
func (s *Service) Create(ctx context.Context, userID string, in *model.NoteInput) (*model.Note, error) {
	if errs := NormalizeInput(in); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	now := s.timestamp()
	note := &model.Note{
		ID:        model.NewID(),
		UserID:    userID,
		Title:     in.Title,
		Content:   in.Content,
		Tags:      in.Tags,
		Category:  in.Category,
		IsPrivate: true,
		IsPinned:  in.IsPinned,
		Color:     in.Color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.IsPrivate != nil {
		note.IsPrivate = *in.IsPrivate
	}

	if err := s.repo.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("ノートの作成に失敗しました: %w", err)
	}

	slog.Info("note created",
		slog.String("user_id", userID),
		slog.String("note_id", note.ID),
	)
	s.recordCreated(1)
	s.publish(ctx, events.New(events.NoteCreated, userID, note.ID))

	return note, nil
}

// Update はノートの全フィールドを置き換える。作成時と同じ検証を行う。
func (s *Service) Update(ctx context.Context, userID, noteID string, in *model.NoteInput) (*model.Note, error) {
	id, err := parseNoteID(noteID)
	if err != nil {
		return nil, err
	}
	if errs := NormalizeInput(in); len(errs) > 0 {
		return nil, model.NewValidationError(errs)
	}

	note, err := s.repo.Update(ctx, userID, id, in, s.timestamp())
	if err != nil {
		return nil, fmt.Errorf("ノートの更新に失敗しました: %w", err)
	}
	if note == nil {
		return nil, model.NewNoteNotFoundError()
	}

	s.publish(ctx, events.New(events.NoteUpdated, userID, note.ID))
	return note, nil
}

// TogglePin はピン留めフラグを反転する。他のフィールドは変更しない。
func (s *Service) TogglePin(ctx context.Context, userID, noteID string) (*model.Note, error) {
	id, err := parseNoteID(noteID)
	if err != nil {
		return nil, err
	}

	note, err := s.repo.TogglePin(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("ピン留めの切り替えに失敗しました: %w", err)
	}
	if note == nil {
		return nil, model.NewNoteNotFoundError()
	}

	event := events.New(events.NotePinned, userID, note.ID)
	pinned := note.IsPinned
	event.Pinned = &pinned
	s.publish(ctx, event)
	return note, nil
}

// Delete はノートを削除し、削除したノートを返す。削除時点で所有者を再確認する。
func (s *Service) Delete(ctx context.Context, userID, noteID string) (*model.Note, error) {
	id, err := parseNoteID(noteID)
	if err != nil {
		return nil, err
	}

	note, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("ノートの削除に失敗しました: %w", err)
	}
	if note == nil {
		return nil, model.NewNoteNotFoundError()
	}

	slog.Info("note deleted",
		slog.String("user_id", userID),
		slog.String("note_id", note.ID),
	)
	s.recordDeleted(1)
	s.publish(ctx, events.New(events.NoteDeleted, userID, note.ID))
	return note, nil
}

// BulkDelete は指定IDのうちユーザーが所有するノートを削除し、実際の削除件数を返す。
// 実行前にすべてのIDの形式を検証し、1件でも不正なら何も削除しない。
func (s *Service) BulkDelete(ctx context.Context, userID string, noteIDs []string) (int64, error) {
	if len(noteIDs) == 0 {
		return 0, model.NewValidationError([]model.FieldError{
			{Field: "noteIds", Message: "Note IDs array is required"},
		})
	}

	ids := make([]string, 0, len(noteIDs))
	seen := make(map[string]struct{}, len(noteIDs))
	var errs []model.FieldError
	for i, raw := range noteIDs {
		id, ok := model.ParseID(raw)
		if !ok {
			errs = append(errs, model.FieldError{
				Field:   fmt.Sprintf("noteIds[%d]", i),
				Message: "Invalid note ID",
			})
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(errs) > 0 {
		return 0, model.NewValidationError(errs)
	}

	deleted, err := s.repo.DeleteMany(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("ノートの一括削除に失敗しました: %w", err)
	}

	slog.Info("notes bulk deleted",
		slog.String("user_id", userID),
		slog.Int("requested", len(ids)),
		slog.Int64("deleted", deleted),
	)
	s.recordDeleted(int(deleted))
	event := events.New(events.NotesBulkDelete, userID, ids...)
	event.Count = deleted
	s.publish(ctx, event)

	return deleted, nil
}

// Stats はユーザーのノート集計を返す。副作用はない。
func (s *Service) Stats(ctx context.Context, userID string) (*model.NoteStats, error) {
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ノート統計の取得に失敗しました: %w", err)
	}
	return stats, nil
}

// publish はイベントを発行する。失敗はログに残すだけで呼び出し元には返さない。
func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Warn("failed to publish note event",
			slog.String("type", string(event.Type)),
			slog.String("user_id", event.UserID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) recordCreated(n int) {
	if s.metrics != nil {
		s.metrics.RecordNotesCreated(n)
	}
}

func (s *Service) recordDeleted(n int) {
	if s.metrics != nil {
		s.metrics.RecordNotesDeleted(n)
	}
}
