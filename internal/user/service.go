// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/notekeeper/internal/events"
	"github.com/hitoshi/notekeeper/internal/model"
	"github.com/hitoshi/notekeeper/internal/repository"
)

// NoteDeleter はユーザーのノート一括削除インターフェース。
type NoteDeleter interface {
	DeleteByUserID(ctx context.Context, userID string) (int64, error)
}

// Recorder は削除されたノート件数を記録するインターフェース。
type Recorder interface {
	RecordNotesDeleted(count int)
}

// Service はユーザー管理のサービス層。
// 退会処理と有効/無効の切り替えを提供する。
type Service struct {
	userRepo    repository.UserRepository
	noteDeleter NoteDeleter
	publisher   events.Publisher
	metrics     Recorder
	now         func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	noteDeleter NoteDeleter,
	publisher events.Publisher,
	metrics Recorder,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		userRepo:    userRepo,
		noteDeleter: noteDeleter,
		publisher:   publisher,
		metrics:     metrics,
		now:         time.Now,
	}
}

// DeleteAccount はユーザーの退会処理を実行する。
// 削除順序: notes → user。ドキュメントDBにはCASCADEがないためノートを先に削除する。
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. ノートを削除
	var deletedNotes int64
	if s.noteDeleter != nil {
		deletedNotes, err = s.noteDeleter.DeleteByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("ノートの削除に失敗しました: %w", err)
		}
	}

	// 2. ユーザーを削除
	found, err := s.userRepo.DeleteByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if !found {
		return model.NewUserNotFoundError()
	}

	if s.metrics != nil && deletedNotes > 0 {
		s.metrics.RecordNotesDeleted(int(deletedNotes))
	}

	event := events.New(events.AccountDeleted, userID)
	event.Count = deletedNotes
	if err := s.publisher.Publish(ctx, event); err != nil {
		slog.Warn("failed to publish account event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
		slog.Int64("deleted_notes", deletedNotes),
	)

	return nil
}

// SetActive はユーザーの有効フラグを切り替え、更新後のユーザーを返す。
// 無効化されたユーザーのトークンは次のリクエストから検証に失敗する。
func (s *Service) SetActive(ctx context.Context, userID string, active bool) (*model.User, error) {
	id, ok := model.ParseID(userID)
	if !ok {
		return nil, model.NewValidationError([]model.FieldError{{Field: "id", Message: "Invalid user ID"}})
	}

	found, err := s.userRepo.SetActive(ctx, id, active, s.now().UTC().Truncate(time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("ユーザー状態の更新に失敗しました: %w", err)
	}
	if !found {
		return nil, model.NewUserNotFoundError()
	}

	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	slog.Info("user active flag changed",
		slog.String("user_id", id),
		slog.Bool("active", active),
	)
	return user, nil
}
