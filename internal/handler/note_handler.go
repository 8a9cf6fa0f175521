package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/notekeeper/internal/middleware"
	"github.com/hitoshi/notekeeper/internal/model"
	"github.com/hitoshi/notekeeper/internal/note"
)

// NoteServiceInterface はノートハンドラーが必要とするサービスインターフェース。
// すべての操作は呼び出し元のユーザーIDでスコープされる。
type NoteServiceInterface interface {
	List(ctx context.Context, userID string, q model.NoteQuery) (*model.NotePage, error)
	Get(ctx context.Context, userID, noteID string) (*model.Note, error)
	Create(ctx context.Context, userID string, in *model.NoteInput) (*model.Note, error)
	Update(ctx context.Context, userID, noteID string, in *model.NoteInput) (*model.Note, error)
	TogglePin(ctx context.Context, userID, noteID string) (*model.Note, error)
	Delete(ctx context.Context, userID, noteID string) (*model.Note, error)
	BulkDelete(ctx context.Context, userID string, noteIDs []string) (int64, error)
	Stats(ctx context.Context, userID string) (*model.NoteStats, error)
}

// NoteHandler はノート管理のHTTPハンドラー。
type NoteHandler struct {
	service NoteServiceInterface
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{service: service}
}

// noteRequest はノート作成・更新リクエストのボディ。
// 省略と空値を区別するため、すべてポインタで受け取る。
type noteRequest struct {
	Title     *string   `json:"title"`
	Content   *string   `json:"content"`
	Tags      *[]string `json:"tags"`
	Category  *string   `json:"category"`
	Color     *string   `json:"color"`
	IsPinned  *bool     `json:"isPinned"`
	IsPrivate *bool     `json:"isPrivate"`
}

// toInput はリクエストを入力値に変換する。
// requireAllがtrueの場合（PUT）、isPrivate以外のフィールドが省略されていればすべて報告する。
func (req *noteRequest) toInput(requireAll bool) (*model.NoteInput, []model.FieldError) {
	in := &model.NoteInput{IsPrivate: req.IsPrivate}
	var missing []model.FieldError
	require := func(present bool, field, label string) {
		if requireAll && !present {
			missing = append(missing, model.FieldError{Field: field, Message: label + " is required"})
		}
	}

	require(req.Title != nil, "title", "Title")
	if req.Title != nil {
		in.Title = *req.Title
	}
	require(req.Content != nil, "content", "Content")
	if req.Content != nil {
		in.Content = *req.Content
	}
	require(req.Tags != nil, "tags", "Tags")
	if req.Tags != nil {
		in.Tags = *req.Tags
	}
	require(req.Category != nil, "category", "Category")
	if req.Category != nil {
		in.Category = *req.Category
	}
	require(req.Color != nil, "color", "Color")
	if req.Color != nil {
		in.Color = model.Color(*req.Color)
	}
	require(req.IsPinned != nil, "isPinned", "isPinned")
	if req.IsPinned != nil {
		in.IsPinned = *req.IsPinned
	}
	return in, missing
}

// mergeFieldErrors は先に検出したエラーを優先し、同じフィールドの重複を除いて結合する。
func mergeFieldErrors(first, rest []model.FieldError) []model.FieldError {
	seen := make(map[string]struct{}, len(first))
	merged := append([]model.FieldError{}, first...)
	for _, e := range first {
		seen[e.Field] = struct{}{}
	}
	for _, e := range rest {
		if _, ok := seen[e.Field]; ok {
			continue
		}
		merged = append(merged, e)
	}
	return merged
}

// noteResponse はノートのAPIレスポンス。
type noteResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	Category  string    `json:"category"`
	IsPrivate bool      `json:"isPrivate"`
	IsPinned  bool      `json:"isPinned"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toNoteResponse(n *model.Note) noteResponse {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return noteResponse{
		ID:        n.ID,
		Title:     n.Title,
		Content:   n.Content,
		Tags:      tags,
		Category:  n.Category,
		IsPrivate: n.IsPrivate,
		IsPinned:  n.IsPinned,
		Color:     string(n.Color),
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

// paginationResponse はノート一覧のページ情報。
type paginationResponse struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalNotes  int  `json:"totalNotes"`
	Limit       int  `json:"limit"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

// parseListQuery はクエリパラメータから一覧条件を組み立てる。省略時はpage=1、limit=20。
func parseListQuery(r *http.Request) (model.NoteQuery, []model.FieldError) {
	values := r.URL.Query()
	q := model.NoteQuery{
		Page:     1,
		Limit:    model.DefaultPageLimit,
		Category: values.Get("category"),
		Search:   values.Get("search"),
		SortBy:   model.SortBy(values.Get("sortBy")),
	}

	var errs []model.FieldError
	if raw := values.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, model.FieldError{Field: "page", Message: "Page must be a positive integer"})
		} else {
			q.Page = n
		}
	}
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, model.FieldError{
				Field:   "limit",
				Message: fmt.Sprintf("Limit must be between 1 and %d", model.MaxPageLimit),
			})
		} else {
			q.Limit = n
		}
	}
	return q, errs
}

// List はノート一覧を返す。
// GET /api/notes?page=&limit=&category=&search=&sortBy=
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	q, parseErrs := parseListQuery(r)
	if len(parseErrs) > 0 {
		check := q
		handleServiceError(w, model.NewValidationError(mergeFieldErrors(parseErrs, note.NormalizeQuery(&check))))
		return
	}

	page, err := h.service.List(r.Context(), userID, q)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	notes := make([]noteResponse, len(page.Notes))
	for i, n := range page.Notes {
		notes[i] = toNoteResponse(n)
	}

	middleware.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"notes": notes,
		"pagination": paginationResponse{
			CurrentPage: page.Page,
			TotalPages:  page.TotalPages,
			TotalNotes:  page.Total,
			Limit:       page.Limit,
			HasNext:     page.HasNext(),
			HasPrev:     page.HasPrev(),
		},
	})
}

// Get はノートを1件返す。
// GET /api/notes/{id}
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	n, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "", map[string]any{"note": toNoteResponse(n)})
}

// Create はノートを作成する。
// POST /api/notes
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	in, _ := req.toInput(false)

	n, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusCreated, "Note created successfully", map[string]any{
		"note": toNoteResponse(n),
	})
}

// Update はノートの全フィールドを置き換える。
// PUT /api/notes/{id}
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req noteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	in, missing := req.toInput(true)
	if len(missing) > 0 {
		check := *in
		handleServiceError(w, model.NewValidationError(mergeFieldErrors(missing, note.NormalizeInput(&check))))
		return
	}

	n, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Note updated successfully", map[string]any{
		"note": toNoteResponse(n),
	})
}

// TogglePin はピン留めを切り替える。
// PATCH /api/notes/{id}/pin
func (h *NoteHandler) TogglePin(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	n, err := h.service.TogglePin(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	state := "unpinned"
	if n.IsPinned {
		state = "pinned"
	}
	middleware.WriteSuccess(w, http.StatusOK, fmt.Sprintf("Note %s successfully", state), map[string]any{
		"note": toNoteResponse(n),
	})
}

// Delete はノートを1件削除する。
// DELETE /api/notes/{id}
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	n, err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, "Note deleted successfully", map[string]any{
		"deletedNote": map[string]string{"id": n.ID, "title": n.Title},
	})
}

// bulkDeleteRequest は一括削除リクエストのボディ。
type bulkDeleteRequest struct {
	NoteIDs []string `json:"noteIds"`
}

// BulkDelete は指定IDのノートのうち呼び出し元が所有するものを削除する。
// DELETE /api/notes
func (h *NoteHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	var req bulkDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	deleted, err := h.service.BulkDelete(r.Context(), userID, req.NoteIDs)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteSuccess(w, http.StatusOK, fmt.Sprintf("%d notes deleted successfully", deleted), map[string]any{
		"deletedCount": deleted,
	})
}

type categoryCountResponse struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// Stats はノートの集計を返す。
// GET /api/notes/stats/summary
func (h *NoteHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return
	}

	stats, err := h.service.Stats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	categories := stats.Categories
	if categories == nil {
		categories = []string{}
	}
	breakdown := make([]categoryCountResponse, len(stats.CategoryBreakdown))
	for i, c := range stats.CategoryBreakdown {
		breakdown[i] = categoryCountResponse{Category: c.Category, Count: c.Count}
	}

	middleware.WriteSuccess(w, http.StatusOK, "", map[string]any{
		"overview": map[string]any{
			"totalNotes":           stats.TotalNotes,
			"pinnedNotes":          stats.PinnedNotes,
			"categories":           categories,
			"averageContentLength": stats.AverageContentLength,
		},
		"categoryBreakdown": breakdown,
	})
}
