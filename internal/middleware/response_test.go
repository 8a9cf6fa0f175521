package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/notekeeper/internal/model"
)

// TestWriteErrorResponse_WritesUnifiedFormat は統一エラーフォーマットでレスポンスが書き込まれることを検証する。
func TestWriteErrorResponse_WritesUnifiedFormat(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusNotFound, model.NewNoteNotFoundError())

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	body := decodeBody(t, w)
	if body.Success {
		t.Error("expected success=false")
	}
	if body.Code != model.ErrCodeNoteNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeNoteNotFound)
	}
	if body.Message != "Note not found" {
		t.Errorf("message = %q, want %q", body.Message, "Note not found")
	}
	if body.Category != "note" {
		t.Errorf("category = %q, want note", body.Category)
	}
	if len(body.Errors) != 0 {
		t.Errorf("errors = %v, want none", body.Errors)
	}
}

// TestWriteErrorResponse_ValidationFields は検証エラーのフィールドがすべて含まれることを検証する。
func TestWriteErrorResponse_ValidationFields(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError([]model.FieldError{
		{Field: "title", Message: "Title is required"},
		{Field: "color", Message: "Color must be one of: default"},
	}))

	body := decodeBody(t, w)
	if len(body.Errors) != 2 {
		t.Fatalf("errors = %v, want 2 entries", body.Errors)
	}
	if body.Errors[0].Field != "title" || body.Errors[1].Field != "color" {
		t.Errorf("errors = %v, want title then color", body.Errors)
	}
}

// TestWriteSuccess_OmitsEmptyFields は成功レスポンスで空のフィールドが省略されることを検証する。
func TestWriteSuccess_OmitsEmptyFields(t *testing.T) {
	w := httptest.NewRecorder()

	WriteSuccess(w, http.StatusOK, "Logged out successfully", nil)

	raw := w.Body.String()
	for _, key := range []string{`"data"`, `"errors"`, `"code"`} {
		if strings.Contains(raw, key) {
			t.Errorf("body %s should not contain %s", raw, key)
		}
	}
	if !strings.Contains(raw, `"success":true`) {
		t.Errorf("body %s should contain success=true", raw)
	}
}

// TestRecoveryMiddleware_ReturnsInternalError はpanicが500の統一レスポンスになることを検証する。
func TestRecoveryMiddleware_ReturnsInternalError(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/notes", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeBody(t, w)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}
