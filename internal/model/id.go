package model

import (
	"strings"

	"github.com/google/uuid"
)

// NewID は新しいエンティティIDを生成する。
func NewID() string {
	return uuid.NewString()
}

// ParseID はエンティティIDの形式を検証し、正規化した文字列を返す。
// IDの形式チェックはすべてこの関数を経由する。
func ParseID(s string) (string, bool) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	return id.String(), true
}
