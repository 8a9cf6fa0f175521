// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 外部IdPのユーザーID（Provider + ProviderUserID）で一意に特定される。
type User struct {
	ID             string
	Provider       string
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	IsActive       bool
	LastLoginAt    time.Time
	LastLogoutAt   *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity は外部IdPから取得した検証済みプロフィールを表す。
// 初回ログイン時はユーザー作成、2回目以降はプロフィール更新に使われる。
type Identity struct {
	Provider       string // "google" 等
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
}

// Principal は認証済みリクエストの呼び出し元を表す。
// 認証ミドルウェアがリクエストコンテキストに格納する。
type Principal struct {
	UserID string
	Email  string
	Name   string
}
