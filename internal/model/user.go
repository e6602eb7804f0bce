// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は認証済みユーザーへの不透明な参照を表す。
// 台帳エンジンはこの参照を保持するのみで、内容を変更しない。
type Identity struct {
	UID   string // ユーザーID
	Label string // 表示名（ユーザー名、なければメールアドレス）
}

// IdentityOf はUserから台帳バインド用のIdentityを生成する。
func IdentityOf(u *User) Identity {
	label := u.Username
	if label == "" {
		label = u.Email
	}
	return Identity{UID: u.ID, Label: label}
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
