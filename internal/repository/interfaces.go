// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/exptra/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。メールアドレスの一意性はDB制約で担保される。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	// クリーンアップワーカーから定期的に呼ばれる。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TransactionRepository は取引データの永続化インターフェース。
// 台帳は追記専用であり、更新・削除操作は存在しない。
type TransactionRepository interface {
	// Insert は取引を1件追記する。IDは呼び出し側が採番し、
	// recorded_atはストア側（DB）が採番する。
	Insert(ctx context.Context, tx *model.Transaction) error

	// ListByUserID は指定ユーザーの全取引をrecorded_at降順
	// （同時刻はid降順でタイブレーク）で返す。
	ListByUserID(ctx context.Context, userID string) ([]model.Transaction, error)
}
