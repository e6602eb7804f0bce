// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/hitoshi/exptra/internal/money"
)

// TransactionType は取引の種別（収入/支出）を表す。
type TransactionType string

const (
	// TransactionTypeIncome は収入を表す。
	TransactionTypeIncome TransactionType = "income"
	// TransactionTypeExpense は支出を表す。
	TransactionTypeExpense TransactionType = "expense"
)

// IsValid は既知の取引種別かどうかを返す。
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeIncome || t == TransactionTypeExpense
}

// DefaultNote はメモが空の場合に使用する既定ラベルを返す。
func (t TransactionType) DefaultNote() string {
	if t == TransactionTypeIncome {
		return "Income"
	}
	return "Expense"
}

// Transaction は台帳に記録された取引を表す。作成後は不変であり、
// 本システムから更新・削除されることはない（追記専用台帳）。
type Transaction struct {
	ID         string          // ストア採番の識別子
	UserID     string          // 台帳の所有者
	Type       TransactionType // income | expense
	Amount     money.Money     // 常に正。符号はTypeが決める
	Note       string          // 自由記述ラベル
	OccurredAt time.Time       // クライアント観測の発生時刻
	RecordedAt time.Time       // ストア採番の順序キー。取得順とタイブレークに使用
}

// TransactionDraft はストアへの追記前の未採番取引を表す。
// IDとRecordedAtはストアが採番する。
type TransactionDraft struct {
	Type       TransactionType
	Amount     money.Money
	Note       string
	OccurredAt time.Time
}

// TransactionFilter は取引一覧のフィルタ種別を表す。
type TransactionFilter string

const (
	// TransactionFilterAll は全取引を表示するフィルタ。
	TransactionFilterAll TransactionFilter = "all"
	// TransactionFilterToday は当日分のみを表示するフィルタ。
	TransactionFilterToday TransactionFilter = "today"
	// TransactionFilterThisMonth は当月分のみを表示するフィルタ。
	TransactionFilterThisMonth TransactionFilter = "thisMonth"
)

// IsValid は既知のフィルタ種別かどうかを返す。
func (f TransactionFilter) IsValid() bool {
	switch f {
	case TransactionFilterAll, TransactionFilterToday, TransactionFilterThisMonth:
		return true
	}
	return false
}
