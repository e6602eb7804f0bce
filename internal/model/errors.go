// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, ledger, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidAmount       = "INVALID_AMOUNT"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	ErrCodeSubmissionInFlight  = "SUBMISSION_IN_FLIGHT"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeWriteFailed         = "WRITE_FAILED"
	ErrCodeEmptyLedger         = "EMPTY_LEDGER"
	ErrCodeLedgerNotBound      = "LEDGER_NOT_BOUND"
	ErrCodeInvalidFilter       = "INVALID_FILTER"
	ErrCodeInvalidType         = "INVALID_TYPE"
	ErrCodeEmailTaken          = "EMAIL_TAKEN"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeWeakPassword        = "WEAK_PASSWORD"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
)

// NewInvalidAmountError は金額入力が不正な場合のエラーを生成する。
func NewInvalidAmountError(input string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAmount,
		Message:  fmt.Sprintf("金額が不正です: %q", input),
		Category: "validation",
		Action:   "0より大きい数値を入力してください。",
	}
}

// NewInsufficientBalanceError は残高不足で支出が拒否された場合のエラーを生成する。
func NewInsufficientBalanceError() *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientBalance,
		Message:  "残高が不足しています。現在の残高を超える支出は記録できません。",
		Category: "ledger",
		Action:   "金額を残高以下に修正してください。",
	}
}

// NewSubmissionInFlightError は同一ユーザーの送信が進行中の場合のエラーを生成する。
func NewSubmissionInFlightError() *APIError {
	return &APIError{
		Code:     ErrCodeSubmissionInFlight,
		Message:  "前回の取引送信が処理中です。",
		Category: "ledger",
		Action:   "処理完了を待ってから再度お試しください。",
	}
}

// NewStoreUnavailableError はストアアダプタが未初期化の場合のエラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データストアに接続できません。",
		Category: "system",
		Action:   "しばらく待ってから再読み込みしてください。",
	}
}

// NewWriteFailedError はストアへの書き込みが失敗した場合のエラーを生成する。
func NewWriteFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeWriteFailed,
		Message:  fmt.Sprintf("取引の保存に失敗しました: %s", reason),
		Category: "system",
		Action:   "内容を確認して再送信してください。自動リトライは行われません。",
	}
}

// NewEmptyLedgerError は取引が1件もない状態でのエクスポートエラーを生成する。
func NewEmptyLedgerError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyLedger,
		Message:  "エクスポートできる取引がありません。",
		Category: "ledger",
		Action:   "取引を記録してから再度お試しください。",
	}
}

// NewLedgerNotBoundError は台帳が未バインドの状態での操作エラーを生成する。
func NewLedgerNotBoundError() *APIError {
	return &APIError{
		Code:     ErrCodeLedgerNotBound,
		Message:  "台帳がアクティブなユーザーに紐付いていません。",
		Category: "ledger",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidFilterError は無効なフィルタエラーを生成する。
func NewInvalidFilterError(filter string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なフィルタです: %s", filter),
		Category: "validation",
		Action:   "フィルタには all、today、thisMonth のいずれかを指定してください。",
	}
}

// NewInvalidTypeError は無効な取引種別エラーを生成する。
func NewInvalidTypeError(txType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidType,
		Message:  fmt.Sprintf("無効な取引種別です: %s", txType),
		Category: "validation",
		Action:   "取引種別には income または expense を指定してください。",
	}
}

// NewEmailTakenError はメールアドレスが登録済みの場合のエラーを生成する。
func NewEmailTakenError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailTaken,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewInvalidCredentialsError は認証情報が一致しない場合のエラーを生成する。
// ユーザーの存在有無を区別しない一律のメッセージを返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewWeakPasswordError はパスワードが短すぎる場合のエラーを生成する。
func NewWeakPasswordError(minLength int) *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  fmt.Sprintf("パスワードは%d文字以上で指定してください。", minLength),
		Category: "validation",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
