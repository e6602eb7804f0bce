package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/exptra/internal/middleware"
	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/session"
)

// LedgerProvider は取引ハンドラーが必要とする台帳エンジンの供給元。
// session.Binderの部分集合として定義する。
type LedgerProvider interface {
	Engine(identity model.Identity) (session.LedgerEngine, error)
}

// UserFinder はユーザーIDから表示用アイデンティティを解決するためのインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// SubmissionMetrics は取引投入の計測インターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type SubmissionMetrics interface {
	RecordSubmission(txType string, outcome string)
	RecordSubmitLatency(duration time.Duration)
}

// TransactionHandler は取引台帳のHTTPハンドラー。
type TransactionHandler struct {
	ledgers LedgerProvider
	users   UserFinder
	metrics SubmissionMetrics
}

// NewTransactionHandler はTransactionHandlerを生成する。
// metricsはnilでもよい（計測なしで動作する）。
func NewTransactionHandler(ledgers LedgerProvider, users UserFinder, metrics SubmissionMetrics) *TransactionHandler {
	return &TransactionHandler{
		ledgers: ledgers,
		users:   users,
		metrics: metrics,
	}
}

// submitTransactionRequest は取引投入リクエストのボディ。
type submitTransactionRequest struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Note   string `json:"note"`
}

// transactionResponse は取引1件のAPIレスポンス。
type transactionResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Amount     string `json:"amount"`
	Note       string `json:"note"`
	OccurredAt string `json:"occurred_at"`
	RecordedAt string `json:"recorded_at"`
}

// listTransactionsResponse は取引一覧のAPIレスポンス。
// loadedは初回スナップショットを受信済みかどうかを示す。
// falseの場合、空のtransactionsは「取引なし」ではなく「読込中」を意味する。
type listTransactionsResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Balance      string                `json:"balance"`
	Loaded       bool                  `json:"loaded"`
	Filter       string                `json:"filter"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Submit は取引投入を処理する。
// POST /api/transactions
func (h *TransactionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.resolveEngine(w, r)
	if !ok {
		return
	}

	var req submitTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	start := time.Now()
	err := engine.Submit(r.Context(), model.TransactionType(req.Type), req.Amount, req.Note)
	h.recordSubmission(req.Type, err, time.Since(start))

	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 投入成功はスナップショットへの反映を待たずに応答する。
	// 一覧と残高はストアの変更通知で更新される。
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "created",
		"balance": engine.Balance().Format(),
	})
}

// List は取引一覧を返す。
// GET /api/transactions?filter=all|today|thisMonth
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.resolveEngine(w, r)
	if !ok {
		return
	}

	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = string(model.TransactionFilterAll)
	}

	snapshot, err := engine.View(model.TransactionFilter(filter))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := listTransactionsResponse{
		Transactions: make([]transactionResponse, len(snapshot)),
		Balance:      engine.Balance().Format(),
		Loaded:       engine.Loaded(),
		Filter:       filter,
	}
	for i, tx := range snapshot {
		resp.Transactions[i] = toTransactionResponse(tx)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Balance は現在の残高を返す。
// GET /api/balance
func (h *TransactionHandler) Balance(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.resolveEngine(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"balance": engine.Balance().Format(),
		"loaded":  engine.Loaded(),
	})
}

// resolveEngine はリクエストコンテキストから認証済みユーザーを特定し、
// バインド済みの台帳エンジンを取得する。失敗時はレスポンスを書き込み
// falseを返す。
func (h *TransactionHandler) resolveEngine(w http.ResponseWriter, r *http.Request) (session.LedgerEngine, bool) {
	identity, ok := resolveIdentity(w, r, h.users)
	if !ok {
		return nil, false
	}

	engine, err := h.ledgers.Engine(identity)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	return engine, true
}

// resolveIdentity はリクエストコンテキストからユーザーのアイデンティティを解決する。
// 失敗時はレスポンスを書き込みfalseを返す。
func resolveIdentity(w http.ResponseWriter, r *http.Request, users UserFinder) (model.Identity, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w)
		return model.Identity{}, false
	}

	user, err := users.FindByID(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return model.Identity{}, false
	}
	if user == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return model.Identity{}, false
	}

	return model.IdentityOf(user), true
}

// recordSubmission は投入結果をメトリクスに記録する。
func (h *TransactionHandler) recordSubmission(txType string, err error, elapsed time.Duration) {
	if h.metrics == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			outcome = strings.ToLower(apiErr.Code)
		} else {
			outcome = "error"
		}
	}

	h.metrics.RecordSubmission(txType, outcome)
	h.metrics.RecordSubmitLatency(elapsed)
}

// toTransactionResponse はモデルをAPIレスポンス型に変換する。
func toTransactionResponse(tx model.Transaction) transactionResponse {
	return transactionResponse{
		ID:         tx.ID,
		Type:       string(tx.Type),
		Amount:     tx.Amount.Format(),
		Note:       tx.Note,
		OccurredAt: tx.OccurredAt.Format(time.RFC3339),
		RecordedAt: tx.RecordedAt.Format(time.RFC3339),
	}
}

// writeAPIErrorResponse は統一エラーフォーマットでレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeInvalidRequestBody は不正なリクエストボディに対する400レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// writeUnauthorized は401レスポンスを書き込む。
func writeUnauthorized(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
		Code:     "UNAUTHORIZED",
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスへ変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はエラーコードをHTTPステータスコードへ対応付ける。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidAmount, model.ErrCodeInvalidFilter, model.ErrCodeInvalidType:
		return http.StatusBadRequest
	case model.ErrCodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case model.ErrCodeSubmissionInFlight:
		return http.StatusConflict
	case model.ErrCodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeWriteFailed:
		return http.StatusBadGateway
	case model.ErrCodeEmptyLedger:
		return http.StatusNotFound
	case model.ErrCodeLedgerNotBound:
		return http.StatusConflict
	case model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeWeakPassword:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
