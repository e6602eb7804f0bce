// Package ledger は取引台帳のドメインロジックを提供する。
//
// Engineは1人の認証済みユーザーの台帳スナップショットを所有し、
// 残高の導出、支出の事前検査（残高を負にしない）、フィルタ付きビューを
// 提供する。スナップショットはストアのライブ購読が配送する全件置換で
// のみ更新され、送信の成功によって楽観的に更新されることはない。
package ledger

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/money"
	"github.com/hitoshi/exptra/internal/security"
	"github.com/hitoshi/exptra/internal/store"
)

// Engine は1ユーザー分の台帳スナップショットを所有するエンジン。
//
// 状態遷移: Unbound → Binding → Loaded ⇄ Loaded → Unbound。
// バインドのたびに世代トークンをインクリメントし、古い世代の購読
// コールバックは黙って破棄する。これによりunbind/rebindと配送の競合を
// イベントの直列化なしに解決する。
type Engine struct {
	store     store.Store
	sanitizer security.NoteSanitizerService
	now       func() time.Time

	mu         sync.Mutex
	identity   *model.Identity
	gen        uint64 // 世代トークン。bindごとに単調増加
	cancel     store.CancelFunc
	snapshot   []model.Transaction
	loaded     bool
	submitting bool // ユーザー単位の送信進行中ラッチ
	lastErr    error
}

// NewEngine はEngineを生成する。
func NewEngine(st store.Store, sanitizer security.NoteSanitizerService) *Engine {
	return &Engine{
		store:     st,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// SetClock は現在時刻の供給源を差し替える。テスト用。
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// Bind は指定ユーザーにエンジンを紐付け、ストアのライブ購読を開始する。
// 同一ユーザーへの再バインドはno-op。別ユーザーへのバインドは既存の購読を
// 破棄してから行う。購読開始中に別のbind/unbindが割り込んだ場合は、
// 後から来た遷移が優先される（世代トークンによる）。
func (e *Engine) Bind(identity model.Identity) error {
	e.mu.Lock()
	if e.identity != nil && e.identity.UID == identity.UID {
		e.mu.Unlock()
		return nil
	}

	prevCancel := e.cancel
	e.cancel = nil
	e.snapshot = nil
	e.loaded = false
	e.lastErr = nil
	e.identity = &identity
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	// 既存購読の解除はエンジンのロック外で行う（ストアのロックと
	// 配送コールバックのロック順序を一方向に保つため）。
	if prevCancel != nil {
		prevCancel()
	}

	cancel, err := e.store.Subscribe(identity.UID,
		func(snapshot []model.Transaction) { e.applySnapshot(gen, snapshot) },
		func(err error) { e.applyError(gen, err) },
	)
	if err != nil {
		e.mu.Lock()
		if e.gen == gen {
			e.identity = nil
		}
		e.mu.Unlock()
		return err
	}

	e.mu.Lock()
	if e.gen != gen {
		// 購読確立中にunbindまたは別ユーザーへのbindが起きた
		e.mu.Unlock()
		cancel()
		return nil
	}
	e.cancel = cancel
	e.mu.Unlock()
	return nil
}

// Unbind は購読を解除し、スナップショットを破棄する。
// 未バインド時に呼んでも安全。戻った後にスナップショットが変化しないことを
// 世代トークンで保証する。
func (e *Engine) Unbind() {
	e.mu.Lock()
	prevCancel := e.cancel
	e.cancel = nil
	e.identity = nil
	e.snapshot = nil
	e.loaded = false
	e.submitting = false
	e.lastErr = nil
	e.gen++ // 配送中のコールバックを無効化する
	e.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}
}

// applySnapshot はストアから配送されたスナップショットを適用する。
// 世代トークンが現在のバインドと一致しない配送は黙って破棄する。
func (e *Engine) applySnapshot(gen uint64, snapshot []model.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	e.snapshot = snapshot
	e.loaded = true
	e.lastErr = nil
}

// applyError は購読エラーを記録する。スナップショットは変更しない。
func (e *Engine) applyError(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return
	}
	e.lastErr = err
}

// Identity は現在バインドされているユーザーを返す。未バインドならfalse。
func (e *Engine) Identity() (model.Identity, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.identity == nil {
		return model.Identity{}, false
	}
	return *e.identity, true
}

// Loaded は初回スナップショットが配送済みかを返す。
// 空のスナップショットと「未配送」をビューの空とは別に区別するためのフラグ。
func (e *Engine) Loaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loaded
}

// LastError は直近の購読エラーを返す。正常なら nil。
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Balance は現在のスナップショットから残高を導出する。
// 残高 = sum(income) - sum(expense)。永続化はせず常に導出する。
// 未バインドまたは空のスナップショットでは0を返す。
func (e *Engine) Balance() money.Money {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balanceLocked()
}

func (e *Engine) balanceLocked() money.Money {
	total := money.Zero()
	for _, tx := range e.snapshot {
		if tx.Type == model.TransactionTypeIncome {
			total = total.Add(tx.Amount)
		} else {
			total = total.Sub(tx.Amount)
		}
	}
	return total
}

// Submit は取引を検証してストアへ追記する。
//
//  1. rawAmountをパースする。正の有限数でなければINVALID_AMOUNT。
//  2. 支出の場合、ローカルスナップショット由来の残高から引いて負になるなら
//     INSUFFICIENT_BALANCE。この検査は助言的であり、並行する別セッションの
//     書き込みに対してトランザクショナルではない。
//  3. 同一ユーザーの送信進行中はSUBMISSION_IN_FLIGHT（二重クリック対策）。
//  4. ストアへ委譲する。STORE_UNAVAILABLE / WRITE_FAILEDはそのまま伝搬する。
//
// 成功してもローカルスナップショットは更新しない。新しい状態はストアの
// ライブ購読が配送する。
func (e *Engine) Submit(ctx context.Context, txType model.TransactionType, rawAmount, note string) error {
	if !txType.IsValid() {
		return model.NewInvalidTypeError(string(txType))
	}

	amount, err := money.Parse(rawAmount)
	if err != nil {
		return model.NewInvalidAmountError(rawAmount)
	}

	e.mu.Lock()
	if e.identity == nil {
		e.mu.Unlock()
		return model.NewLedgerNotBoundError()
	}
	if txType == model.TransactionTypeExpense {
		if e.balanceLocked().Sub(amount).IsNegative() {
			e.mu.Unlock()
			return model.NewInsufficientBalanceError()
		}
	}
	if e.submitting {
		e.mu.Unlock()
		return model.NewSubmissionInFlightError()
	}
	e.submitting = true
	uid := e.identity.UID
	occurredAt := e.now()
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.submitting = false
		e.mu.Unlock()
	}()

	note = strings.TrimSpace(note)
	if note == "" {
		note = txType.DefaultNote()
	}
	note = e.sanitizer.Sanitize(note)
	if note == "" {
		// サニタイズで空になった場合も既定ラベルに落とす
		note = txType.DefaultNote()
	}

	draft := model.TransactionDraft{
		Type:       txType,
		Amount:     amount,
		Note:       note,
		OccurredAt: occurredAt,
	}

	if _, err := e.store.Append(ctx, uid, draft); err != nil {
		return err
	}
	return nil
}

// View は現在のスナップショットにフィルタを適用した新しいスライスを返す。
// フィルタはOccurredAt（クライアント観測時刻）に対するローカル日付比較で
// あり、RecordedAtは使用しない。順序はスナップショットのまま
// （recorded_at降順）保持される。
// 空の結果は有効な状態であり、「未ロード」とはLoadedで区別する。
func (e *Engine) View(filter model.TransactionFilter) ([]model.Transaction, error) {
	if !filter.IsValid() {
		return nil, model.NewInvalidFilterError(string(filter))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	result := make([]model.Transaction, 0, len(e.snapshot))
	for _, tx := range e.snapshot {
		if matchesFilter(tx, filter, now) {
			result = append(result, tx)
		}
	}
	return result, nil
}

// matchesFilter は取引がフィルタに合致するかを判定する。
// 比較は現在時刻のタイムゾーンに揃えて行う。
func matchesFilter(tx model.Transaction, filter model.TransactionFilter, now time.Time) bool {
	switch filter {
	case model.TransactionFilterToday:
		y1, m1, d1 := now.Date()
		y2, m2, d2 := tx.OccurredAt.In(now.Location()).Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case model.TransactionFilterThisMonth:
		y1, m1, _ := now.Date()
		y2, m2, _ := tx.OccurredAt.In(now.Location()).Date()
		return y1 == y2 && m1 == m2
	default:
		return true
	}
}
