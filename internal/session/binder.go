// Package session は認証状態遷移と台帳エンジンのバインドを接続する。
//
// Binderは認証プロバイダのsigned-in/signed-out遷移を観測し、
// サインイン中のユーザーごとに1つの台帳エンジンを維持する。
// 遷移イベント自体は直列化しない。bind/unbindの競合はエンジンと
// ストアアダプタの世代トークンで解決され、最後に観測された遷移の
// 購読だけが生き残る。
package session

import (
	"context"
	"sync"

	"github.com/hitoshi/exptra/internal/auth"
	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/money"
)

// LedgerEngine はBinderが管理する台帳エンジンのインターフェース。
// ledger.Engineの部分集合として定義する。
type LedgerEngine interface {
	Bind(identity model.Identity) error
	Unbind()
	Balance() money.Money
	Submit(ctx context.Context, txType model.TransactionType, rawAmount, note string) error
	View(filter model.TransactionFilter) ([]model.Transaction, error)
	Loaded() bool
	Identity() (model.Identity, bool)
}

// EngineFactory は新しい台帳エンジンを生成するファクトリ。
type EngineFactory func() LedgerEngine

// Binder は認証状態遷移を台帳エンジンのbind/unbindに変換する。
type Binder struct {
	newEngine EngineFactory

	mu      sync.Mutex
	engines map[string]LedgerEngine // uid -> バインド済みエンジン
}

// NewBinder はBinderを生成する。
// auth.Service.OnStateChangedにHandleStateChangeを登録して使用する。
func NewBinder(newEngine EngineFactory) *Binder {
	return &Binder{
		newEngine: newEngine,
		engines:   make(map[string]LedgerEngine),
	}
}

// HandleStateChange は認証プロバイダからの状態遷移を処理する。
// signed-in: 対象ユーザーのエンジンを生成（または再利用）してバインドする。
// signed-out: 対象ユーザーのエンジンをアンバインドして破棄する。
func (b *Binder) HandleStateChange(change auth.StateChange) {
	switch change.Kind {
	case auth.StateSignedIn:
		b.bind(change.Identity)
	case auth.StateSignedOut:
		b.unbind(change.Identity.UID)
	}
}

// bind は対象ユーザーのエンジンを確保してバインドする。
// バインド失敗（ストア未初期化など）のエンジンは登録しない。
// 次回のEngine呼び出しで遅延バインドが再試行される。
func (b *Binder) bind(identity model.Identity) {
	b.mu.Lock()
	engine, ok := b.engines[identity.UID]
	if !ok {
		engine = b.newEngine()
		b.engines[identity.UID] = engine
	}
	b.mu.Unlock()

	// Bindは同一ユーザーへの再バインドをno-opとして処理するため、
	// 重複したsigned-in遷移（別端末からのログイン等）は安全。
	if err := engine.Bind(identity); err != nil {
		b.mu.Lock()
		delete(b.engines, identity.UID)
		b.mu.Unlock()
	}
}

// unbind は対象ユーザーのエンジンを解除して破棄する。
// エンジンが存在しない場合は何もしない。
func (b *Binder) unbind(uid string) {
	b.mu.Lock()
	engine, ok := b.engines[uid]
	delete(b.engines, uid)
	b.mu.Unlock()

	if ok {
		engine.Unbind()
	}
}

// Engine は指定ユーザーのバインド済みエンジンを返す。
// プロセス再起動後もセッションは永続ストアで生き残るため、エンジンが
// 存在しない場合はここで遅延バインドする（サインイン遷移を観測していない
// 有効セッションからのリクエストに対応する）。
func (b *Binder) Engine(identity model.Identity) (LedgerEngine, error) {
	b.mu.Lock()
	engine, ok := b.engines[identity.UID]
	b.mu.Unlock()
	if ok {
		return engine, nil
	}

	b.bind(identity)

	b.mu.Lock()
	defer b.mu.Unlock()
	engine, ok = b.engines[identity.UID]
	if !ok {
		return nil, model.NewStoreUnavailableError()
	}
	return engine, nil
}

// ActiveCount は現在バインド中のエンジン数を返す。テストおよびメトリクス用。
func (b *Binder) ActiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.engines)
}
