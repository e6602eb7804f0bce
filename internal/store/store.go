// Package store は取引台帳の永続ストアへの窓口を提供する。
//
// 外部ストアに触れるのは本パッケージのみであり、上位層（台帳エンジン）は
// Storeインターフェースを通じて追記とライブ購読のみを行う。
// 購読は変更のたびに全件スナップショット（recorded_at降順）を配送する
// 方式であり、購読中に明示的なリフレッシュ操作は存在しない。
package store

import (
	"context"

	"github.com/hitoshi/exptra/internal/model"
)

// SnapshotFunc は購読先に順序付きスナップショットを配送するコールバック。
// 渡されるスライスは配送ごとに独立したコピーであり、受け取り側が保持してよい。
type SnapshotFunc func(transactions []model.Transaction)

// ErrorFunc は購読中のストアエラーを通知するコールバック。
// 購読自体は生存し続け、次の変更で再びスナップショットの配送を試みる。
type ErrorFunc func(err error)

// CancelFunc は購読を解除する。冪等であり、2回以上呼んでも害はない。
// 戻った時点以降、当該購読のコールバックが呼ばれないことが保証される。
type CancelFunc func()

// Store は取引台帳の永続ストアアダプタのインターフェース。
type Store interface {
	// Append は指定ユーザーの台帳に取引を1件追記し、採番されたIDを返す。
	// アダプタ未初期化の場合はSTORE_UNAVAILABLE、書き込み失敗の場合は
	// WRITE_FAILEDのAPIErrorを返す。
	// 追記はローカルのスナップショットを直接更新しない。新しい状態は
	// ライブ購読経由でのみ配送される。
	Append(ctx context.Context, userID string, draft model.TransactionDraft) (string, error)

	// Subscribe は指定ユーザーの台帳のライブ購読を開始する。
	// 購読直後に初回スナップショットを配送し、以後は変更のたびに
	// 全件スナップショットを配送する。
	Subscribe(userID string, onSnapshot SnapshotFunc, onError ErrorFunc) (CancelFunc, error)

	// WaitReady はアダプタの初期化完了を待つ。初期化はプロセス中に
	// ちょうど1回だけ完了し、以後の呼び出しは即座に戻る。
	WaitReady(ctx context.Context) error
}
