package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/repository"
)

// NotifyChannel はtransactionsテーブルのAFTER INSERTトリガが
// pg_notifyで使用するチャネル名。ペイロードは変更のあったuser_id。
const NotifyChannel = "exptra_tx_changes"

// 再接続間隔のデフォルト。NewPostgresでゼロ値が渡された場合に使う。
const (
	defaultMinReconnect = 10 * time.Second
	defaultMaxReconnect = time.Minute
)

// RefreshMetrics はスナップショット再クエリの計測を抽象化するインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type RefreshMetrics interface {
	RecordSnapshotRefresh()
	RecordSnapshotRefreshFailure()
}

// Postgres はStoreのPostgreSQL実装。
// 書き込みは取引リポジトリへ委譲し、ライブ配送はLISTEN/NOTIFYで実現する。
// NOTIFYを受けるたびに該当ユーザーの台帳を全件再クエリし、
// スナップショットとして購読者に配送する（差分パッチは行わない）。
type Postgres struct {
	txRepo   repository.TransactionRepository
	listener *pq.Listener
	logger   *slog.Logger
	metrics  RefreshMetrics

	readyOnce sync.Once
	ready     chan struct{}

	mu      sync.Mutex
	subs    map[string]map[int64]*pgSubscriber
	nextSub int64
}

// pgSubscriber は1件の購読を表す。
// activeフラグはストアのロック下でのみ読み書きされる。
type pgSubscriber struct {
	userID     string
	onSnapshot SnapshotFunc
	onError    ErrorFunc
	active     bool
}

// NewPostgres はPostgreSQLストアアダプタを生成する。
// Startを呼ぶまでアダプタは未初期化であり、AppendはSTORE_UNAVAILABLEを返す。
func NewPostgres(databaseURL string, txRepo repository.TransactionRepository, logger *slog.Logger, minReconnect, maxReconnect time.Duration) *Postgres {
	if minReconnect <= 0 {
		minReconnect = defaultMinReconnect
	}
	if maxReconnect <= 0 {
		maxReconnect = defaultMaxReconnect
	}
	listener := pq.NewListener(databaseURL, minReconnect, maxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				logger.Error("store listener event",
					slog.Int("event", int(ev)),
					slog.String("error", err.Error()),
				)
			}
		})

	return &Postgres{
		txRepo:   txRepo,
		listener: listener,
		logger:   logger,
		ready:    make(chan struct{}),
		subs:     make(map[string]map[int64]*pgSubscriber),
	}
}

// SetMetrics はスナップショット再クエリの計測先を設定する。
// Startより前に呼ぶこと。nilのままでも動作する。
func (p *Postgres) SetMetrics(m RefreshMetrics) {
	p.metrics = m
}

// Start は通知チャネルのLISTENを開始し、アダプタを初期化済みにする。
// 初期化の完了はWaitReadyを待つ全依存先に一度だけ伝搬する。
// コンテキストがキャンセルされるまで通知の受信を継続する。
func (p *Postgres) Start(ctx context.Context) error {
	if err := p.listener.Listen(NotifyChannel); err != nil {
		return model.NewStoreUnavailableError()
	}

	p.readyOnce.Do(func() { close(p.ready) })
	p.logger.Info("store adapter ready", slog.String("channel", NotifyChannel))

	go p.notifyLoop(ctx)
	return nil
}

// WaitReady はStartによる初期化完了を待つ。
func (p *Postgres) WaitReady(ctx context.Context) error {
	select {
	case <-p.ready:
		return nil
	case <-ctx.Done():
		return model.NewStoreUnavailableError()
	}
}

// isReady はアダプタが初期化済みかを返す。
func (p *Postgres) isReady() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

// Append は取引を1件追記する。IDはここで採番し、recorded_atはDBが採番する。
// 挿入に成功すると、DBトリガのNOTIFY経由で購読者へ新しいスナップショットが
// 非同期に配送される。ローカル状態の楽観的更新は行わない。
func (p *Postgres) Append(ctx context.Context, userID string, draft model.TransactionDraft) (string, error) {
	if !p.isReady() {
		return "", model.NewStoreUnavailableError()
	}

	tx := &model.Transaction{
		ID:         uuid.New().String(),
		UserID:     userID,
		Type:       draft.Type,
		Amount:     draft.Amount,
		Note:       draft.Note,
		OccurredAt: draft.OccurredAt,
	}

	if err := p.txRepo.Insert(ctx, tx); err != nil {
		return "", model.NewWriteFailedError(err.Error())
	}

	return tx.ID, nil
}

// Subscribe は購読を登録し、初回スナップショットを非同期に配送する。
func (p *Postgres) Subscribe(userID string, onSnapshot SnapshotFunc, onError ErrorFunc) (CancelFunc, error) {
	if !p.isReady() {
		return nil, model.NewStoreUnavailableError()
	}

	p.mu.Lock()
	p.nextSub++
	id := p.nextSub
	sub := &pgSubscriber{
		userID:     userID,
		onSnapshot: onSnapshot,
		onError:    onError,
		active:     true,
	}
	if p.subs[userID] == nil {
		p.subs[userID] = make(map[int64]*pgSubscriber)
	}
	p.subs[userID][id] = sub
	p.mu.Unlock()

	// 初回スナップショットの配送
	go p.refresh(context.Background(), userID)

	cancel := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if !sub.active {
			return // 冪等
		}
		sub.active = false
		delete(p.subs[userID], id)
	}
	return cancel, nil
}

// notifyLoop はNOTIFYを受信し、該当ユーザーの購読者へ再配送する。
// 通知の取りこぼし（リスナー再接続時のnil通知）では全購読ユーザーを
// リフレッシュして整合性を回復する。
func (p *Postgres) notifyLoop(ctx context.Context) {
	defer p.listener.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-p.listener.Notify:
			if n == nil {
				// 再接続が起きた。見逃した変更があるかもしれないため
				// 全購読ユーザーを再クエリする。
				p.refreshAll(ctx)
				continue
			}
			p.refresh(ctx, n.Extra)
		}
	}
}

// refresh は指定ユーザーの台帳を再クエリし、アクティブな購読者に配送する。
// 配送はストアのロック下で行い、cancelとの競合で解除後のコールバックが
// 発火しないことを保証する。
func (p *Postgres) refresh(ctx context.Context, userID string) {
	p.mu.Lock()
	hasSubs := len(p.subs[userID]) > 0
	p.mu.Unlock()
	if !hasSubs {
		return
	}

	txs, err := p.txRepo.ListByUserID(ctx, userID)
	if p.metrics != nil {
		if err != nil {
			p.metrics.RecordSnapshotRefreshFailure()
		} else {
			p.metrics.RecordSnapshotRefresh()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sub := range p.subs[userID] {
		if !sub.active {
			continue
		}
		if err != nil {
			sub.onError(err)
			continue
		}
		snapshot := make([]model.Transaction, len(txs))
		copy(snapshot, txs)
		sub.onSnapshot(snapshot)
	}
}

// refreshAll は購読中の全ユーザーをリフレッシュする。
func (p *Postgres) refreshAll(ctx context.Context) {
	p.mu.Lock()
	userIDs := make([]string, 0, len(p.subs))
	for uid, subs := range p.subs {
		if len(subs) > 0 {
			userIDs = append(userIDs, uid)
		}
	}
	p.mu.Unlock()

	for _, uid := range userIDs {
		p.refresh(ctx, uid)
	}
}

var _ Store = (*Postgres)(nil)
