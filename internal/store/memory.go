package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/exptra/internal/model"
)

// Memory はStoreのインメモリ実装。
// テストおよびPostgres実装の参照セマンティクスとして使用する。
// recorded_atは単調増加で採番され、台帳は常にrecorded_at降順で保持される。
type Memory struct {
	mu       sync.Mutex
	byUser   map[string][]model.Transaction // ユーザーごとの台帳（recorded_at降順）
	subs     map[string]map[int64]*memorySubscriber
	nextSub  int64
	lastTick time.Time // recorded_at採番の単調性を保証する
}

// memorySubscriber は1件の購読を表す。
// activeフラグはストアのロック下でのみ読み書きされ、解除後の配送を防ぐ。
type memorySubscriber struct {
	userID     string
	onSnapshot SnapshotFunc
	onError    ErrorFunc
	active     bool
}

// NewMemory はインメモリストアを生成する。生成直後から初期化済みである。
func NewMemory() *Memory {
	return &Memory{
		byUser: make(map[string][]model.Transaction),
		subs:   make(map[string]map[int64]*memorySubscriber),
	}
}

// WaitReady は常に即座に成功する。インメモリストアに初期化待ちはない。
func (m *Memory) WaitReady(ctx context.Context) error {
	return ctx.Err()
}

// Append は取引を追記し、採番したIDを返す。
// recorded_atはストア採番の単調増加タイムスタンプ。追記後、当該ユーザーの
// 全購読者に新しいスナップショットを同期的に配送する。
func (m *Memory) Append(ctx context.Context, userID string, draft model.TransactionDraft) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", model.NewWriteFailedError(err.Error())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if !now.After(m.lastTick) {
		now = m.lastTick.Add(time.Microsecond)
	}
	m.lastTick = now

	tx := model.Transaction{
		ID:         uuid.New().String(),
		UserID:     userID,
		Type:       draft.Type,
		Amount:     draft.Amount,
		Note:       draft.Note,
		OccurredAt: draft.OccurredAt,
		RecordedAt: now,
	}

	// recorded_atは単調増加なので、先頭への挿入で降順が維持される
	m.byUser[userID] = append([]model.Transaction{tx}, m.byUser[userID]...)

	m.deliverLocked(userID)

	return tx.ID, nil
}

// Subscribe は購読を登録し、初回スナップショットを同期的に配送する。
func (m *Memory) Subscribe(userID string, onSnapshot SnapshotFunc, onError ErrorFunc) (CancelFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	id := m.nextSub
	sub := &memorySubscriber{
		userID:     userID,
		onSnapshot: onSnapshot,
		onError:    onError,
		active:     true,
	}
	if m.subs[userID] == nil {
		m.subs[userID] = make(map[int64]*memorySubscriber)
	}
	m.subs[userID][id] = sub

	// 初回スナップショット
	sub.onSnapshot(m.snapshotLocked(userID))

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !sub.active {
			return // 冪等
		}
		sub.active = false
		delete(m.subs[userID], id)
	}
	return cancel, nil
}

// snapshotLocked は指定ユーザーの台帳のコピーを返す。ロック保持前提。
func (m *Memory) snapshotLocked(userID string) []model.Transaction {
	src := m.byUser[userID]
	dst := make([]model.Transaction, len(src))
	copy(dst, src)
	return dst
}

// deliverLocked は指定ユーザーの全アクティブ購読者にスナップショットを配送する。
// ロック保持中に配送するため、cancelとの競合で解除後のコールバックが
// 発火することはない。
func (m *Memory) deliverLocked(userID string) {
	for _, sub := range m.subs[userID] {
		if sub.active {
			sub.onSnapshot(m.snapshotLocked(userID))
		}
	}
}

var _ Store = (*Memory)(nil)
