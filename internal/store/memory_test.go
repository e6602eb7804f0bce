package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/money"
)

func draftOf(t *testing.T, txType model.TransactionType, amount, note string) model.TransactionDraft {
	t.Helper()
	m, err := money.Parse(amount)
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", amount, err)
	}
	return model.TransactionDraft{
		Type:       txType,
		Amount:     m,
		Note:       note,
		OccurredAt: time.Now(),
	}
}

func TestMemory_WaitReady(t *testing.T) {
	m := NewMemory()
	if err := m.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady returned error: %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.WaitReady(cancelled); err == nil {
		t.Error("WaitReady with cancelled context should return error")
	}
}

func TestMemory_AppendAssignsIDAndRecordedAt(t *testing.T) {
	m := NewMemory()

	id, err := m.Append(context.Background(), "user-1", draftOf(t, model.TransactionTypeIncome, "10.00", "salary"))
	if err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if id == "" {
		t.Error("Append should assign a non-empty ID")
	}

	var snapshot []model.Transaction
	cancel, err := m.Subscribe("user-1", func(txs []model.Transaction) { snapshot = txs }, func(error) {})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer cancel()

	if len(snapshot) != 1 {
		t.Fatalf("snapshot has %d transactions, want 1", len(snapshot))
	}
	if snapshot[0].ID != id {
		t.Errorf("snapshot ID = %q, want %q", snapshot[0].ID, id)
	}
	if snapshot[0].RecordedAt.IsZero() {
		t.Error("RecordedAt should be assigned by the store")
	}
	if snapshot[0].UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", snapshot[0].UserID)
	}
}

func TestMemory_SnapshotOrderedByRecordedAtDesc(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	first, _ := m.Append(ctx, "user-1", draftOf(t, model.TransactionTypeIncome, "1.00", "a"))
	second, _ := m.Append(ctx, "user-1", draftOf(t, model.TransactionTypeIncome, "2.00", "b"))
	third, _ := m.Append(ctx, "user-1", draftOf(t, model.TransactionTypeIncome, "3.00", "c"))

	var snapshot []model.Transaction
	cancel, err := m.Subscribe("user-1", func(txs []model.Transaction) { snapshot = txs }, func(error) {})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer cancel()

	wantOrder := []string{third, second, first}
	if len(snapshot) != 3 {
		t.Fatalf("snapshot has %d transactions, want 3", len(snapshot))
	}
	for i, id := range wantOrder {
		if snapshot[i].ID != id {
			t.Errorf("snapshot[%d].ID = %q, want %q (newest first)", i, snapshot[i].ID, id)
		}
	}

	// recorded_atは単調増加
	for i := 1; i < len(snapshot); i++ {
		if !snapshot[i-1].RecordedAt.After(snapshot[i].RecordedAt) {
			t.Errorf("RecordedAt not strictly decreasing at index %d", i)
		}
	}
}

func TestMemory_SubscribeDeliversOnAppend(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var deliveries [][]model.Transaction
	cancel, err := m.Subscribe("user-1", func(txs []model.Transaction) {
		deliveries = append(deliveries, txs)
	}, func(error) {})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer cancel()

	// 初回スナップショット（空）
	if len(deliveries) != 1 || len(deliveries[0]) != 0 {
		t.Fatalf("expected 1 empty initial delivery, got %d", len(deliveries))
	}

	if _, err := m.Append(ctx, "user-1", draftOf(t, model.TransactionTypeIncome, "5.00", "x")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	if len(deliveries) != 2 {
		t.Fatalf("expected 2 deliveries after append, got %d", len(deliveries))
	}
	if len(deliveries[1]) != 1 {
		t.Errorf("second delivery has %d transactions, want 1", len(deliveries[1]))
	}
}

func TestMemory_LedgersAreIsolatedPerUser(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Append(ctx, "user-a", draftOf(t, model.TransactionTypeIncome, "10.00", "a")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	aDeliveries := 0
	var bSnapshot []model.Transaction
	cancelA, _ := m.Subscribe("user-a", func(txs []model.Transaction) { aDeliveries++ }, func(error) {})
	defer cancelA()
	cancelB, _ := m.Subscribe("user-b", func(txs []model.Transaction) { bSnapshot = txs }, func(error) {})
	defer cancelB()

	if len(bSnapshot) != 0 {
		t.Errorf("user-b sees %d transactions, want 0", len(bSnapshot))
	}

	// user-bへの追記はuser-aの購読者に配送されない
	before := aDeliveries
	if _, err := m.Append(ctx, "user-b", draftOf(t, model.TransactionTypeExpense, "1.00", "b")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if aDeliveries != before {
		t.Error("append to user-b must not deliver to user-a subscribers")
	}
	if len(bSnapshot) != 1 {
		t.Errorf("user-b snapshot has %d transactions, want 1", len(bSnapshot))
	}
}

func TestMemory_CancelStopsDeliveryAndIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	deliveries := 0
	cancel, err := m.Subscribe("user-1", func(txs []model.Transaction) { deliveries++ }, func(error) {})
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}

	cancel()
	cancel() // 冪等: 2回目はno-op

	before := deliveries
	if _, err := m.Append(ctx, "user-1", draftOf(t, model.TransactionTypeIncome, "5.00", "x")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if deliveries != before {
		t.Error("cancelled subscriber must not receive deliveries")
	}
}

func TestMemory_SnapshotIsIndependentCopy(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	if _, err := m.Append(ctx, "user-1", draftOf(t, model.TransactionTypeIncome, "5.00", "x")); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	var snapshot []model.Transaction
	cancel, _ := m.Subscribe("user-1", func(txs []model.Transaction) { snapshot = txs }, func(error) {})
	defer cancel()

	// 受け取ったスライスを書き換えてもストア内部の台帳は汚染されない
	snapshot[0].Note = "mutated"

	var fresh []model.Transaction
	cancel2, _ := m.Subscribe("user-1", func(txs []model.Transaction) { fresh = txs }, func(error) {})
	defer cancel2()

	if fresh[0].Note != "x" {
		t.Errorf("store ledger was mutated through a delivered snapshot: note = %q", fresh[0].Note)
	}
}

func TestMemory_AppendWithCancelledContext(t *testing.T) {
	m := NewMemory()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Append(ctx, "user-1", draftOf(t, model.TransactionTypeIncome, "5.00", "x"))
	if err == nil {
		t.Fatal("Append with cancelled context should return error")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeWriteFailed {
		t.Errorf("expected WRITE_FAILED, got: %v", err)
	}
}
