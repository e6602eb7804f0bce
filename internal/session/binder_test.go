package session

import (
	"context"
	"testing"

	"github.com/hitoshi/exptra/internal/auth"
	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/money"
)

// mockEngine はLedgerEngineの関数フィールド差し替え可能なモック。
type mockEngine struct {
	bindFn   func(identity model.Identity) error
	unbindFn func()

	boundTo *model.Identity
}

func (m *mockEngine) Bind(identity model.Identity) error {
	if m.bindFn != nil {
		if err := m.bindFn(identity); err != nil {
			return err
		}
	}
	m.boundTo = &identity
	return nil
}

func (m *mockEngine) Unbind() {
	if m.unbindFn != nil {
		m.unbindFn()
	}
	m.boundTo = nil
}

func (m *mockEngine) Balance() money.Money { return money.Zero() }

func (m *mockEngine) Submit(ctx context.Context, txType model.TransactionType, rawAmount, note string) error {
	return nil
}

func (m *mockEngine) View(filter model.TransactionFilter) ([]model.Transaction, error) {
	return nil, nil
}

func (m *mockEngine) Loaded() bool { return m.boundTo != nil }

func (m *mockEngine) Identity() (model.Identity, bool) {
	if m.boundTo == nil {
		return model.Identity{}, false
	}
	return *m.boundTo, true
}

func signedIn(uid, label string) auth.StateChange {
	return auth.StateChange{Kind: auth.StateSignedIn, Identity: model.Identity{UID: uid, Label: label}}
}

func signedOut(uid string) auth.StateChange {
	return auth.StateChange{Kind: auth.StateSignedOut, Identity: model.Identity{UID: uid}}
}

func TestBinder_SignedInBindsEngine(t *testing.T) {
	var created []*mockEngine
	b := NewBinder(func() LedgerEngine {
		e := &mockEngine{}
		created = append(created, e)
		return e
	})

	b.HandleStateChange(signedIn("user-1", "alice"))

	if len(created) != 1 {
		t.Fatalf("expected 1 engine created, got %d", len(created))
	}
	if created[0].boundTo == nil || created[0].boundTo.UID != "user-1" {
		t.Errorf("engine bound to %+v, want user-1", created[0].boundTo)
	}
	if b.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", b.ActiveCount())
	}
}

func TestBinder_SignedOutUnbindsAndDiscards(t *testing.T) {
	unbinds := 0
	b := NewBinder(func() LedgerEngine {
		return &mockEngine{unbindFn: func() { unbinds++ }}
	})

	b.HandleStateChange(signedIn("user-1", "alice"))
	b.HandleStateChange(signedOut("user-1"))

	if unbinds != 1 {
		t.Errorf("Unbind called %d times, want 1", unbinds)
	}
	if b.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", b.ActiveCount())
	}
}

func TestBinder_SignedOutWithoutBindIsNoop(t *testing.T) {
	b := NewBinder(func() LedgerEngine { return &mockEngine{} })

	// バインドが存在しないユーザーのサインアウトは無害
	b.HandleStateChange(signedOut("unknown-user"))

	if b.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", b.ActiveCount())
	}
}

func TestBinder_DuplicateSignedInReusesEngine(t *testing.T) {
	engines := 0
	b := NewBinder(func() LedgerEngine {
		engines++
		return &mockEngine{}
	})

	// 別端末からの重複サインイン
	b.HandleStateChange(signedIn("user-1", "alice"))
	b.HandleStateChange(signedIn("user-1", "alice"))

	if engines != 1 {
		t.Errorf("created %d engines, want 1 (same user reuses its engine)", engines)
	}
	if b.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", b.ActiveCount())
	}
}

func TestBinder_MultipleUsersGetSeparateEngines(t *testing.T) {
	var created []*mockEngine
	b := NewBinder(func() LedgerEngine {
		e := &mockEngine{}
		created = append(created, e)
		return e
	})

	b.HandleStateChange(signedIn("user-a", "a"))
	b.HandleStateChange(signedIn("user-b", "b"))

	if len(created) != 2 {
		t.Fatalf("expected 2 engines, got %d", len(created))
	}
	if b.ActiveCount() != 2 {
		t.Errorf("ActiveCount = %d, want 2", b.ActiveCount())
	}

	// user-aのサインアウトはuser-bのエンジンに影響しない
	b.HandleStateChange(signedOut("user-a"))
	if b.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", b.ActiveCount())
	}
	if created[1].boundTo == nil {
		t.Error("user-b engine should stay bound")
	}
}

func TestBinder_RapidSignInOutToggle(t *testing.T) {
	b := NewBinder(func() LedgerEngine { return &mockEngine{} })

	for i := 0; i < 10; i++ {
		b.HandleStateChange(signedIn("user-1", "alice"))
		b.HandleStateChange(signedOut("user-1"))
	}

	if b.ActiveCount() != 0 {
		t.Errorf("ActiveCount after toggling = %d, want 0", b.ActiveCount())
	}

	// 最後がsigned-inで終わる場合はバインドが生き残る
	b.HandleStateChange(signedIn("user-1", "alice"))
	if b.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", b.ActiveCount())
	}
}

func TestBinder_BindFailureIsNotRegistered(t *testing.T) {
	fail := true
	b := NewBinder(func() LedgerEngine {
		return &mockEngine{bindFn: func(model.Identity) error {
			if fail {
				return model.NewStoreUnavailableError()
			}
			return nil
		}}
	})

	b.HandleStateChange(signedIn("user-1", "alice"))
	if b.ActiveCount() != 0 {
		t.Errorf("failed bind should not register an engine, ActiveCount = %d", b.ActiveCount())
	}

	// ストア復旧後のEngine呼び出しで遅延バインドが再試行される
	fail = false
	engine, err := b.Engine(model.Identity{UID: "user-1", Label: "alice"})
	if err != nil {
		t.Fatalf("Engine returned error: %v", err)
	}
	if engine == nil {
		t.Fatal("Engine should return a lazily bound engine")
	}
	if b.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d, want 1", b.ActiveCount())
	}
}

func TestBinder_Engine_LazyBindForRestoredSession(t *testing.T) {
	// プロセス再起動後: サインイン遷移を観測していないがセッションは有効
	var created []*mockEngine
	b := NewBinder(func() LedgerEngine {
		e := &mockEngine{}
		created = append(created, e)
		return e
	})

	engine, err := b.Engine(model.Identity{UID: "user-1", Label: "alice"})
	if err != nil {
		t.Fatalf("Engine returned error: %v", err)
	}
	if engine == nil {
		t.Fatal("Engine should lazily bind and return an engine")
	}
	if len(created) != 1 || created[0].boundTo == nil {
		t.Error("lazy bind should create and bind an engine")
	}

	// 2回目は同じエンジンを返す
	again, err := b.Engine(model.Identity{UID: "user-1", Label: "alice"})
	if err != nil {
		t.Fatalf("Engine returned error: %v", err)
	}
	if again != engine {
		t.Error("second Engine call should return the same engine")
	}
	if len(created) != 1 {
		t.Errorf("created %d engines, want 1", len(created))
	}
}

func TestBinder_Engine_StoreDownReturnsError(t *testing.T) {
	b := NewBinder(func() LedgerEngine {
		return &mockEngine{bindFn: func(model.Identity) error {
			return model.NewStoreUnavailableError()
		}}
	})

	_, err := b.Engine(model.Identity{UID: "user-1", Label: "alice"})
	if err == nil {
		t.Fatal("Engine should fail when the store is unavailable")
	}
}
