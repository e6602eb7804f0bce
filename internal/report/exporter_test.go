package report

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/money"
)

var reportIdentity = model.Identity{UID: "user-1", Label: "alice"}

func snapshotOf(t *testing.T, n int) []model.Transaction {
	t.Helper()
	amount, err := money.Parse("10.00")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	txs := make([]model.Transaction, n)
	for i := range txs {
		txs[i] = model.Transaction{
			ID:         fmt.Sprintf("tx-%d", i),
			UserID:     "user-1",
			Type:       model.TransactionTypeIncome,
			Amount:     amount,
			Note:       fmt.Sprintf("note %d", i),
			OccurredAt: time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC),
		}
	}
	return txs
}

func countRows(doc *Document) int {
	total := 0
	for _, page := range doc.Pages {
		total += len(page.Rows)
	}
	return total
}

func TestBuildDocument_EmptyLedger(t *testing.T) {
	e := NewExporter()

	_, err := e.BuildDocument(reportIdentity, nil, money.Zero())
	if err == nil {
		t.Fatal("BuildDocument with empty snapshot should fail")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEmptyLedger {
		t.Errorf("expected EMPTY_LEDGER, got: %v", err)
	}
}

func TestBuildDocument_HeaderFields(t *testing.T) {
	e := NewExporter()
	fixed := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	e.SetClock(func() time.Time { return fixed })

	balance, _ := money.Parse("120.25")
	doc, err := e.BuildDocument(reportIdentity, snapshotOf(t, 3), balance)
	if err != nil {
		t.Fatalf("BuildDocument returned error: %v", err)
	}

	if doc.Title != "ExpTra - Transaction Report" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.UserLabel != "alice" {
		t.Errorf("UserLabel = %q, want alice", doc.UserLabel)
	}
	if !doc.GeneratedAt.Equal(fixed) {
		t.Errorf("GeneratedAt = %v, want %v", doc.GeneratedAt, fixed)
	}
	if !doc.Balance.Equal(balance) {
		t.Errorf("Balance = %s, want %s", doc.Balance, balance)
	}
}

func TestBuildDocument_SinglePage(t *testing.T) {
	e := NewExporter()

	doc, err := e.BuildDocument(reportIdentity, snapshotOf(t, 5), money.Zero())
	if err != nil {
		t.Fatalf("BuildDocument returned error: %v", err)
	}

	if len(doc.Pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(doc.Pages))
	}
	if countRows(doc) != 5 {
		t.Errorf("rows = %d, want 5", countRows(doc))
	}

	// 1ページ目の明細はヘッダの下から始まり、1行ごとに一定量ずつ下がる
	for i, row := range doc.Pages[0].Rows {
		want := firstPageTopY + float64(i)*rowStep
		if row.Y != want {
			t.Errorf("row %d Y = %v, want %v", i, row.Y, want)
		}
	}
}

func TestBuildDocument_RowsKeepSnapshotOrder(t *testing.T) {
	e := NewExporter()

	snapshot := snapshotOf(t, 4)
	doc, err := e.BuildDocument(reportIdentity, snapshot, money.Zero())
	if err != nil {
		t.Fatalf("BuildDocument returned error: %v", err)
	}

	for i, row := range doc.Pages[0].Rows {
		if row.Note != snapshot[i].Note {
			t.Errorf("row %d note = %q, want %q (snapshot order preserved)", i, row.Note, snapshot[i].Note)
		}
	}
}

func TestBuildDocument_Pagination(t *testing.T) {
	// 1ページ目はヘッダ分だけ行数が少なく、2ページ目以降は上端から詰める
	firstPageRatio := (pageBreakY - firstPageTopY) / rowStep
	followPageRatio := (pageBreakY - followPageTopY) / rowStep
	firstPageRows := int(firstPageRatio) + 1
	followPageRows := int(followPageRatio) + 1

	tests := []struct {
		name      string
		total     int
		wantPages []int
	}{
		{"exactly one page", firstPageRows, []int{firstPageRows}},
		{"one row overflow", firstPageRows + 1, []int{firstPageRows, 1}},
		{"three pages", firstPageRows + followPageRows + 1, []int{firstPageRows, followPageRows, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExporter()
			doc, err := e.BuildDocument(reportIdentity, snapshotOf(t, tt.total), money.Zero())
			if err != nil {
				t.Fatalf("BuildDocument returned error: %v", err)
			}

			if len(doc.Pages) != len(tt.wantPages) {
				t.Fatalf("pages = %d, want %d", len(doc.Pages), len(tt.wantPages))
			}
			for i, want := range tt.wantPages {
				if got := len(doc.Pages[i].Rows); got != want {
					t.Errorf("page %d rows = %d, want %d", i, got, want)
				}
			}

			// 2ページ目以降の先頭行は上端から始まる
			for i := 1; i < len(doc.Pages); i++ {
				if doc.Pages[i].Rows[0].Y != followPageTopY {
					t.Errorf("page %d first row Y = %v, want %v", i, doc.Pages[i].Rows[0].Y, followPageTopY)
				}
			}
		})
	}
}

func TestFilename(t *testing.T) {
	exportedAt := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)

	tests := []struct {
		label string
		want  string
	}{
		{"alice", "Ledger_alice_2026-03-15.pdf"},
		{"alice smith", "Ledger_alice-smith_2026-03-15.pdf"},
		{"a/b\\c:d", "Ledger_a-b-c-d_2026-03-15.pdf"},
		{"bob@example.com", "Ledger_bob_at_example.com_2026-03-15.pdf"},
		{"", "Ledger_user_2026-03-15.pdf"},
		{"   ", "Ledger_user_2026-03-15.pdf"},
	}

	for _, tt := range tests {
		got := Filename(model.Identity{UID: "u", Label: tt.label}, exportedAt, "pdf")
		if got != tt.want {
			t.Errorf("Filename(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}
