package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/hitoshi/exptra/internal/money"
)

func TestPDFRenderer_Render(t *testing.T) {
	e := NewExporter()
	e.SetClock(func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) })

	balance, _ := money.Parse("30.00")
	doc, err := e.BuildDocument(reportIdentity, snapshotOf(t, 3), balance)
	if err != nil {
		t.Fatalf("BuildDocument returned error: %v", err)
	}

	data, err := NewPDFRenderer().Render(doc)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("output should start with a PDF header")
	}
	if len(data) < 500 {
		t.Errorf("output suspiciously small: %d bytes", len(data))
	}
}

func TestPDFRenderer_MultiPage(t *testing.T) {
	e := NewExporter()

	// 1ページに収まらない件数で複数ページのPDFが生成されること
	doc, err := e.BuildDocument(reportIdentity, snapshotOf(t, 40), money.Zero())
	if err != nil {
		t.Fatalf("BuildDocument returned error: %v", err)
	}
	if len(doc.Pages) < 2 {
		t.Fatalf("expected multiple pages, got %d", len(doc.Pages))
	}

	data, err := NewPDFRenderer().Render(doc)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	if !bytes.HasPrefix(data, []byte("%PDF-")) {
		t.Error("output should start with a PDF header")
	}

	single, err := e.BuildDocument(reportIdentity, snapshotOf(t, 1), money.Zero())
	if err != nil {
		t.Fatalf("BuildDocument returned error: %v", err)
	}
	singleData, err := NewPDFRenderer().Render(single)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if len(data) <= len(singleData) {
		t.Errorf("multi-page output (%d bytes) should be larger than single-row output (%d bytes)",
			len(data), len(singleData))
	}
}
