// Package report は台帳スナップショットのレポート生成を提供する。
//
// Exporterはページ割りと行配置の算術のみを担い、バイナリ形式への
// 実際の描画はRenderer（PDF実装）に委譲する。
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/money"
)

// レイアウト定数。A4縦（mm）を前提とする。
const (
	// pageBreakY はこの値を超えたら改ページする縦カーソルの閾値。
	pageBreakY = 270.0
	// firstPageTopY は1ページ目の明細開始位置。ヘッダの下から始まる。
	firstPageTopY = 60.0
	// followPageTopY は2ページ目以降の明細開始位置。
	followPageTopY = 20.0
	// rowStep は明細1行あたりの縦送り。
	rowStep = 15.0
)

// Row はレポート明細の1行を表す。
// Yはページ内の縦位置（ページ割り確定済みのレイアウト座標）。
type Row struct {
	Y      float64
	When   time.Time
	Note   string
	Amount money.Money
	Type   model.TransactionType
}

// Page はレポートの1ページ分の明細を表す。
type Page struct {
	Rows []Row
}

// Document はレンダリング前のレポートを表す。
// ヘッダ情報と、ページ割り済みの明細を保持する。
type Document struct {
	Title       string
	UserLabel   string
	GeneratedAt time.Time
	Balance     money.Money
	Pages       []Page
}

// Renderer はDocumentをバイナリ形式へ直列化する外部コラボレータの
// インターフェース。
type Renderer interface {
	Render(doc *Document) ([]byte, error)
}

// Exporter は台帳スナップショットからDocumentを組み立てる。
type Exporter struct {
	now func() time.Time
}

// NewExporter はExporterを生成する。
func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// SetClock は生成時刻の供給源を差し替える。テスト用。
func (e *Exporter) SetClock(now func() time.Time) {
	e.now = now
}

// BuildDocument はスナップショットからページ割り済みのDocumentを組み立てる。
// 取引が1件もない場合はEMPTY_LEDGERを返す。
// 明細はスナップショットの順序（recorded_at降順 = 新しい順）のまま並べ、
// 縦カーソルがページ下端を超えるたびに新しいページを開始する。
func (e *Exporter) BuildDocument(identity model.Identity, snapshot []model.Transaction, balance money.Money) (*Document, error) {
	if len(snapshot) == 0 {
		return nil, model.NewEmptyLedgerError()
	}

	doc := &Document{
		Title:       "ExpTra - Transaction Report",
		UserLabel:   identity.Label,
		GeneratedAt: e.now(),
		Balance:     balance,
	}

	page := Page{}
	y := firstPageTopY
	for _, tx := range snapshot {
		if y > pageBreakY {
			doc.Pages = append(doc.Pages, page)
			page = Page{}
			y = followPageTopY
		}
		page.Rows = append(page.Rows, Row{
			Y:      y,
			When:   tx.OccurredAt,
			Note:   tx.Note,
			Amount: tx.Amount,
			Type:   tx.Type,
		})
		y += rowStep
	}
	doc.Pages = append(doc.Pages, page)

	return doc, nil
}

// Filename はエクスポートファイル名を返す。
// 命名規約: Ledger_<ユーザーラベル>_<エクスポート日>.<拡張子>
func Filename(identity model.Identity, exportedAt time.Time, ext string) string {
	return fmt.Sprintf("Ledger_%s_%s.%s",
		sanitizeLabel(identity.Label),
		exportedAt.Format("2006-01-02"),
		ext,
	)
}

// sanitizeLabel はファイル名に使えない文字を除去・置換する。
func sanitizeLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return "user"
	}
	replacer := strings.NewReplacer(
		" ", "-",
		"/", "-",
		"\\", "-",
		":", "-",
		"@", "_at_",
	)
	return replacer.Replace(label)
}
