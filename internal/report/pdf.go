package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/hitoshi/exptra/internal/model"
)

// 配色。元のWeb UIのパレットに合わせる。
var (
	colorTitle   = [3]int{67, 97, 238}
	colorIncome  = [3]int{76, 201, 240}
	colorExpense = [3]int{247, 37, 133}
	colorMuted   = [3]int{100, 100, 100}
	colorBody    = [3]int{0, 0, 0}
)

// PDFRenderer はDocumentをPDFバイト列へ直列化するRenderer実装。
type PDFRenderer struct{}

// NewPDFRenderer はPDFRendererを生成する。
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render はDocumentをA4縦のPDFに描画する。
// レイアウト座標はDocument側で確定済みであり、ここでは座標に従って
// 描画するだけでページ割りの判断は行わない。
func (r *PDFRenderer) Render(doc *Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	const (
		centerX      = 105.0 // A4幅210mmの中央
		leftX        = 20.0
		rightX       = 180.0
		titleY       = 20.0
		userLineY    = 30.0
		balanceY     = 45.0
		noteOffsetY  = 5.0
		labelOffsetY = 5.0
	)

	for i, page := range doc.Pages {
		pdf.AddPage()

		// ヘッダは1ページ目のみ
		if i == 0 {
			pdf.SetFont("Helvetica", "B", 16)
			pdf.SetTextColor(colorTitle[0], colorTitle[1], colorTitle[2])
			title := tr(doc.Title)
			pdf.Text(centerX-pdf.GetStringWidth(title)/2, titleY, title)

			pdf.SetFont("Helvetica", "", 10)
			pdf.SetTextColor(colorMuted[0], colorMuted[1], colorMuted[2])
			userLine := tr(fmt.Sprintf("User: %s | Generated: %s",
				doc.UserLabel, doc.GeneratedAt.Format("2006-01-02")))
			pdf.Text(centerX-pdf.GetStringWidth(userLine)/2, userLineY, userLine)

			pdf.SetFont("Helvetica", "", 12)
			pdf.SetTextColor(colorBody[0], colorBody[1], colorBody[2])
			pdf.Text(leftX, balanceY, tr(fmt.Sprintf("Current Balance: $%s", doc.Balance.Format())))
		}

		for _, row := range page.Rows {
			// 左側: 日時とメモ
			pdf.SetFont("Helvetica", "", 9)
			pdf.SetTextColor(colorBody[0], colorBody[1], colorBody[2])
			pdf.Text(leftX, row.Y, tr(row.When.Format("2006-01-02 15:04")))
			pdf.Text(leftX, row.Y+noteOffsetY, tr(row.Note))

			// 右側: 符号付き金額（種別ごとに色分け）
			var amountText string
			if row.Type == model.TransactionTypeIncome {
				pdf.SetTextColor(colorIncome[0], colorIncome[1], colorIncome[2])
				amountText = "+$" + row.Amount.Format()
			} else {
				pdf.SetTextColor(colorExpense[0], colorExpense[1], colorExpense[2])
				amountText = "-$" + row.Amount.Format()
			}
			pdf.Text(rightX-pdf.GetStringWidth(amountText), row.Y, amountText)

			// 金額の下に種別ラベル
			pdf.SetFont("Helvetica", "", 8)
			pdf.SetTextColor(colorMuted[0], colorMuted[1], colorMuted[2])
			label := strings.ToUpper(string(row.Type))
			pdf.Text(rightX-pdf.GetStringWidth(label), row.Y+labelOffsetY, label)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

var _ Renderer = (*PDFRenderer)(nil)
