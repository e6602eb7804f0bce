package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/exptra/internal/model"
	"github.com/hitoshi/exptra/internal/report"
)

// ExportMetrics はレポート出力の計測インターフェース。
type ExportMetrics interface {
	RecordPDFExport()
}

// ReportHandler は取引レポート出力のHTTPハンドラー。
type ReportHandler struct {
	ledgers  LedgerProvider
	users    UserFinder
	exporter *report.Exporter
	renderer report.Renderer
	metrics  ExportMetrics
	now      func() time.Time
}

// NewReportHandler はReportHandlerを生成する。
// metricsはnilでもよい。
func NewReportHandler(ledgers LedgerProvider, users UserFinder, exporter *report.Exporter, renderer report.Renderer, metrics ExportMetrics) *ReportHandler {
	return &ReportHandler{
		ledgers:  ledgers,
		users:    users,
		exporter: exporter,
		renderer: renderer,
		metrics:  metrics,
		now:      time.Now,
	}
}

// SetClock は現在時刻の取得関数を差し替える。テスト用。
func (h *ReportHandler) SetClock(now func() time.Time) {
	h.now = now
}

// ExportPDF は全取引のPDFレポートを生成して返す。
// GET /api/reports/pdf
// 取引が1件もない場合はEMPTY_LEDGERで404を返す。
func (h *ReportHandler) ExportPDF(w http.ResponseWriter, r *http.Request) {
	identity, ok := resolveIdentity(w, r, h.users)
	if !ok {
		return
	}

	engine, err := h.ledgers.Engine(identity)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	snapshot, err := engine.View(model.TransactionFilterAll)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	doc, err := h.exporter.BuildDocument(identity, snapshot, engine.Balance())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	pdfBytes, err := h.renderer.Render(doc)
	if err != nil {
		slog.Error("failed to render pdf report",
			slog.String("user_id", identity.UID),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "REPORT_RENDER_FAILED",
			Message:  "レポートの生成に失敗しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordPDFExport()
	}

	filename := report.Filename(identity, h.now(), "pdf")
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(pdfBytes)))
	w.WriteHeader(http.StatusOK)
	w.Write(pdfBytes)
}
