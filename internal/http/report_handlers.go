package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/reports"

	"go.uber.org/zap"
)

// ReportHandler 历史报表查询与导出
type ReportHandler struct {
	generator *reports.Generator
	logger    *zap.Logger
}

// NewReportHandler 创建处理器
func NewReportHandler(generator *reports.Generator, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{generator: generator, logger: logger}
}

// parseReportQuery 解析公共查询参数（类型、用户、周期、锚点日期）
func (h *ReportHandler) parseReportQuery(w http.ResponseWriter, r *http.Request, typeStr string) (userID string, monitorType models.MonitorType, period reports.Period, ref time.Time, ok bool) {
	if !models.ValidMonitorType(typeStr) {
		writeJSON(w, http.StatusNotFound, Fail("unknown monitor type"))
		return
	}
	monitorType = models.MonitorType(typeStr)

	userID = userIDFromRequest(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user ID is required"))
		return
	}

	timeframe := r.URL.Query().Get("timeframe")
	if timeframe == "" {
		timeframe = string(reports.PeriodDaily)
	}
	if !reports.ValidPeriod(timeframe) {
		writeJSON(w, http.StatusBadRequest, Fail("timeframe must be daily, weekly or monthly"))
		return
	}
	period = reports.Period(timeframe)

	ref = time.Now()
	if date := r.URL.Query().Get("date"); date != "" {
		parsed, err := time.Parse("2006-01-02", date)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("date must be YYYY-MM-DD"))
			return
		}
		ref = parsed
	}

	ok = true
	return
}

// Report GET /api/reports/{type}?timeframe=daily|weekly|monthly&date=YYYY-MM-DD
func (h *ReportHandler) Report(w http.ResponseWriter, r *http.Request, typeStr string) {
	userID, monitorType, period, ref, ok := h.parseReportQuery(w, r, typeStr)
	if !ok {
		return
	}

	report, err := h.generator.Generate(r.Context(), userID, monitorType, period, ref)
	if err != nil {
		h.logger.Warn("Report generation failed",
			zap.String("user_id", userID),
			zap.String("monitor_type", string(monitorType)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, Fail("report data temporarily unavailable"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(report))
}

// Export GET /api/reports/{type}/export — 下载 xlsx
func (h *ReportHandler) Export(w http.ResponseWriter, r *http.Request, typeStr string) {
	userID, monitorType, period, ref, ok := h.parseReportQuery(w, r, typeStr)
	if !ok {
		return
	}

	report, err := h.generator.Generate(r.Context(), userID, monitorType, period, ref)
	if err != nil {
		h.logger.Warn("Report generation failed",
			zap.String("user_id", userID),
			zap.String("monitor_type", string(monitorType)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, Fail("report data temporarily unavailable"))
		return
	}

	data, err := reports.ExportExcel(report)
	if err != nil {
		h.logger.Error("Report export failed",
			zap.String("user_id", userID),
			zap.String("monitor_type", string(monitorType)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export report"))
		return
	}

	filename := fmt.Sprintf("%s_%s_%s.xlsx", monitorType, period, ref.Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
