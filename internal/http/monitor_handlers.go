package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/capture"
	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/monitor"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"
	"github.com/chamuda-arangalla/EDUGuard/internal/store"

	"go.uber.org/zap"
)

// MonitorHandler 监控会话控制与数据查询
type MonitorHandler struct {
	registry      *monitor.Registry
	gateway       repository.Gateway
	kv            store.KVStore // 可为 nil
	windowMinutes int
	logger        *zap.Logger
}

// NewMonitorHandler 创建处理器
func NewMonitorHandler(registry *monitor.Registry, gateway repository.Gateway, kv store.KVStore, windowMinutes int, logger *zap.Logger) *MonitorHandler {
	return &MonitorHandler{
		registry:      registry,
		gateway:       gateway,
		kv:            kv,
		windowMinutes: windowMinutes,
		logger:        logger,
	}
}

// Start POST /api/{type}/start
func (m *MonitorHandler) Start(w http.ResponseWriter, r *http.Request, monitorType models.MonitorType) {
	userID := userIDFromRequest(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user ID is required"))
		return
	}

	if err := m.registry.Start(r.Context(), userID, monitorType); err != nil {
		switch {
		case errors.Is(err, capture.ErrDeviceUnavailable):
			writeJSON(w, http.StatusServiceUnavailable, Fail("capture device unavailable"))
		case errors.Is(err, monitor.ErrSessionBusy):
			writeJSON(w, http.StatusConflict, Fail("session transition in progress, retry shortly"))
		default:
			m.logger.Error("Failed to start monitoring session",
				zap.String("user_id", userID),
				zap.String("monitor_type", string(monitorType)),
				zap.Error(err),
			)
			writeJSON(w, http.StatusInternalServerError, Fail("failed to start monitoring"))
		}
		return
	}

	writeJSON(w, http.StatusOK, OkMessage(fmt.Sprintf("%s monitoring started", monitorType)))
}

// Stop POST /api/{type}/stop
func (m *MonitorHandler) Stop(w http.ResponseWriter, r *http.Request, monitorType models.MonitorType) {
	userID := userIDFromRequest(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user ID is required"))
		return
	}

	if err := m.registry.Stop(r.Context(), userID, monitorType); err != nil {
		if errors.Is(err, monitor.ErrSessionBusy) {
			writeJSON(w, http.StatusConflict, Fail("session transition in progress, retry shortly"))
			return
		}
		m.logger.Error("Failed to stop monitoring session",
			zap.String("user_id", userID),
			zap.String("monitor_type", string(monitorType)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to stop monitoring"))
		return
	}

	writeJSON(w, http.StatusOK, OkMessage(fmt.Sprintf("%s monitoring stopped", monitorType)))
}

// Status GET /api/{type}/status
func (m *MonitorHandler) Status(w http.ResponseWriter, r *http.Request, monitorType models.MonitorType) {
	userID := userIDFromRequest(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user ID is required"))
		return
	}

	for _, status := range m.registry.Status(userID) {
		if status.MonitorType == monitorType {
			writeJSON(w, http.StatusOK, Ok(status))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, Fail("unknown monitor type"))
}

// RecentData GET /api/{type}/data/recent?minutes=N
//
// 默认窗口走缓存优先（心跳刷新的统计），自定义窗口按需重算。
// 任何读路径失败都降级为格式完整的空统计，不向客户端透传底层错误。
func (m *MonitorHandler) RecentData(w http.ResponseWriter, r *http.Request, monitorType models.MonitorType) {
	userID := userIDFromRequest(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user ID is required"))
		return
	}

	minutes := parseInt(r.URL.Query().Get("minutes"), m.windowMinutes)
	if minutes <= 0 {
		minutes = m.windowMinutes
	}

	if minutes == m.windowMinutes {
		if stats, ok := m.cachedStats(r, userID, monitorType); ok {
			writeJSON(w, http.StatusOK, Ok(stats))
			return
		}
	}

	if m.registry == nil {
		writeJSON(w, http.StatusOK, Ok(fallbackStats(userID, monitorType, minutes)))
		return
	}

	stats := m.registry.Summarize(userID, monitorType, time.Duration(minutes)*time.Minute)
	writeJSON(w, http.StatusOK, Ok(stats))
}

func (m *MonitorHandler) cachedStats(r *http.Request, userID string, monitorType models.MonitorType) (models.WindowStats, bool) {
	if m.kv == nil {
		return models.WindowStats{}, false
	}

	key := fmt.Sprintf("eduguard:stats:%s:%s", userID, monitorType)
	raw, err := m.kv.Get(r.Context(), key)
	if err != nil {
		if !errors.Is(err, store.ErrCacheMiss) {
			m.logger.Warn("Stats cache read failed", zap.String("key", key), zap.Error(err))
		}
		return models.WindowStats{}, false
	}

	var stats models.WindowStats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		m.logger.Warn("Stats cache entry corrupt", zap.String("key", key), zap.Error(err))
		return models.WindowStats{}, false
	}
	return stats, true
}

// fallbackStats 查询路径完全不可用时的降级负载：格式完整、标记数据不足
func fallbackStats(userID string, monitorType models.MonitorType, minutes int) models.WindowStats {
	cfg := models.DefaultMonitorConfigs()[monitorType]
	counts := make(map[string]int, len(cfg.Labels))
	pcts := make(map[string]float64, len(cfg.Labels))
	for _, label := range cfg.Labels {
		counts[label] = 0
		pcts[label] = 0
	}
	return models.WindowStats{
		MonitorType:      monitorType,
		UserID:           userID,
		WindowMinutes:    float64(minutes),
		InsufficientData: true,
		LabelCounts:      counts,
		LabelPercentages: pcts,
		ComputedAt:       time.Now(),
	}
}

// RecentAlerts GET /api/{type}/alerts/recent?limit=N
func (m *MonitorHandler) RecentAlerts(w http.ResponseWriter, r *http.Request, monitorType models.MonitorType) {
	userID := userIDFromRequest(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user ID is required"))
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 20)
	alerts, err := m.gateway.QueryAlerts(r.Context(), userID, limit)
	if err != nil {
		m.logger.Warn("Alert history read failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		// 读失败降级为空列表 + 明确的 message，客户端 UI 不因此阻塞
		writeJSON(w, http.StatusOK, Result[[]models.AlertRecord]{
			Status:  StatusSuccess,
			Message: "alert history temporarily unavailable",
			Data:    []models.AlertRecord{},
		})
		return
	}

	// 只保留该监控类型的报警
	filtered := make([]models.AlertRecord, 0, len(alerts))
	for _, alert := range alerts {
		if alert.MonitorType == monitorType {
			filtered = append(filtered, alert)
		}
	}
	writeJSON(w, http.StatusOK, Ok(filtered))
}

// CheckAlerts POST /api/{type}/check-alerts
//
// 手动触发一轮评估（客户端启动后用来立即拿到评估结果），
// 与心跳同一条路径，冷却规则同样生效。
func (m *MonitorHandler) CheckAlerts(w http.ResponseWriter, r *http.Request, monitorType models.MonitorType) {
	userID := userIDFromRequest(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user ID is required"))
		return
	}

	stats, alert, err := m.registry.EvaluateNow(r.Context(), userID, monitorType)
	if err != nil {
		m.logger.Error("Manual alert evaluation failed",
			zap.String("user_id", userID),
			zap.String("monitor_type", string(monitorType)),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("alert evaluation failed"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"stats":           stats,
		"alert_triggered": alert != nil,
		"alert":           alert,
	}))
}

// MarkAlertRead POST /api/alerts/{id}/read
func (m *MonitorHandler) MarkAlertRead(w http.ResponseWriter, r *http.Request, alertID string) {
	userID := userIDFromRequest(r)
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("user ID is required"))
		return
	}

	if err := m.gateway.MarkAlertRead(r.Context(), userID, alertID); err != nil {
		if errors.Is(err, repository.ErrAlertNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("alert not found"))
			return
		}
		m.logger.Error("Failed to mark alert read",
			zap.String("user_id", userID),
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update alert"))
		return
	}

	writeJSON(w, http.StatusOK, OkMessage("alert marked as read"))
}
