// Package evaluator 阈值评估：根据窗口统计产生分级报警，带冷却抑制去重。
package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"
	"github.com/chamuda-arangalla/EDUGuard/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertStream 报警发布到 Redis Streams 的流名
const AlertStream = "eduguard:alerts"

// Evaluator 报警评估器
//
// 评估规则（负面标签在窗口中的百分比）：
//   pct > HighThreshold -> error
//   pct > LowThreshold  -> warning
//   其余                -> 不报警
// 窗口数据不足时直接跳过，不产生报警也不消耗冷却。
type Evaluator struct {
	gateway     repository.Gateway
	suppression *SuppressionStore
	publisher   store.StreamPublisher
	logger      *zap.Logger
}

// NewEvaluator 创建评估器
//
// publisher 可以为 nil（memory 后端运行时没有 Redis）。
func NewEvaluator(gateway repository.Gateway, suppression *SuppressionStore, publisher store.StreamPublisher, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		gateway:     gateway,
		suppression: suppression,
		publisher:   publisher,
		logger:      logger,
	}
}

// Evaluate 评估一次窗口统计
//
// 返回产生的报警记录；被阈值或冷却过滤时返回 nil。持久化失败重试一次，
// 仍失败则丢弃该条报警（冷却键已占用，记录错误日志后继续）。
func (e *Evaluator) Evaluate(ctx context.Context, cfg models.MonitorTypeConfig, stats models.WindowStats) (*models.AlertRecord, error) {
	if stats.InsufficientData {
		return nil, nil
	}

	pct := stats.LabelPercentages[cfg.NegativeLabel]

	var level models.AlertLevel
	switch {
	case pct > cfg.HighThreshold:
		level = models.AlertLevelError
	case pct > cfg.LowThreshold:
		level = models.AlertLevelWarning
	default:
		return nil, nil
	}

	ok, err := e.suppression.TryAcquire(ctx, stats.UserID, cfg.Type, level)
	if err != nil {
		return nil, err
	}
	if !ok {
		e.logger.Debug("Alert suppressed by cooldown",
			zap.String("user_id", stats.UserID),
			zap.String("monitor_type", string(cfg.Type)),
			zap.String("level", string(level)),
		)
		return nil, nil
	}

	alert := models.AlertRecord{
		ID:          uuid.New().String(),
		UserID:      stats.UserID,
		MonitorType: cfg.Type,
		Level:       level,
		Message:     alertMessage(cfg, level, pct, stats.WindowMinutes),
		Snapshot:    stats,
		CreatedAt:   time.Now().UTC(),
	}

	if err := e.persistAlert(ctx, alert); err != nil {
		e.logger.Error("Dropping alert after failed persistence",
			zap.String("alert_id", alert.ID),
			zap.String("user_id", alert.UserID),
			zap.String("monitor_type", string(alert.MonitorType)),
			zap.Error(err),
		)
		return nil, err
	}

	e.publish(ctx, alert)

	e.logger.Info("Alert created",
		zap.String("alert_id", alert.ID),
		zap.String("user_id", alert.UserID),
		zap.String("monitor_type", string(alert.MonitorType)),
		zap.String("level", string(level)),
		zap.Float64("negative_pct", pct),
	)
	return &alert, nil
}

// NotifyDegraded 记录降级会话通知（info 级，每次降级启动产生一条）
//
// 不走阈值与冷却逻辑；持久化失败时丢弃，会话照常运行。
func (e *Evaluator) NotifyDegraded(ctx context.Context, cfg models.MonitorTypeConfig, userID string) *models.AlertRecord {
	alert := models.AlertRecord{
		ID:          uuid.New().String(),
		UserID:      userID,
		MonitorType: cfg.Type,
		Level:       models.AlertLevelInfo,
		Message:     fmt.Sprintf("%s monitoring running in degraded mode, classifier unavailable", cfg.Type),
		Snapshot: models.WindowStats{
			UserID:           userID,
			MonitorType:      cfg.Type,
			InsufficientData: true,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := e.persistAlert(ctx, alert); err != nil {
		e.logger.Error("Dropping degraded-mode notice after failed persistence",
			zap.String("user_id", userID),
			zap.String("monitor_type", string(cfg.Type)),
			zap.Error(err),
		)
		return nil
	}

	e.publish(ctx, alert)
	return &alert
}

// persistAlert 持久化报警，失败重试一次
func (e *Evaluator) persistAlert(ctx context.Context, alert models.AlertRecord) error {
	err := e.gateway.AppendAlert(ctx, alert)
	if err == nil {
		return nil
	}
	e.logger.Warn("Alert persistence failed, retrying once",
		zap.String("alert_id", alert.ID),
		zap.Error(err),
	)
	if err := e.gateway.AppendAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to persist alert after retry: %w", err)
	}
	return nil
}

// publish 发布到报警流（尽力而为，失败只记日志）
func (e *Evaluator) publish(ctx context.Context, alert models.AlertRecord) {
	if e.publisher == nil {
		return
	}
	_, err := e.publisher.Publish(ctx, AlertStream, map[string]interface{}{
		"alert_id":     alert.ID,
		"user_id":      alert.UserID,
		"monitor_type": string(alert.MonitorType),
		"level":        string(alert.Level),
		"message":      alert.Message,
		"created_at":   alert.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		e.logger.Warn("Failed to publish alert to stream",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}

func alertMessage(cfg models.MonitorTypeConfig, level models.AlertLevel, pct float64, windowMinutes float64) string {
	return fmt.Sprintf("%s %.1f%% over last %.0f minutes (%s)",
		cfg.NegativeLabel, pct, windowMinutes, level)
}
