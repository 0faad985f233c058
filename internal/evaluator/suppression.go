package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/store"
)

// alertStateKey 抑制键格式：eduguard:alert-state:{userID}:{monitorType}:{level}
const alertStateKeyFmt = "eduguard:alert-state:%s:%s:%s"

// SuppressionStore 报警冷却抑制
//
// 每个 (用户, 监控类型, 级别) 维护一个带 TTL 的键：SetNX 成功表示本次
// 报警可以发出，失败表示冷却期内已有同类报警。TTL 到期后自动解除，
// 不需要清理任务。
type SuppressionStore struct {
	kv       store.KVStore
	cooldown time.Duration
}

// NewSuppressionStore 创建抑制存储
func NewSuppressionStore(kv store.KVStore, cooldown time.Duration) *SuppressionStore {
	return &SuppressionStore{kv: kv, cooldown: cooldown}
}

// TryAcquire 尝试获取报警发送资格
//
// 返回 true 表示冷却窗口内首次触发，应发出报警；false 表示被抑制。
func (s *SuppressionStore) TryAcquire(ctx context.Context, userID string, monitorType models.MonitorType, level models.AlertLevel) (bool, error) {
	key := fmt.Sprintf(alertStateKeyFmt, userID, monitorType, level)
	ok, err := s.kv.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.cooldown)
	if err != nil {
		return false, fmt.Errorf("failed to check alert suppression: %w", err)
	}
	return ok, nil
}

// Clear 清除抑制状态（会话停止时调用，避免下次启动继承旧冷却）
func (s *SuppressionStore) Clear(ctx context.Context, userID string, monitorType models.MonitorType) error {
	for _, level := range []models.AlertLevel{models.AlertLevelWarning, models.AlertLevelError} {
		key := fmt.Sprintf(alertStateKeyFmt, userID, monitorType, level)
		if err := s.kv.Del(ctx, key); err != nil {
			return fmt.Errorf("failed to clear alert suppression: %w", err)
		}
	}
	return nil
}
