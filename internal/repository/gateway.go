// Package repository 持久化网关：分类事件与报警记录的追加/查询。
//
// 三种后端实现同一 Gateway 接口：Postgres（默认）、Firebase RTDB、内存（测试）。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
)

// ErrAlertNotFound 报警记录不存在
var ErrAlertNotFound = errors.New("alert not found")

// Gateway 持久化网关
//
// 事件与报警只追加；唯一的就地更新是报警确认（MarkAlertRead）。
// 写失败不阻塞监控循环，由调用方决定重试策略。
type Gateway interface {
	// AppendEvent 追加一条分类事件
	AppendEvent(ctx context.Context, ev models.ClassificationEvent) error
	// AppendAlert 追加一条报警记录
	AppendAlert(ctx context.Context, alert models.AlertRecord) error

	// QueryEvents 查询 since 之后的事件（按时间正序）
	QueryEvents(ctx context.Context, userID string, monitorType models.MonitorType, since time.Time) ([]models.ClassificationEvent, error)
	// QueryEventsRange 查询 [start, end) 区间的事件（按时间正序，报表用）
	QueryEventsRange(ctx context.Context, userID string, monitorType models.MonitorType, start, end time.Time) ([]models.ClassificationEvent, error)

	// QueryAlerts 查询最近的报警（按创建时间倒序，最多 limit 条）
	QueryAlerts(ctx context.Context, userID string, limit int) ([]models.AlertRecord, error)
	// MarkAlertRead 标记报警已读
	MarkAlertRead(ctx context.Context, userID, alertID string) error

	// Close 释放底层连接
	Close() error
}
