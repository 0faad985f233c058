package models

import "time"

// AlertLevel 报警级别
type AlertLevel string

const (
	AlertLevelInfo    AlertLevel = "info"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelError   AlertLevel = "error"
)

// AlertRecord 报警记录
//
// 只由报警评估器创建；read 标志由客户端确认时更新，记录本身从不删除。
type AlertRecord struct {
	ID          string      `json:"id" db:"alert_id"`
	UserID      string      `json:"user_id" db:"user_id"`
	MonitorType MonitorType `json:"monitor_type" db:"monitor_type"`
	Level       AlertLevel  `json:"level" db:"level"`
	Message     string      `json:"message" db:"message"`
	Snapshot    WindowStats `json:"snapshot" db:"snapshot"` // 触发时的窗口统计快照（JSONB）
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	Read        bool        `json:"read" db:"read"`
}
