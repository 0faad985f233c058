package models

import "time"

// ClassificationEvent 分类事件（一次检测输出）
//
// 事件一旦创建不可修改，只追加、不更新，会话结束后仍作为历史记录保留。
type ClassificationEvent struct {
	MonitorType MonitorType `json:"monitor_type" db:"monitor_type"`
	UserID      string      `json:"user_id" db:"user_id"`
	Timestamp   time.Time   `json:"timestamp" db:"timestamp"`
	Label       string      `json:"label" db:"label"`
	Metric      *float64    `json:"metric,omitempty" db:"metric"` // 可选连续指标（如眨眼次数）
}
