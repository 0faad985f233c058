package models

import "time"

// MetricStats 连续指标统计（窗口内）
type MetricStats struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// WindowStats 滑动窗口统计结果
//
// 由聚合引擎按需重算。窗口为空时 InsufficientData=true 且百分比全部为 0，
// 不存在时返回 NaN 的情况。
type WindowStats struct {
	MonitorType      MonitorType        `json:"monitor_type"`
	UserID           string             `json:"user_id"`
	WindowMinutes    float64            `json:"window_minutes"`
	SampleCount      int                `json:"sample_count"`
	InsufficientData bool               `json:"insufficient_data"`
	LabelCounts      map[string]int     `json:"label_counts"`
	LabelPercentages map[string]float64 `json:"label_percentages"`
	Metric           *MetricStats       `json:"metric,omitempty"`
	ComputedAt       time.Time          `json:"computed_at"`
}
