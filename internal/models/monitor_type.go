package models

import "time"

// MonitorType 监控类型（四种独立的检测域）
type MonitorType string

const (
	MonitorPosture   MonitorType = "posture"   // 坐姿检测
	MonitorStress    MonitorType = "stress"    // 压力检测（面部表情）
	MonitorCVS       MonitorType = "cvs"       // 视觉疲劳检测（眨眼频率）
	MonitorHydration MonitorType = "hydration" // 缺水检测（嘴唇干燥）
)

// AllMonitorTypes 所有支持的监控类型
func AllMonitorTypes() []MonitorType {
	return []MonitorType{MonitorPosture, MonitorStress, MonitorCVS, MonitorHydration}
}

// ValidMonitorType 检查监控类型是否合法
func ValidMonitorType(t string) bool {
	switch MonitorType(t) {
	case MonitorPosture, MonitorStress, MonitorCVS, MonitorHydration:
		return true
	}
	return false
}

// MonitorTypeConfig 监控类型配置（标签词汇表 + 阈值 + 采样参数）
//
// 四条流水线共用同一套代码，只靠该配置区分：
// - Labels: 分类器输出的标签词汇表
// - NegativeLabel: 触发报警的"负面"标签
// - BaselineLabel: 降级会话合成基线事件使用的标签
// - MetricName: 可选的连续指标名（如 blink_count）
type MonitorTypeConfig struct {
	Type           MonitorType
	Labels         []string
	NegativeLabel  string
	BaselineLabel  string
	BaselineMetric *float64 // 基线事件携带的指标值（无指标时为 nil）
	MetricName     string   // 连续指标名（空字符串表示无指标）

	// 报警阈值（负面标签百分比）
	HighThreshold float64 // 超过则产生 error 级报警
	LowThreshold  float64 // 超过则产生 warning 级报警

	// 统计窗口与采样间隔
	WindowLength   time.Duration
	SampleInterval time.Duration
}

// 默认阈值与窗口参数
const (
	DefaultHighThreshold  = 60.0
	DefaultLowThreshold   = 30.0
	DefaultWindowLength   = 5 * time.Minute
	DefaultSampleInterval = 3 * time.Second
)

// DefaultMonitorConfigs 返回四种监控类型的默认配置
func DefaultMonitorConfigs() map[MonitorType]MonitorTypeConfig {
	normalBlink := 18.0

	return map[MonitorType]MonitorTypeConfig{
		MonitorPosture: {
			Type:           MonitorPosture,
			Labels:         []string{"Good Posture", "Bad Posture"},
			NegativeLabel:  "Bad Posture",
			BaselineLabel:  "Good Posture",
			HighThreshold:  DefaultHighThreshold,
			LowThreshold:   DefaultLowThreshold,
			WindowLength:   DefaultWindowLength,
			SampleInterval: DefaultSampleInterval,
		},
		MonitorStress: {
			Type:           MonitorStress,
			Labels:         []string{"Low Stress", "Medium Stress", "High Stress"},
			NegativeLabel:  "High Stress",
			BaselineLabel:  "Low Stress",
			MetricName:     "stress_level",
			HighThreshold:  DefaultHighThreshold,
			LowThreshold:   DefaultLowThreshold,
			WindowLength:   DefaultWindowLength,
			SampleInterval: DefaultSampleInterval,
		},
		MonitorCVS: {
			Type:           MonitorCVS,
			Labels:         []string{"Low Blink Rate", "Normal Blink Rate", "High Blink Rate"},
			NegativeLabel:  "Low Blink Rate",
			BaselineLabel:  "Normal Blink Rate",
			BaselineMetric: &normalBlink,
			MetricName:     "blink_count",
			HighThreshold:  DefaultHighThreshold,
			LowThreshold:   DefaultLowThreshold,
			WindowLength:   DefaultWindowLength,
			SampleInterval: DefaultSampleInterval,
		},
		MonitorHydration: {
			Type:           MonitorHydration,
			Labels:         []string{"Normal Lips", "Dry Lips"},
			NegativeLabel:  "Dry Lips",
			BaselineLabel:  "Normal Lips",
			MetricName:     "dryness_score",
			HighThreshold:  DefaultHighThreshold,
			LowThreshold:   DefaultLowThreshold,
			WindowLength:   DefaultWindowLength,
			SampleInterval: DefaultSampleInterval,
		},
	}
}
