package models

// SessionState 监控会话状态
type SessionState string

const (
	SessionIdle     SessionState = "idle"
	SessionStarting SessionState = "starting"
	SessionRunning  SessionState = "running"
	SessionStopping SessionState = "stopping"
)

// SessionStatus 会话状态快照（供状态查询接口返回）
type SessionStatus struct {
	UserID        string       `json:"user_id"`
	MonitorType   MonitorType  `json:"monitor_type"`
	State         SessionState `json:"state"`
	IsMonitoring  bool         `json:"is_monitoring"`
	Degraded      bool         `json:"degraded"`
	CaptureActive bool         `json:"capture_active"`
	StartedAt     *int64       `json:"started_at,omitempty"` // Unix 毫秒
}
