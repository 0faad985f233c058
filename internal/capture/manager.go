// Package capture 管理共享的摄像头采集资源
//
// 四种监控类型共用一个物理摄像头。Manager 通过引用计数保证：
// - 第一个 Acquire 打开设备，后续 Acquire 只递增计数
// - Release 递减计数，计数归零时才真正关闭设备
// - 设备打开失败不会递增计数
//
// 设备状态只能通过 Acquire/Release 修改，外部不允许直接读写。
package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"

	"go.uber.org/zap"
)

var (
	// ErrDeviceUnavailable 设备打开失败（硬件级故障或被其他进程占用）
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// Device 摄像头设备抽象（生产环境为 gocv 摄像头，测试用 fake）
type Device interface {
	Open() error
	Close() error
	Active() bool
}

// Manager 采集资源管理器（引用计数）
type Manager struct {
	mu      sync.Mutex
	device  Device
	holders int
	logger  *zap.Logger
}

// NewManager 创建采集资源管理器
func NewManager(device Device, logger *zap.Logger) *Manager {
	return &Manager{
		device: device,
		logger: logger,
	}
}

// Lease 一次针对摄像头的租约（每个监控会话持有一个）
type Lease struct {
	monitorType models.MonitorType
	manager     *Manager

	mu       sync.Mutex
	released bool
}

// MonitorType 返回持有该租约的监控类型
func (l *Lease) MonitorType() models.MonitorType {
	return l.monitorType
}

// Acquire 获取摄像头租约
//
// 第一个租约触发设备打开；打开失败时返回 ErrDeviceUnavailable 且计数不变。
func (m *Manager) Acquire(monitorType models.MonitorType) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holders == 0 {
		if err := m.device.Open(); err != nil {
			m.logger.Error("Failed to open capture device",
				zap.String("monitor_type", string(monitorType)),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		m.logger.Info("Capture device opened",
			zap.String("monitor_type", string(monitorType)),
		)
	}

	m.holders++
	m.logger.Debug("Capture lease acquired",
		zap.String("monitor_type", string(monitorType)),
		zap.Int("holders", m.holders),
	)

	return &Lease{monitorType: monitorType, manager: m}, nil
}

// Release 归还租约（幂等：重复调用只生效一次）
//
// 计数归零时关闭设备。
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	l.mu.Unlock()

	l.manager.release(l.monitorType)
}

func (m *Manager) release(monitorType models.MonitorType) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.holders == 0 {
		// 不应发生：Lease.Release 已做幂等保护
		m.logger.Warn("Release called with zero holders",
			zap.String("monitor_type", string(monitorType)),
		)
		return
	}

	m.holders--
	m.logger.Debug("Capture lease released",
		zap.String("monitor_type", string(monitorType)),
		zap.Int("holders", m.holders),
	)

	if m.holders == 0 {
		if err := m.device.Close(); err != nil {
			m.logger.Error("Failed to close capture device", zap.Error(err))
			return
		}
		m.logger.Info("Capture device closed")
	}
}

// Active 设备当前是否处于打开状态
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holders > 0 && m.device.Active()
}

// Holders 当前租约数量
func (m *Manager) Holders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.holders
}
