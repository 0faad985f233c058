package capture

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// WebcamDevice 基于 gocv 的摄像头设备
type WebcamDevice struct {
	deviceID int

	mu  sync.Mutex
	cap *gocv.VideoCapture
}

// NewWebcamDevice 创建摄像头设备（deviceID 通常为 0）
func NewWebcamDevice(deviceID int) *WebcamDevice {
	return &WebcamDevice{deviceID: deviceID}
}

// Open 打开摄像头
func (d *WebcamDevice) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cap != nil {
		return nil
	}

	cap, err := gocv.OpenVideoCapture(d.deviceID)
	if err != nil {
		return fmt.Errorf("failed to open video capture %d: %w", d.deviceID, err)
	}
	if !cap.IsOpened() {
		_ = cap.Close()
		return fmt.Errorf("video capture %d did not open", d.deviceID)
	}

	d.cap = cap
	return nil
}

// Close 关闭摄像头
func (d *WebcamDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cap == nil {
		return nil
	}

	err := d.cap.Close()
	d.cap = nil
	if err != nil {
		return fmt.Errorf("failed to close video capture %d: %w", d.deviceID, err)
	}
	return nil
}

// Active 摄像头是否处于打开状态
func (d *WebcamDevice) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cap != nil && d.cap.IsOpened()
}
