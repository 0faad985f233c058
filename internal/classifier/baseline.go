package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
)

// BaselineSource 合成基线事件源（降级会话使用）
//
// 按采样间隔输出监控类型的基线标签，保证下游聚合永远有数据，
// 镜像原始客户端对兜底数据的预期。
type BaselineSource struct {
	cfg      models.MonitorTypeConfig
	interval time.Duration
}

// NewBaselineSource 创建基线事件源
//
// interval 为 0 时使用监控类型自身的采样间隔。
func NewBaselineSource(cfg models.MonitorTypeConfig, interval time.Duration) *BaselineSource {
	if interval <= 0 {
		interval = cfg.SampleInterval
	}
	return &BaselineSource{cfg: cfg, interval: interval}
}

// Open 打开基线事件流（不会失败）
func (s *BaselineSource) Open(ctx context.Context, userID string) (Stream, error) {
	return &baselineStream{
		cfg:      s.cfg,
		userID:   userID,
		interval: s.interval,
		done:     make(chan struct{}),
	}, nil
}

type baselineStream struct {
	cfg      models.MonitorTypeConfig
	userID   string
	interval time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// Next 等待一个采样间隔后返回基线事件
func (s *baselineStream) Next(ctx context.Context) (models.ClassificationEvent, error) {
	select {
	case <-ctx.Done():
		return models.ClassificationEvent{}, ctx.Err()
	case <-s.done:
		return models.ClassificationEvent{}, ErrStreamClosed
	case <-time.After(s.interval):
	}

	ev := models.ClassificationEvent{
		MonitorType: s.cfg.Type,
		UserID:      s.userID,
		Timestamp:   time.Now(),
		Label:       s.cfg.BaselineLabel,
	}
	if s.cfg.BaselineMetric != nil {
		metric := *s.cfg.BaselineMetric
		ev.Metric = &metric
	}
	return ev, nil
}

func (s *baselineStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}
