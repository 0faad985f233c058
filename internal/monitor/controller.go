// Package monitor 监控会话：每个 (用户, 监控类型) 一个控制器，
// 管理摄像头租约、分类事件流与会话状态机。
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/aggregation"
	"github.com/chamuda-arangalla/EDUGuard/internal/capture"
	"github.com/chamuda-arangalla/EDUGuard/internal/classifier"
	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"

	"go.uber.org/zap"
)

// ErrSessionBusy 会话正在状态迁移中（starting/stopping），拒绝并发操作
var ErrSessionBusy = errors.New("session transition in progress")

// Controller 单个监控会话的控制器
//
// 状态机：idle -> starting -> running -> stopping -> idle。
// Start 对 running 幂等；starting/stopping 期间的 Start/Stop 返回
// ErrSessionBusy，不排队。
type Controller struct {
	userID   string
	cfg      models.MonitorTypeConfig
	capture  *capture.Manager
	source   classifier.Source
	fallback classifier.Source
	engine   *aggregation.Engine
	gateway  repository.Gateway
	onExit   func()
	logger   *zap.Logger

	mu        sync.Mutex
	state     models.SessionState
	degraded  bool
	startedAt time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewController 创建控制器
//
// fallback 是分类器不可用时的降级事件源（合成基线），不可为 nil。
// onExit 在会话主循环退出时、状态回到 idle 之前被调用（可为 nil），
// 无论是显式 Stop 还是事件流异常终止都会触发。
func NewController(
	userID string,
	cfg models.MonitorTypeConfig,
	captureManager *capture.Manager,
	source classifier.Source,
	fallback classifier.Source,
	engine *aggregation.Engine,
	gateway repository.Gateway,
	onExit func(),
	logger *zap.Logger,
) *Controller {
	return &Controller{
		userID:   userID,
		cfg:      cfg,
		capture:  captureManager,
		source:   source,
		fallback: fallback,
		engine:   engine,
		gateway:  gateway,
		onExit:   onExit,
		state:    models.SessionIdle,
		logger: logger.With(
			zap.String("user_id", userID),
			zap.String("monitor_type", string(cfg.Type)),
		),
	}
}

// Start 启动监控会话
//
// 已在 running 时直接返回 nil。摄像头不可用返回
// capture.ErrDeviceUnavailable 且会话回到 idle；分类器不可用时
// 降级为合成基线事件源，会话照常进入 running（Degraded=true）。
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case models.SessionRunning:
		c.mu.Unlock()
		return nil
	case models.SessionStarting, models.SessionStopping:
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.state = models.SessionStarting
	c.mu.Unlock()

	lease, err := c.capture.Acquire(c.cfg.Type)
	if err != nil {
		c.mu.Lock()
		c.state = models.SessionIdle
		c.mu.Unlock()
		return err
	}

	degraded := false
	stream, err := c.source.Open(ctx, c.userID)
	if err != nil {
		if !errors.Is(err, classifier.ErrModelUnavailable) {
			lease.Release()
			c.mu.Lock()
			c.state = models.SessionIdle
			c.mu.Unlock()
			return err
		}

		c.logger.Warn("Classifier unavailable, starting degraded session", zap.Error(err))
		degraded = true
		stream, err = c.fallback.Open(ctx, c.userID)
		if err != nil {
			lease.Release()
			c.mu.Lock()
			c.state = models.SessionIdle
			c.mu.Unlock()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	c.mu.Lock()
	c.state = models.SessionRunning
	c.degraded = degraded
	c.startedAt = time.Now()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	c.logger.Info("Monitoring session started", zap.Bool("degraded", degraded))

	go c.run(runCtx, stream, lease, done)
	return nil
}

// run 会话主循环：消费事件流，写入聚合引擎并持久化
func (c *Controller) run(ctx context.Context, stream classifier.Stream, lease *capture.Lease, done chan struct{}) {
	defer func() {
		// 收尾期间保持 stopping，onExit 完成前不允许新的 Start，
		// 否则退場中的心跳摘除可能误杀新会话刚挂上的定时器
		c.mu.Lock()
		c.state = models.SessionStopping
		c.mu.Unlock()

		stream.Close()
		lease.Release()
		if c.onExit != nil {
			c.onExit()
		}

		c.mu.Lock()
		c.state = models.SessionIdle
		c.degraded = false
		c.cancel = nil
		c.mu.Unlock()

		close(done)
		c.logger.Info("Monitoring session stopped")
	}()

	for {
		ev, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if errors.Is(err, classifier.ErrStreamClosed) {
				c.logger.Warn("Classification stream closed, ending session")
				return
			}
			c.logger.Error("Classification stream failed, ending session", zap.Error(err))
			return
		}

		c.engine.Record(ev)
		c.persistEvent(ctx, ev)
	}
}

// persistEvent 持久化事件，失败重试一次后丢弃（监控循环不因存储故障阻塞）
func (c *Controller) persistEvent(ctx context.Context, ev models.ClassificationEvent) {
	if err := c.gateway.AppendEvent(ctx, ev); err == nil {
		return
	}
	if err := c.gateway.AppendEvent(ctx, ev); err != nil {
		c.logger.Warn("Dropping event after failed persistence",
			zap.Time("timestamp", ev.Timestamp),
			zap.String("label", ev.Label),
			zap.Error(err),
		)
	}
}

// Stop 停止监控会话
//
// idle 时是 no-op；starting/stopping 期间返回 ErrSessionBusy。
// 返回前等待主循环退出且租约已释放。
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case models.SessionIdle:
		c.mu.Unlock()
		return nil
	case models.SessionStarting, models.SessionStopping:
		c.mu.Unlock()
		return ErrSessionBusy
	}
	c.state = models.SessionStopping
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status 返回会话状态快照
func (c *Controller) Status() models.SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := models.SessionStatus{
		UserID:        c.userID,
		MonitorType:   c.cfg.Type,
		State:         c.state,
		IsMonitoring:  c.state == models.SessionRunning,
		Degraded:      c.degraded,
		CaptureActive: c.capture.Active(),
	}
	if c.state == models.SessionRunning {
		ms := c.startedAt.UnixMilli()
		status.StartedAt = &ms
	}
	return status
}
