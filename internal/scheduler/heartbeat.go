// Package scheduler 命名的周期任务调度：每个监控会话一个心跳任务。
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task 心跳回调（每个周期调用一次，ctx 在任务取消时关闭）
type Task func(ctx context.Context)

// Heartbeat 心跳调度器
//
// 任务按名字唯一（user:type）。Schedule 对已存活的名字是 no-op，
// Cancel 同步等待任务 goroutine 退出后才返回。
type Heartbeat struct {
	mu     sync.Mutex
	tasks  map[string]*task
	logger *zap.Logger
}

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeat 创建心跳调度器
func NewHeartbeat(logger *zap.Logger) *Heartbeat {
	return &Heartbeat{
		tasks:  make(map[string]*task),
		logger: logger,
	}
}

// Schedule 注册并启动一个命名周期任务
//
// 首个周期立即执行一次，之后按 interval 触发。名字已存活时不重复注册。
func (h *Heartbeat) Schedule(name string, interval time.Duration, fn Task) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.tasks[name]; exists {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}
	h.tasks[name] = t

	h.logger.Debug("Heartbeat task scheduled",
		zap.String("task", name),
		zap.Duration("interval", interval),
	)

	go func() {
		defer close(t.done)

		fn(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fn(ctx)
			}
		}
	}()
}

// Cancel 取消命名任务并等待其退出；名字不存在时是 no-op
func (h *Heartbeat) Cancel(name string) {
	h.mu.Lock()
	t, exists := h.tasks[name]
	if exists {
		delete(h.tasks, name)
	}
	h.mu.Unlock()

	if !exists {
		return
	}

	t.cancel()
	<-t.done

	h.logger.Debug("Heartbeat task cancelled", zap.String("task", name))
}

// Active 检查命名任务是否存活
func (h *Heartbeat) Active(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, exists := h.tasks[name]
	return exists
}

// Shutdown 取消全部任务并等待退出
func (h *Heartbeat) Shutdown() {
	h.mu.Lock()
	names := make([]string, 0, len(h.tasks))
	for name := range h.tasks {
		names = append(names, name)
	}
	h.mu.Unlock()

	for _, name := range names {
		h.Cancel(name)
	}
}
