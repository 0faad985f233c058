package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/aggregation"
	"github.com/chamuda-arangalla/EDUGuard/internal/capture"
	"github.com/chamuda-arangalla/EDUGuard/internal/classifier"
	"github.com/chamuda-arangalla/EDUGuard/internal/evaluator"
	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"
	"github.com/chamuda-arangalla/EDUGuard/internal/scheduler"
	"github.com/chamuda-arangalla/EDUGuard/internal/store"

	"go.uber.org/zap"
)

// statsCacheKey 窗口统计缓存键：eduguard:stats:{userID}:{monitorType}
const statsCacheKeyFmt = "eduguard:stats:%s:%s"

// RegistryDeps 注册表依赖
type RegistryDeps struct {
	Configs     map[models.MonitorType]models.MonitorTypeConfig
	Capture     *capture.Manager
	Sources     map[models.MonitorType]classifier.Source
	Engine      *aggregation.Engine
	Gateway     repository.Gateway
	Evaluator   *evaluator.Evaluator
	Suppression *evaluator.SuppressionStore
	Heartbeat   *scheduler.Heartbeat
	KV          store.KVStore // 可为 nil（memory 后端无 Redis）
	Logger      *zap.Logger

	Window            time.Duration // 心跳评估用的统计窗口
	HeartbeatInterval time.Duration
}

// Registry 监控会话注册表
//
// 按 (用户, 监控类型) 惰性创建控制器，并为每个运行中的会话挂接
// 一个心跳任务：重算窗口统计 -> 刷新统计缓存 -> 阈值评估。
type Registry struct {
	deps RegistryDeps

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewRegistry 创建注册表
func NewRegistry(deps RegistryDeps) *Registry {
	return &Registry{
		deps:        deps,
		controllers: make(map[string]*Controller),
	}
}

func sessionKey(userID string, monitorType models.MonitorType) string {
	return userID + ":" + string(monitorType)
}

func (r *Registry) controller(userID string, monitorType models.MonitorType) *Controller {
	key := sessionKey(userID, monitorType)

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.controllers[key]; ok {
		return c
	}

	cfg := r.deps.Configs[monitorType]
	source := r.deps.Sources[monitorType]
	fallback := classifier.NewBaselineSource(cfg, 0)
	if source == nil {
		source = fallback
	}

	// 会话循环退出时摘除心跳：事件流异常终止不经过 Stop，
	// 没有这一步，死会话的定时器会一直对残留窗口做评估。
	onExit := func() {
		r.deps.Heartbeat.Cancel(key)
	}
	c := NewController(userID, cfg, r.deps.Capture, source, fallback,
		r.deps.Engine, r.deps.Gateway, onExit, r.deps.Logger)
	r.controllers[key] = c
	return c
}

// Start 启动监控会话并挂接心跳
//
// 新会话以降级模式启动时追加一条 info 通知（对 running 幂等的 Start 不重复）。
func (r *Registry) Start(ctx context.Context, userID string, monitorType models.MonitorType) error {
	c := r.controller(userID, monitorType)
	wasRunning := c.Status().IsMonitoring
	if err := c.Start(ctx); err != nil {
		return err
	}

	cfg := r.deps.Configs[monitorType]
	if !wasRunning && c.Status().Degraded {
		r.deps.Evaluator.NotifyDegraded(ctx, cfg, userID)
	}

	key := sessionKey(userID, monitorType)
	r.deps.Heartbeat.Schedule(key, r.deps.HeartbeatInterval,
		func(taskCtx context.Context) {
			r.heartbeat(taskCtx, userID, cfg)
		})
	// 事件流可能在心跳挂接之前就已终止，此时 onExit 的摘除先于
	// Schedule 执行，这里补一次检查避免定时器成为孤儿
	if !c.Status().IsMonitoring {
		r.deps.Heartbeat.Cancel(key)
	}
	return nil
}

// heartbeat 单次心跳：重算统计、刷新缓存、评估报警
func (r *Registry) heartbeat(ctx context.Context, userID string, cfg models.MonitorTypeConfig) {
	stats := r.deps.Engine.Summarize(userID, cfg, r.deps.Window, time.Now())
	r.cacheStats(ctx, stats)

	if _, err := r.deps.Evaluator.Evaluate(ctx, cfg, stats); err != nil {
		r.deps.Logger.Error("Heartbeat evaluation failed",
			zap.String("user_id", userID),
			zap.String("monitor_type", string(cfg.Type)),
			zap.Error(err),
		)
	}
}

// cacheStats 写统计缓存（TTL 取两个心跳周期，过期即视为陈旧）
func (r *Registry) cacheStats(ctx context.Context, stats models.WindowStats) {
	if r.deps.KV == nil {
		return
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return
	}
	key := fmt.Sprintf(statsCacheKeyFmt, stats.UserID, stats.MonitorType)
	if err := r.deps.KV.Set(ctx, key, string(payload), 2*r.deps.HeartbeatInterval); err != nil {
		r.deps.Logger.Warn("Failed to cache window stats",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

// Stop 停止监控会话：先摘心跳，再停控制器，最后清抑制状态
func (r *Registry) Stop(ctx context.Context, userID string, monitorType models.MonitorType) error {
	r.deps.Heartbeat.Cancel(sessionKey(userID, monitorType))

	c := r.controller(userID, monitorType)
	if err := c.Stop(ctx); err != nil {
		return err
	}

	if err := r.deps.Suppression.Clear(ctx, userID, monitorType); err != nil {
		r.deps.Logger.Warn("Failed to clear alert suppression",
			zap.String("user_id", userID),
			zap.String("monitor_type", string(monitorType)),
			zap.Error(err),
		)
	}
	return nil
}

// Status 返回用户全部监控类型的会话状态
func (r *Registry) Status(userID string) []models.SessionStatus {
	statuses := make([]models.SessionStatus, 0, len(models.AllMonitorTypes()))
	for _, mt := range models.AllMonitorTypes() {
		key := sessionKey(userID, mt)

		r.mu.Lock()
		c, ok := r.controllers[key]
		r.mu.Unlock()

		if !ok {
			statuses = append(statuses, models.SessionStatus{
				UserID:        userID,
				MonitorType:   mt,
				State:         models.SessionIdle,
				CaptureActive: r.deps.Capture.Active(),
			})
			continue
		}
		statuses = append(statuses, c.Status())
	}
	return statuses
}

// Summarize 按需重算窗口统计（查询接口用，window 可与心跳窗口不同）
func (r *Registry) Summarize(userID string, monitorType models.MonitorType, window time.Duration) models.WindowStats {
	cfg := r.deps.Configs[monitorType]
	return r.deps.Engine.Summarize(userID, cfg, window, time.Now())
}

// EvaluateNow 立即执行一轮评估（check-alerts 接口用）
//
// 与心跳走同一条路径：统计、缓存、评估，冷却规则同样生效。
func (r *Registry) EvaluateNow(ctx context.Context, userID string, monitorType models.MonitorType) (models.WindowStats, *models.AlertRecord, error) {
	cfg := r.deps.Configs[monitorType]
	stats := r.deps.Engine.Summarize(userID, cfg, r.deps.Window, time.Now())
	r.cacheStats(ctx, stats)

	alert, err := r.deps.Evaluator.Evaluate(ctx, cfg, stats)
	return stats, alert, err
}

// Shutdown 停止全部会话
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	keys := make([]string, 0, len(r.controllers))
	controllers := make([]*Controller, 0, len(r.controllers))
	for key, c := range r.controllers {
		keys = append(keys, key)
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	for i, c := range controllers {
		r.deps.Heartbeat.Cancel(keys[i])
		if err := c.Stop(ctx); err != nil && err != ErrSessionBusy {
			r.deps.Logger.Warn("Failed to stop session during shutdown",
				zap.String("session", keys[i]),
				zap.Error(err),
			)
		}
	}
}
