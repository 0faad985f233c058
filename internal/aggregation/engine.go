// Package aggregation 维护每个 (用户, 监控类型) 的滑动窗口事件日志，
// 并按需重算标签百分比与连续指标统计。
package aggregation

import (
	"math"
	"sync"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"

	"go.uber.org/zap"
)

// Engine 聚合引擎
//
// 写入（每个监控类型一个 goroutine）与读取（心跳 + 查询接口）并发安全。
// 锁粒度为单个 (用户, 类型) 日志，跨类型操作互不阻塞。
type Engine struct {
	mu   sync.RWMutex
	logs map[logKey]*eventLog

	logger *zap.Logger
}

type logKey struct {
	userID      string
	monitorType models.MonitorType
}

type eventLog struct {
	mu     sync.RWMutex
	events []models.ClassificationEvent // 按追加顺序保存（时间近似单调）
}

// NewEngine 创建聚合引擎
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		logs:   make(map[logKey]*eventLog),
		logger: logger,
	}
}

func (e *Engine) log(userID string, monitorType models.MonitorType) *eventLog {
	key := logKey{userID: userID, monitorType: monitorType}

	e.mu.RLock()
	l, ok := e.logs[key]
	e.mu.RUnlock()
	if ok {
		return l
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if l, ok = e.logs[key]; ok {
		return l
	}
	l = &eventLog{}
	e.logs[key] = l
	return l
}

// Record 追加一个分类事件
func (e *Engine) Record(ev models.ClassificationEvent) {
	l := e.log(ev.UserID, ev.MonitorType)
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

// Summarize 重算滑动窗口统计
//
// 只统计 timestamp >= now-window 的事件；给定相同事件集与 now，结果确定。
// 空窗口返回 InsufficientData=true 且百分比全为 0。
func (e *Engine) Summarize(userID string, cfg models.MonitorTypeConfig, window time.Duration, now time.Time) models.WindowStats {
	stats := models.WindowStats{
		MonitorType:      cfg.Type,
		UserID:           userID,
		WindowMinutes:    window.Minutes(),
		LabelCounts:      make(map[string]int, len(cfg.Labels)),
		LabelPercentages: make(map[string]float64, len(cfg.Labels)),
		ComputedAt:       now,
	}
	for _, label := range cfg.Labels {
		stats.LabelCounts[label] = 0
		stats.LabelPercentages[label] = 0
	}

	cutoff := now.Add(-window)
	l := e.log(userID, cfg.Type)

	l.mu.RLock()
	var (
		total                        int
		metricSum, metricMin, metricMax float64
		metricCount                  int
	)
	for _, ev := range l.events {
		if ev.Timestamp.Before(cutoff) || ev.Timestamp.After(now) {
			continue
		}
		if _, ok := stats.LabelCounts[ev.Label]; !ok {
			// 未知标签不参与统计（正常路径下分类器适配层已过滤）
			continue
		}
		stats.LabelCounts[ev.Label]++
		total++

		if ev.Metric != nil {
			if metricCount == 0 || *ev.Metric < metricMin {
				metricMin = *ev.Metric
			}
			if metricCount == 0 || *ev.Metric > metricMax {
				metricMax = *ev.Metric
			}
			metricSum += *ev.Metric
			metricCount++
		}
	}
	l.mu.RUnlock()

	stats.SampleCount = total
	if total == 0 {
		stats.InsufficientData = true
		return stats
	}

	for label, count := range stats.LabelCounts {
		stats.LabelPercentages[label] = round1(float64(count) / float64(total) * 100)
	}

	if cfg.MetricName != "" && metricCount > 0 {
		stats.Metric = &models.MetricStats{
			Avg: round1(metricSum / float64(metricCount)),
			Min: metricMin,
			Max: metricMax,
		}
	}

	return stats
}

// Prune 批量清理早于 olderThan 的事件（按计划调用，不在每次追加时执行）
//
// 返回清理的事件总数。
func (e *Engine) Prune(olderThan time.Time) int {
	e.mu.RLock()
	logs := make([]*eventLog, 0, len(e.logs))
	for _, l := range e.logs {
		logs = append(logs, l)
	}
	e.mu.RUnlock()

	pruned := 0
	for _, l := range logs {
		l.mu.Lock()
		kept := l.events[:0]
		for _, ev := range l.events {
			if !ev.Timestamp.Before(olderThan) {
				kept = append(kept, ev)
			}
		}
		pruned += len(l.events) - len(kept)
		l.events = kept
		l.mu.Unlock()
	}

	if pruned > 0 {
		e.logger.Debug("Pruned aggregation event logs",
			zap.Int("pruned", pruned),
			zap.Time("older_than", olderThan),
		)
	}
	return pruned
}

// round1 保留一位小数
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
