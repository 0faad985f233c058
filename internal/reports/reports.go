// Package reports 历史报表：按日/周/月从持久化网关聚合分类事件。
package reports

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"

	"go.uber.org/zap"
)

// Period 报表周期
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// ValidPeriod 检查报表周期是否合法
func ValidPeriod(p string) bool {
	switch Period(p) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// Bucket 报表时间桶（daily 按小时，weekly/monthly 按天）
type Bucket struct {
	Start            time.Time          `json:"start"`
	Label            string             `json:"label"` // "15:00" 或 "2026-08-26"
	SampleCount      int                `json:"sample_count"`
	LabelCounts      map[string]int     `json:"label_counts"`
	LabelPercentages map[string]float64 `json:"label_percentages"`
	Metric           *models.MetricStats `json:"metric,omitempty"`
}

// Report 单个 (用户, 监控类型, 周期) 的报表
type Report struct {
	UserID           string             `json:"user_id"`
	MonitorType      models.MonitorType `json:"monitor_type"`
	Period           Period             `json:"period"`
	Start            time.Time          `json:"start"`
	End              time.Time          `json:"end"`
	TotalSamples     int                `json:"total_samples"`
	LabelPercentages map[string]float64 `json:"label_percentages"` // 整个周期的占比
	Buckets          []Bucket           `json:"buckets"`
	GeneratedAt      time.Time          `json:"generated_at"`
}

// Generator 报表生成器
type Generator struct {
	gateway repository.Gateway
	configs map[models.MonitorType]models.MonitorTypeConfig
	logger  *zap.Logger
}

// NewGenerator 创建报表生成器
func NewGenerator(gateway repository.Gateway, configs map[models.MonitorType]models.MonitorTypeConfig, logger *zap.Logger) *Generator {
	return &Generator{
		gateway: gateway,
		configs: configs,
		logger:  logger,
	}
}

// Generate 生成报表
//
// ref 决定周期锚点：daily 取 ref 所在自然日，weekly 取含 ref 的最近 7 天，
// monthly 取 ref 所在自然月。区间均为半开 [start, end)。
func (g *Generator) Generate(ctx context.Context, userID string, monitorType models.MonitorType, period Period, ref time.Time) (*Report, error) {
	cfg, ok := g.configs[monitorType]
	if !ok {
		return nil, fmt.Errorf("unknown monitor type: %s", monitorType)
	}

	start, end := periodRange(period, ref)

	events, err := g.gateway.QueryEventsRange(ctx, userID, monitorType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load events for report: %w", err)
	}

	report := &Report{
		UserID:      userID,
		MonitorType: monitorType,
		Period:      period,
		Start:       start,
		End:         end,
		GeneratedAt: time.Now().UTC(),
	}

	buckets := buildBuckets(cfg, start, end, period)
	overall := make(map[string]int, len(cfg.Labels))
	for _, label := range cfg.Labels {
		overall[label] = 0
	}

	metricSums := make([]float64, len(buckets))
	metricCounts := make([]int, len(buckets))

	for _, ev := range events {
		idx := bucketIndex(period, start, ev.Timestamp)
		if idx < 0 || idx >= len(buckets) {
			continue
		}
		if _, known := overall[ev.Label]; !known {
			continue
		}

		b := &buckets[idx]
		b.LabelCounts[ev.Label]++
		b.SampleCount++
		overall[ev.Label]++
		report.TotalSamples++

		if ev.Metric != nil {
			v := *ev.Metric
			if b.Metric == nil {
				b.Metric = &models.MetricStats{Min: v, Max: v}
			}
			if v < b.Metric.Min {
				b.Metric.Min = v
			}
			if v > b.Metric.Max {
				b.Metric.Max = v
			}
			metricSums[idx] += v
			metricCounts[idx]++
		}
	}

	for i := range buckets {
		b := &buckets[i]
		b.LabelPercentages = percentages(b.LabelCounts, b.SampleCount)
		if b.Metric != nil && metricCounts[i] > 0 {
			b.Metric.Avg = round1(metricSums[i] / float64(metricCounts[i]))
		}
	}

	report.Buckets = buckets
	report.LabelPercentages = percentages(overall, report.TotalSamples)

	g.logger.Debug("Report generated",
		zap.String("user_id", userID),
		zap.String("monitor_type", string(monitorType)),
		zap.String("period", string(period)),
		zap.Int("total_samples", report.TotalSamples),
	)
	return report, nil
}

func periodRange(period Period, ref time.Time) (start, end time.Time) {
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())

	switch period {
	case PeriodWeekly:
		start = day.AddDate(0, 0, -6)
		end = day.AddDate(0, 0, 1)
	case PeriodMonthly:
		start = time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
		end = start.AddDate(0, 1, 0)
	default: // daily
		start = day
		end = day.AddDate(0, 0, 1)
	}
	return start, end
}

// buildBuckets 构造空桶序列
//
// daily 按小时，weekly/monthly 按自然日推进（AddDate 跨夏令时
// 仍落在每天 00:00，不能用固定 24h 步长）。
func buildBuckets(cfg models.MonitorTypeConfig, start, end time.Time, period Period) []Bucket {
	var buckets []Bucket
	for bucketStart := start; bucketStart.Before(end); {
		label := bucketStart.Format("2006-01-02")
		if period == PeriodDaily {
			label = bucketStart.Format("15:04")
		}

		counts := make(map[string]int, len(cfg.Labels))
		for _, l := range cfg.Labels {
			counts[l] = 0
		}
		buckets = append(buckets, Bucket{
			Start:       bucketStart,
			Label:       label,
			LabelCounts: counts,
		})

		if period == PeriodDaily {
			bucketStart = bucketStart.Add(time.Hour)
		} else {
			bucketStart = bucketStart.AddDate(0, 0, 1)
		}
	}
	return buckets
}

// bucketIndex 事件所属桶的下标：daily 按经过小时数，其余按自然日差
func bucketIndex(period Period, start, ts time.Time) int {
	if period == PeriodDaily {
		return int(ts.Sub(start) / time.Hour)
	}
	return calendarDays(start, ts)
}

// calendarDays 两个时刻之间的自然日差（以 start 所在时区的日期为准）
func calendarDays(start, ts time.Time) int {
	y1, m1, d1 := start.Date()
	y2, m2, d2 := ts.In(start.Location()).Date()
	a := time.Date(y1, m1, d1, 0, 0, 0, 0, time.UTC)
	b := time.Date(y2, m2, d2, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a) / (24 * time.Hour))
}

func percentages(counts map[string]int, total int) map[string]float64 {
	pcts := make(map[string]float64, len(counts))
	for label, count := range counts {
		if total == 0 {
			pcts[label] = 0
			continue
		}
		pcts[label] = round1(float64(count) / float64(total) * 100)
	}
	return pcts
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
