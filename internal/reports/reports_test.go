package reports

import (
	"context"
	"testing"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
	"github.com/chamuda-arangalla/EDUGuard/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupGenerator(t *testing.T) (*Generator, *repository.MemoryGateway) {
	t.Helper()
	gw := repository.NewMemoryGateway()
	return NewGenerator(gw, models.DefaultMonitorConfigs(), zap.NewNop()), gw
}

func seedEvent(t *testing.T, gw *repository.MemoryGateway, mt models.MonitorType, label string, ts time.Time, metric *float64) {
	t.Helper()
	require.NoError(t, gw.AppendEvent(context.Background(), models.ClassificationEvent{
		MonitorType: mt,
		UserID:      "user-1",
		Timestamp:   ts,
		Label:       label,
		Metric:      metric,
	}))
}

func TestGenerate_DailyHourlyBuckets(t *testing.T) {
	g, gw := setupGenerator(t)
	ref := time.Date(2026, 8, 26, 14, 30, 0, 0, time.UTC)

	// 10:00 时段 3 条坏姿势，15:00 时段 1 条好姿势
	for i := 0; i < 3; i++ {
		seedEvent(t, gw, models.MonitorPosture, "Bad Posture", ref.Add(-4*time.Hour).Add(time.Duration(i)*time.Minute), nil)
	}
	seedEvent(t, gw, models.MonitorPosture, "Good Posture", ref.Add(time.Hour), nil)
	// 前一天的事件不计入
	seedEvent(t, gw, models.MonitorPosture, "Bad Posture", ref.AddDate(0, 0, -1), nil)

	report, err := g.Generate(context.Background(), "user-1", models.MonitorPosture, PeriodDaily, ref)
	require.NoError(t, err)

	assert.Equal(t, PeriodDaily, report.Period)
	assert.Len(t, report.Buckets, 24)
	assert.Equal(t, 4, report.TotalSamples)
	assert.Equal(t, 75.0, report.LabelPercentages["Bad Posture"])

	assert.Equal(t, "10:00", report.Buckets[10].Label)
	assert.Equal(t, 3, report.Buckets[10].SampleCount)
	assert.Equal(t, 100.0, report.Buckets[10].LabelPercentages["Bad Posture"])
	assert.Equal(t, 1, report.Buckets[15].SampleCount)
	assert.Equal(t, 0, report.Buckets[0].SampleCount)
}

func TestGenerate_WeeklyDailyBuckets(t *testing.T) {
	g, gw := setupGenerator(t)
	ref := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	// 今天、三天前、八天前（超出周期）各一条
	seedEvent(t, gw, models.MonitorStress, "High Stress", ref, nil)
	seedEvent(t, gw, models.MonitorStress, "Low Stress", ref.AddDate(0, 0, -3), nil)
	seedEvent(t, gw, models.MonitorStress, "High Stress", ref.AddDate(0, 0, -8), nil)

	report, err := g.Generate(context.Background(), "user-1", models.MonitorStress, PeriodWeekly, ref)
	require.NoError(t, err)

	assert.Len(t, report.Buckets, 7)
	assert.Equal(t, 2, report.TotalSamples)
	assert.Equal(t, "2026-08-20", report.Buckets[0].Label)
	assert.Equal(t, "2026-08-26", report.Buckets[6].Label)
	assert.Equal(t, 1, report.Buckets[3].SampleCount) // 8月23日
	assert.Equal(t, 1, report.Buckets[6].SampleCount)
}

func TestGenerate_WeeklyAcrossDSTTransition(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	g, gw := setupGenerator(t)
	// 2026-03-08 该时区进入夏令时，当天只有 23 小时
	ref := time.Date(2026, 3, 10, 12, 0, 0, 0, loc)

	seedEvent(t, gw, models.MonitorStress, "High Stress",
		time.Date(2026, 3, 9, 0, 30, 0, 0, loc), nil)

	report, err := g.Generate(context.Background(), "user-1", models.MonitorStress, PeriodWeekly, ref)
	require.NoError(t, err)

	// 跨夏令时的一周仍是 7 个自然日桶，事件按日历日落桶
	require.Len(t, report.Buckets, 7)
	assert.Equal(t, "2026-03-04", report.Buckets[0].Label)
	assert.Equal(t, "2026-03-10", report.Buckets[6].Label)
	assert.Equal(t, "2026-03-09", report.Buckets[5].Label)
	assert.Equal(t, 1, report.Buckets[5].SampleCount)
	assert.Equal(t, 1, report.TotalSamples)
}

func TestGenerate_MonthlyCoversCalendarMonth(t *testing.T) {
	g, gw := setupGenerator(t)
	ref := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

	seedEvent(t, gw, models.MonitorHydration, "Dry Lips", time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), nil)
	seedEvent(t, gw, models.MonitorHydration, "Normal Lips", time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC), nil)
	seedEvent(t, gw, models.MonitorHydration, "Dry Lips", time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC), nil)

	report, err := g.Generate(context.Background(), "user-1", models.MonitorHydration, PeriodMonthly, ref)
	require.NoError(t, err)

	assert.Len(t, report.Buckets, 31)
	assert.Equal(t, 2, report.TotalSamples)
	assert.Equal(t, 1, report.Buckets[0].SampleCount)
	assert.Equal(t, 1, report.Buckets[30].SampleCount)
}

func TestGenerate_MetricAggregation(t *testing.T) {
	g, gw := setupGenerator(t)
	ref := time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)

	for _, v := range []float64{10, 20, 30} {
		metric := v
		seedEvent(t, gw, models.MonitorCVS, "Normal Blink Rate", ref, &metric)
	}

	report, err := g.Generate(context.Background(), "user-1", models.MonitorCVS, PeriodDaily, ref)
	require.NoError(t, err)

	b := report.Buckets[10]
	require.NotNil(t, b.Metric)
	assert.Equal(t, 20.0, b.Metric.Avg)
	assert.Equal(t, 10.0, b.Metric.Min)
	assert.Equal(t, 30.0, b.Metric.Max)
}

func TestGenerate_EmptyPeriod(t *testing.T) {
	g, _ := setupGenerator(t)

	report, err := g.Generate(context.Background(), "user-1", models.MonitorPosture, PeriodDaily, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 0, report.TotalSamples)
	assert.Len(t, report.Buckets, 24)
	for _, pct := range report.LabelPercentages {
		assert.Equal(t, 0.0, pct)
	}
}

func TestValidPeriod(t *testing.T) {
	assert.True(t, ValidPeriod("daily"))
	assert.True(t, ValidPeriod("weekly"))
	assert.True(t, ValidPeriod("monthly"))
	assert.False(t, ValidPeriod("yearly"))
	assert.False(t, ValidPeriod(""))
}

func TestExportExcel(t *testing.T) {
	g, gw := setupGenerator(t)
	ref := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	seedEvent(t, gw, models.MonitorPosture, "Bad Posture", ref, nil)
	report, err := g.Generate(context.Background(), "user-1", models.MonitorPosture, PeriodDaily, ref)
	require.NoError(t, err)

	data, err := ExportExcel(report)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	// xlsx 是 zip 容器，以 PK 开头
	assert.Equal(t, []byte{0x50, 0x4B}, data[:2])
}
