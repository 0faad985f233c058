package reports

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"
)

// ExportExcel 将报表导出为 Excel 文件
//
// 第一张表是周期汇总，第二张表是逐桶明细。
func ExportExcel(report *Report) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo 需要文件保持打开，出错路径上单独 Close

	summarySheet := "Summary"
	index, err := f.NewSheet(summarySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 汇总表
	summaryRows := [][]interface{}{
		{"User", report.UserID},
		{"Monitor Type", string(report.MonitorType)},
		{"Period", string(report.Period)},
		{"From", report.Start.Format("2006-01-02 15:04")},
		{"To", report.End.Format("2006-01-02 15:04")},
		{"Total Samples", report.TotalSamples},
	}
	for label, pct := range report.LabelPercentages {
		summaryRows = append(summaryRows, []interface{}{label + " %", pct})
	}
	for i, row := range summaryRows {
		if err := f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", "A"+fmt.Sprint(len(summaryRows)), headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set summary style: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 24); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	// 明细表：一列时间桶 + 每个标签的百分比 + 指标统计
	detailSheet := "Buckets"
	if _, err := f.NewSheet(detailSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	labels := sortedLabels(report)
	header := []interface{}{"Bucket", "Samples"}
	for _, label := range labels {
		header = append(header, label+" %")
	}
	header = append(header, "Metric Avg", "Metric Min", "Metric Max")
	if err := f.SetSheetRow(detailSheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write detail header: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to convert column number: %w", err)
	}
	if err := f.SetCellStyle(detailSheet, "A1", lastCol+"1", headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set detail header style: %w", err)
	}

	for i, bucket := range report.Buckets {
		row := []interface{}{bucket.Label, bucket.SampleCount}
		for _, label := range labels {
			row = append(row, bucket.LabelPercentages[label])
		}
		if bucket.Metric != nil {
			row = append(row, bucket.Metric.Avg, bucket.Metric.Min, bucket.Metric.Max)
		}
		if err := f.SetSheetRow(detailSheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write detail row: %w", err)
		}
	}

	// 冻结明细表头
	if err := f.SetPanes(detailSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

// sortedLabels 按报表汇总里的标签稳定排序（map 遍历顺序不稳定）
func sortedLabels(report *Report) []string {
	labels := make([]string, 0, len(report.LabelPercentages))
	for label := range report.LabelPercentages {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
