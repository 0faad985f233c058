package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// FirebaseGateway 基于 Firebase Realtime Database REST API 的持久化网关
//
// 数据布局：
//   predictions/{userID}/{monitorType}/{pushID} -> ClassificationEvent
//   alerts/{userID}/{alertID}                   -> AlertRecord
//
// RTDB 的查询能力有限，时间过滤用 orderBy="timestamp" + startAt/endAt，
// 报警按 created_at 拉取后在本地排序截断。
type FirebaseGateway struct {
	client *resty.Client
	secret string
	logger *zap.Logger
}

// 确保实现了接口
var _ Gateway = (*FirebaseGateway)(nil)

// NewFirebaseGateway 创建 Firebase 网关
//
// secret 为空时使用公开规则访问（开发环境）。
func NewFirebaseGateway(baseURL, secret string, logger *zap.Logger) *FirebaseGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(3 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &FirebaseGateway{
		client: client,
		secret: secret,
		logger: logger,
	}
}

// firebaseEvent RTDB 中的事件表示（时间戳存 Unix 毫秒，便于 orderBy 过滤）
type firebaseEvent struct {
	Label     string   `json:"label"`
	Metric    *float64 `json:"metric,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

func (g *FirebaseGateway) request(ctx context.Context) *resty.Request {
	req := g.client.R().SetContext(ctx)
	if g.secret != "" {
		req.SetQueryParam("auth", g.secret)
	}
	return req
}

func (g *FirebaseGateway) AppendEvent(ctx context.Context, ev models.ClassificationEvent) error {
	body := firebaseEvent{
		Label:     ev.Label,
		Metric:    ev.Metric,
		Timestamp: ev.Timestamp.UnixMilli(),
	}

	path := fmt.Sprintf("/predictions/%s/%s.json", ev.UserID, ev.MonitorType)
	resp, err := g.request(ctx).SetBody(body).Post(path)
	if err != nil {
		return fmt.Errorf("failed to post event to firebase: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase rejected event: %s", resp.Status())
	}
	return nil
}

func (g *FirebaseGateway) AppendAlert(ctx context.Context, alert models.AlertRecord) error {
	path := fmt.Sprintf("/alerts/%s/%s.json", alert.UserID, alert.ID)
	resp, err := g.request(ctx).SetBody(alert).Put(path)
	if err != nil {
		return fmt.Errorf("failed to put alert to firebase: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase rejected alert: %s", resp.Status())
	}
	return nil
}

func (g *FirebaseGateway) QueryEvents(ctx context.Context, userID string, monitorType models.MonitorType, since time.Time) ([]models.ClassificationEvent, error) {
	return g.queryEvents(ctx, userID, monitorType, since, time.Time{})
}

func (g *FirebaseGateway) QueryEventsRange(ctx context.Context, userID string, monitorType models.MonitorType, start, end time.Time) ([]models.ClassificationEvent, error) {
	return g.queryEvents(ctx, userID, monitorType, start, end)
}

func (g *FirebaseGateway) queryEvents(ctx context.Context, userID string, monitorType models.MonitorType, start, end time.Time) ([]models.ClassificationEvent, error) {
	var raw map[string]firebaseEvent

	req := g.request(ctx).
		SetQueryParam("orderBy", `"timestamp"`).
		SetQueryParam("startAt", fmt.Sprintf("%d", start.UnixMilli())).
		SetResult(&raw)
	if !end.IsZero() {
		// endAt 为闭区间，减 1ms 得到半开区间 [start, end)
		req.SetQueryParam("endAt", fmt.Sprintf("%d", end.UnixMilli()-1))
	}

	path := fmt.Sprintf("/predictions/%s/%s.json", userID, monitorType)
	resp, err := req.Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to query firebase events: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("firebase query failed: %s", resp.Status())
	}

	events := make([]models.ClassificationEvent, 0, len(raw))
	for _, fe := range raw {
		events = append(events, models.ClassificationEvent{
			MonitorType: monitorType,
			UserID:      userID,
			Timestamp:   time.UnixMilli(fe.Timestamp),
			Label:       fe.Label,
			Metric:      fe.Metric,
		})
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

func (g *FirebaseGateway) QueryAlerts(ctx context.Context, userID string, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var raw map[string]models.AlertRecord
	path := fmt.Sprintf("/alerts/%s.json", userID)
	resp, err := g.request(ctx).SetResult(&raw).Get(path)
	if err != nil {
		return nil, fmt.Errorf("failed to query firebase alerts: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("firebase query failed: %s", resp.Status())
	}

	alerts := make([]models.AlertRecord, 0, len(raw))
	for _, alert := range raw {
		alerts = append(alerts, alert)
	}
	sort.Slice(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (g *FirebaseGateway) MarkAlertRead(ctx context.Context, userID, alertID string) error {
	path := fmt.Sprintf("/alerts/%s/%s.json", userID, alertID)

	// 先确认记录存在（PATCH 到不存在的路径会悄悄创建）
	var existing map[string]any
	resp, err := g.request(ctx).SetResult(&existing).Get(path)
	if err != nil {
		return fmt.Errorf("failed to fetch alert from firebase: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase query failed: %s", resp.Status())
	}
	if len(existing) == 0 {
		return ErrAlertNotFound
	}

	resp, err = g.request(ctx).SetBody(map[string]bool{"read": true}).Patch(path)
	if err != nil {
		return fmt.Errorf("failed to patch alert in firebase: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("firebase rejected alert update: %s", resp.Status())
	}
	return nil
}

func (g *FirebaseGateway) Close() error {
	return nil
}
