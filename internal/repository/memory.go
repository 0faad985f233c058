package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"
)

// MemoryGateway 内存持久化网关（STORE_BACKEND=memory，单机开发与测试用）
type MemoryGateway struct {
	mu     sync.RWMutex
	events []models.ClassificationEvent
	alerts []models.AlertRecord
}

// 确保实现了接口
var _ Gateway = (*MemoryGateway)(nil)

// NewMemoryGateway 创建内存网关
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{}
}

func (g *MemoryGateway) AppendEvent(_ context.Context, ev models.ClassificationEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, ev)
	return nil
}

func (g *MemoryGateway) AppendAlert(_ context.Context, alert models.AlertRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.alerts = append(g.alerts, alert)
	return nil
}

func (g *MemoryGateway) QueryEvents(_ context.Context, userID string, monitorType models.MonitorType, since time.Time) ([]models.ClassificationEvent, error) {
	return g.filterEvents(userID, monitorType, since, time.Time{}), nil
}

func (g *MemoryGateway) QueryEventsRange(_ context.Context, userID string, monitorType models.MonitorType, start, end time.Time) ([]models.ClassificationEvent, error) {
	return g.filterEvents(userID, monitorType, start, end), nil
}

func (g *MemoryGateway) filterEvents(userID string, monitorType models.MonitorType, start, end time.Time) []models.ClassificationEvent {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var results []models.ClassificationEvent
	for _, ev := range g.events {
		if ev.UserID != userID || ev.MonitorType != monitorType {
			continue
		}
		if ev.Timestamp.Before(start) {
			continue
		}
		if !end.IsZero() && !ev.Timestamp.Before(end) {
			continue
		}
		results = append(results, ev)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Timestamp.Before(results[j].Timestamp)
	})
	return results
}

func (g *MemoryGateway) QueryAlerts(_ context.Context, userID string, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var results []models.AlertRecord
	for _, alert := range g.alerts {
		if alert.UserID == userID {
			results = append(results, alert)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (g *MemoryGateway) MarkAlertRead(_ context.Context, userID, alertID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.alerts {
		if g.alerts[i].UserID == userID && g.alerts[i].ID == alertID {
			g.alerts[i].Read = true
			return nil
		}
	}
	return ErrAlertNotFound
}

func (g *MemoryGateway) Close() error {
	return nil
}
