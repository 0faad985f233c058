package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chamuda-arangalla/EDUGuard/internal/models"

	_ "github.com/lib/pq"
)

// PostgresGateway 基于 Postgres 的持久化网关
//
// 表结构见 scripts/schema.sql：
// - classification_events(user_id, monitor_type, timestamp, label, metric)
// - alert_records(alert_id, user_id, monitor_type, level, message, snapshot JSONB, created_at, read)
type PostgresGateway struct {
	db *sql.DB
}

// 确保实现了接口
var _ Gateway = (*PostgresGateway)(nil)

// NewPostgresGateway 创建 Postgres 网关
func NewPostgresGateway(dsn string) (*PostgresGateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresGateway{db: db}, nil
}

// NewPostgresGatewayFromDB 从已有连接创建（测试用）
func NewPostgresGatewayFromDB(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

func (g *PostgresGateway) AppendEvent(ctx context.Context, ev models.ClassificationEvent) error {
	query := `
		INSERT INTO classification_events (user_id, monitor_type, timestamp, label, metric)
		VALUES ($1, $2, $3, $4, $5)
	`

	var metric sql.NullFloat64
	if ev.Metric != nil {
		metric = sql.NullFloat64{Float64: *ev.Metric, Valid: true}
	}

	if _, err := g.db.ExecContext(ctx, query, ev.UserID, string(ev.MonitorType), ev.Timestamp, ev.Label, metric); err != nil {
		return fmt.Errorf("failed to insert classification event: %w", err)
	}
	return nil
}

func (g *PostgresGateway) AppendAlert(ctx context.Context, alert models.AlertRecord) error {
	snapshot, err := json.Marshal(alert.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal alert snapshot: %w", err)
	}

	query := `
		INSERT INTO alert_records (alert_id, user_id, monitor_type, level, message, snapshot, created_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	if _, err := g.db.ExecContext(ctx, query,
		alert.ID, alert.UserID, string(alert.MonitorType), string(alert.Level),
		alert.Message, snapshot, alert.CreatedAt, alert.Read,
	); err != nil {
		return fmt.Errorf("failed to insert alert record: %w", err)
	}
	return nil
}

func (g *PostgresGateway) QueryEvents(ctx context.Context, userID string, monitorType models.MonitorType, since time.Time) ([]models.ClassificationEvent, error) {
	query := `
		SELECT user_id, monitor_type, timestamp, label, metric
		FROM classification_events
		WHERE user_id = $1 AND monitor_type = $2 AND timestamp >= $3
		ORDER BY timestamp ASC
	`

	rows, err := g.db.QueryContext(ctx, query, userID, string(monitorType), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (g *PostgresGateway) QueryEventsRange(ctx context.Context, userID string, monitorType models.MonitorType, start, end time.Time) ([]models.ClassificationEvent, error) {
	query := `
		SELECT user_id, monitor_type, timestamp, label, metric
		FROM classification_events
		WHERE user_id = $1 AND monitor_type = $2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp ASC
	`

	rows, err := g.db.QueryContext(ctx, query, userID, string(monitorType), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]models.ClassificationEvent, error) {
	var events []models.ClassificationEvent
	for rows.Next() {
		var ev models.ClassificationEvent
		var monitorType string
		var metric sql.NullFloat64

		if err := rows.Scan(&ev.UserID, &monitorType, &ev.Timestamp, &ev.Label, &metric); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}

		ev.MonitorType = models.MonitorType(monitorType)
		if metric.Valid {
			m := metric.Float64
			ev.Metric = &m
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate event rows: %w", err)
	}
	return events, nil
}

func (g *PostgresGateway) QueryAlerts(ctx context.Context, userID string, limit int) ([]models.AlertRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT alert_id, user_id, monitor_type, level, message, snapshot, created_at, read
		FROM alert_records
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := g.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.AlertRecord
	for rows.Next() {
		var alert models.AlertRecord
		var monitorType, level string
		var snapshot []byte

		if err := rows.Scan(&alert.ID, &alert.UserID, &monitorType, &level,
			&alert.Message, &snapshot, &alert.CreatedAt, &alert.Read); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}

		alert.MonitorType = models.MonitorType(monitorType)
		alert.Level = models.AlertLevel(level)
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &alert.Snapshot); err != nil {
				return nil, fmt.Errorf("failed to unmarshal alert snapshot: %w", err)
			}
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rows: %w", err)
	}
	return alerts, nil
}

func (g *PostgresGateway) MarkAlertRead(ctx context.Context, userID, alertID string) error {
	query := `
		UPDATE alert_records SET read = TRUE
		WHERE user_id = $1 AND alert_id = $2
	`

	result, err := g.db.ExecContext(ctx, query, userID, alertID)
	if err != nil {
		return fmt.Errorf("failed to mark alert read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (g *PostgresGateway) Close() error {
	return g.db.Close()
}
