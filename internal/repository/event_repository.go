package repository

import (
	"context"
	"database/sql"
	"time"

	jsoniter "github.com/json-iterator/go"

	"slguard/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// EventRepository - журнал аудита system_events
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// LogEvent записывает событие аудита. details сериализуется в JSON, nil -> NULL.
func (r *EventRepository) LogEvent(ctx context.Context, eventType, accountID, figi, ticker, description string, details map[string]interface{}) error {
	var detailsJSON sql.NullString
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			return err
		}
		detailsJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO system_events (event_type, account_id, figi, ticker, description, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(ctx, query, eventType, accountID, figi, ticker, description, detailsJSON, time.Now())
	return err
}

// EventFilter - параметры выборки журнала
type EventFilter struct {
	AccountID string
	EventType string // пусто = все типы
	Limit     int
}

// List возвращает последние события, новые первыми
func (r *EventRepository) List(ctx context.Context, f EventFilter) ([]*models.SystemEvent, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}

	query := `
		SELECT id, event_type, account_id, figi, ticker, description, details, created_at
		FROM system_events
		WHERE account_id = $1 AND ($2 = '' OR event_type = $2)
		ORDER BY id DESC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, f.AccountID, f.EventType, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.SystemEvent
	for rows.Next() {
		ev := &models.SystemEvent{}
		var details sql.NullString
		if err := rows.Scan(
			&ev.ID,
			&ev.EventType,
			&ev.AccountID,
			&ev.Figi,
			&ev.Ticker,
			&ev.Description,
			&details,
			&ev.CreatedAt,
		); err != nil {
			return nil, err
		}
		if details.Valid && details.String != "" {
			if err := json.UnmarshalFromString(details.String, &ev.Details); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// DeleteOlderThan удаляет события старше указанного времени
func (r *EventRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM system_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
