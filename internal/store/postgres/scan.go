package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Doesntmeananything/sashay/internal/model"
)

// scanEvent scans one event_log row from a *sql.Rows positioned on it.
func scanEvent(rows *sql.Rows) (*model.Event, error) {
	var (
		e          model.Event
		entityType string
		eventType  string
		data       sql.NullString
		changes    sql.NullString
	)
	if err := rows.Scan(&e.ID, &entityType, &e.EntityID, &eventType, &data, &changes, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.EntityType = model.EntityType(entityType)
	e.EventType = model.EventType(eventType)
	if data.Valid {
		e.EntityData = json.RawMessage(data.String)
	}
	if changes.Valid {
		if err := json.Unmarshal([]byte(changes.String), &e.EntityChanges); err != nil {
			return nil, fmt.Errorf("decode entity_changes for event %d: %w", e.ID, err)
		}
	}
	return &e, nil
}
