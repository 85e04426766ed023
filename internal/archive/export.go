// Package archive periodically exports the event log as JSONL to off-box
// destinations. The log is the source of truth, so an archive plus a replay
// is a full backup.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Doesntmeananything/sashay/internal/model"
	"github.com/Doesntmeananything/sashay/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EventCount int       `json:"event_count"`
	LastSyncID int64     `json:"last_sync_id"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string       `json:"type"`
	Data *model.Event `json:"data"`
}

// ExportJSONL writes the full event log in id order as JSONL to w.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	events, err := s.EventsSince(ctx, 0)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	var lastID int64
	if len(events) > 0 {
		lastID = events[len(events)-1].ID
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		EventCount: len(events),
		LastSyncID: lastID,
	}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, e := range events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("write event %d: %w", e.ID, err)
		}
	}

	return nil
}
