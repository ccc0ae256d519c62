package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCacheMiss is returned by CacheRepository.Get when the key is absent
var ErrCacheMiss = errors.New("cache miss")

// ChangeEvent is the kind of row mutation being broadcast
type ChangeEvent string

const (
	EventInsert ChangeEvent = "insert"
	EventUpdate ChangeEvent = "update"
	EventDelete ChangeEvent = "delete"
)

// Change is one row-level notification. Row carries the full new row for inserts and
// updates; deletes carry only ID.
type Change struct {
	Table   Table           `json:"table"`
	Event   ChangeEvent     `json:"event"`
	BoardID string          `json:"board_id"`
	ID      string          `json:"id"`
	Row     json.RawMessage `json:"row,omitempty"`
}

// NewChange encodes row into a notification
func NewChange(table Table, event ChangeEvent, boardID, id string, row interface{}) (Change, error) {
	c := Change{Table: table, Event: event, BoardID: boardID, ID: id}
	if row != nil {
		raw, err := json.Marshal(row)
		if err != nil {
			return Change{}, fmt.Errorf("encode %s row: %w", table, err)
		}
		c.Row = raw
	}
	return c, nil
}

// DecodeRow unpacks the row carried by a change
func DecodeRow[T any](c Change) (T, error) {
	var row T
	if len(c.Row) == 0 {
		return row, fmt.Errorf("%s %s change %s has no row", c.Table, c.Event, c.ID)
	}
	if err := json.Unmarshal(c.Row, &row); err != nil {
		return row, fmt.Errorf("decode %s row: %w", c.Table, err)
	}
	return row, nil
}

// Subscription scopes a change feed to one board
type Subscription struct {
	BoardID string
}

// ChangeFeed delivers row notifications. The returned channel is closed when ctx is done or
// when the underlying connection drops.
type ChangeFeed interface {
	Subscribe(ctx context.Context, sub Subscription) (<-chan Change, error)
}

// Publisher broadcasts confirmed row changes to subscribers
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}
