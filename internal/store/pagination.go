package store

import (
	"encoding/base64"
	"encoding/json"
	"time"
)

// CursorPage is a keyset-paginated result, used for customer order history
// where new orders keep shifting the offsets.
type CursorPage struct {
	Items      interface{} `json:"items"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

type OffsetPage struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
}

type OrderCursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        int64     `json:"id"`
}

func EncodeCursor(cursor OrderCursor) string {
	data, err := json.Marshal(cursor)
	if err != nil {
		return ""
	}
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor parses an opaque page cursor. An empty cursor means the
// first page and returns nil: rows are stamped with the database clock,
// so the first page must not carry an app-side upper bound.
func DecodeCursor(encoded string) (*OrderCursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}

	cursor := &OrderCursor{}
	if err := json.Unmarshal(data, cursor); err != nil {
		return nil, err
	}
	return cursor, nil
}
