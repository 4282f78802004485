package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Errors
var (
	ErrInvalidCursor = errors.New("invalid cursor")
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Cursor represents a position in a keyspace scan.
type Cursor struct {
	Position uint64 `json:"pos"`
}

// Encode encodes cursor to base64 string. A nil or zero cursor encodes to ""
// so the first and the exhausted page share the same wire form.
func (c *Cursor) Encode() string {
	if c == nil || c.Position == 0 {
		return ""
	}
	data, _ := json.Marshal(c)
	return base64.URLEncoding.EncodeToString(data)
}

// DecodeCursor decodes base64 string to Cursor
func DecodeCursor(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, ErrInvalidCursor
	}

	return &cursor, nil
}

// CursorRequest represents cursor-based pagination request
type CursorRequest struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// CursorResponse represents cursor-based pagination response
type CursorResponse[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more"`
}

// NewCursorRequest creates a new cursor request with defaults
func NewCursorRequest(cursor string, limit int) *CursorRequest {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	return &CursorRequest{
		Cursor: cursor,
		Limit:  limit,
	}
}

// GetLimit returns validated limit
func (r *CursorRequest) GetLimit() int {
	if r.Limit <= 0 || r.Limit > MaxLimit {
		return DefaultLimit
	}
	return r.Limit
}

// Position returns the scan position the request resumes from.
func (r *CursorRequest) Position() (uint64, error) {
	cursor, err := DecodeCursor(r.Cursor)
	if err != nil {
		return 0, err
	}
	if cursor == nil {
		return 0, nil
	}
	return cursor.Position, nil
}

// BuildScanResponse builds a cursor response from one scan page. A zero
// next position means the scan is complete.
func BuildScanResponse[T any](items []T, next uint64) *CursorResponse[T] {
	if items == nil {
		items = []T{}
	}
	return &CursorResponse[T]{
		Items:      items,
		NextCursor: (&Cursor{Position: next}).Encode(),
		HasMore:    next != 0,
	}
}
