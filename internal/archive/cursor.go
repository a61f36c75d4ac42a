package archive

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Cursor marks the last record of a page in created_at DESC, request_id DESC order
type Cursor struct {
	CreatedAt time.Time
	RequestID string
}

// DecodeCursor parses a cursor produced by EncodeCursor. An empty string
// means the first page.
func DecodeCursor(cursorStr string) (*Cursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.URLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return nil, fmt.Errorf("invalid cursor format")
	}

	var createdAt int64
	if _, err := fmt.Sscanf(parts[0], "%d", &createdAt); err != nil {
		return nil, fmt.Errorf("invalid createdAt in cursor: %w", err)
	}

	return &Cursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		RequestID: parts[1],
	}, nil
}

// EncodeCursor encodes the position after r
func EncodeCursor(r *Record) string {
	cs := fmt.Sprintf("%d|%s", r.CreatedAt.UnixNano(), r.RequestID)
	return base64.URLEncoding.EncodeToString([]byte(cs))
}
