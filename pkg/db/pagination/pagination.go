// Package pagination implements opaque cursor paging over
// created_at/id ordered listings.
package pagination

import (
	"encoding/base64"
	"encoding/json"
)

const (
	defaultPageSize = 50
	maxPageSize     = 250
)

// Pagination is the page window a client asked for. Zero values mean
// first page with the default size.
type Pagination struct {
	PageToken string `form:"page_token" json:"pageToken,omitempty"`
	PageSize  int    `form:"page_size" json:"pageSize,omitempty"`
}

// Limit clamps the requested size to [1, maxPageSize].
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return defaultPageSize
	}
	if p.PageSize > maxPageSize {
		return maxPageSize
	}
	return p.PageSize
}

// Cursor marks the last row of the previous page. CreatedAt is
// RFC3339Nano so it round-trips through JSON without precision loss.
type Cursor struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
}

type PageInfo struct {
	NextPageToken string `json:"nextPageToken,omitempty"`
	HasMore       bool   `json:"hasMore"`
}

func EncodeCursor(c Cursor) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, err
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Page trims an over-fetched result set (limit+1 rows) to the page size
// and builds its PageInfo. extract returns the cursor for the last row
// kept.
func Page[T any](rows []*T, limit int, extract func(*T) Cursor) ([]*T, *PageInfo, error) {
	if len(rows) <= limit {
		return rows, &PageInfo{}, nil
	}

	rows = rows[:limit]
	token, err := EncodeCursor(extract(rows[len(rows)-1]))
	if err != nil {
		return nil, nil, err
	}
	return rows, &PageInfo{NextPageToken: token, HasMore: true}, nil
}
