package models

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type PageInfo struct {
	EndCursor   string `json:"end_cursor"`
	HasNextPage bool   `json:"has_next_page"`
}

// EncodeCompositeCursor packs a creation time and id into an opaque cursor.
func EncodeCompositeCursor(createdAt time.Time, id int) string {
	cursor := fmt.Sprintf("%s|%d", createdAt.UTC().Format(time.RFC3339Nano), id)
	return base64.StdEncoding.EncodeToString([]byte(cursor))
}

// DecodeCompositeCursor returns ok=false for an empty or malformed cursor.
func DecodeCompositeCursor(cursor string) (time.Time, int, bool) {
	if cursor == "" {
		return time.Time{}, 0, false
	}
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, 0, false
	}
	parts := strings.Split(string(decoded), "|")
	if len(parts) != 2 {
		return time.Time{}, 0, false
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, 0, false
	}
	return createdAt, id, true
}
