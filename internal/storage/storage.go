// Package storage persists flat keyed JSON blobs. Every collection is read and
// written whole; there are no partial updates.
package storage

import (
	"context"
	"errors"
)

// Fixed blob keys.
const (
	KeyDiaryEntries     = "diaryEntries"
	KeyTrashEntries     = "trashEntries"
	KeyMusicPreferences = "musicPreferences"
	KeyPublicMusic      = "publicMusic"
)

// ErrEmptyKey is returned when a caller passes a blank key.
var ErrEmptyKey = errors.New("storage key is required")

// Store reads and writes JSON-encoded values by key.
type Store interface {
	// Get decodes the value under key into dst. It reports false when the key is absent.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}
