package domain

import (
	"time"

	"github.com/google/uuid"
)

// MediaCleanupItem marks a stored media file whose post is gone. A periodic
// sweeper unlinks the file and removes the row.
type MediaCleanupItem struct {
	Id         uuid.UUID
	Path       string // relative to the media directory
	EnqueuedAt time.Time
}
