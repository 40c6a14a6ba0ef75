package db

import (
	"database/sql"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertMediaCleanup      = `INSERT INTO media_cleanup(id, path, enqueued_at) VALUES (?, ?, ?)`
	sqlSelectMediaCleanupBatch = `SELECT id, path, enqueued_at FROM media_cleanup ORDER BY enqueued_at ASC LIMIT ?`
	sqlDeleteMediaCleanup      = `DELETE FROM media_cleanup WHERE id = ?`
)

// EnqueueMediaCleanup marks a media file for removal by the sweeper. Post
// deletion enqueues within its own transaction; this is the standalone
// variant.
func (db *DB) EnqueueMediaCleanup(path string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertMediaCleanup, uuid.New().String(), path, time.Now())
		return err
	})
}

func (db *DB) ReadMediaCleanupBatch(limit int) (error, *[]domain.MediaCleanupItem) {
	rows, err := db.db.Query(sqlSelectMediaCleanupBatch, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.MediaCleanupItem
	for rows.Next() {
		var item domain.MediaCleanupItem
		var idStr string
		if err := rows.Scan(&idStr, &item.Path, &item.EnqueuedAt); err != nil {
			return err, &items
		}
		item.Id, _ = uuid.Parse(idStr)
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	return nil, &items
}

func (db *DB) DeleteMediaCleanupItem(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteMediaCleanup, id.String())
		return err
	})
}
