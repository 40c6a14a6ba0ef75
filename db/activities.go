package db

import (
	"database/sql"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertActivityIfNew = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, object_type, raw_json, direction, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(activity_uri) DO NOTHING`

	// On replay we keep the first writer's row and only refresh the stored
	// payload for audit.
	sqlRefreshActivityPayload = `UPDATE activities SET raw_json = ? WHERE activity_uri = ?`

	sqlSelectActivityByURI = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, object_type, raw_json, direction, created_at FROM activities WHERE activity_uri = ?`
)

// RecordActivityIfNew writes the activity into the ledger if its URI was
// never seen, in either direction. The bool reports whether the activity is
// new; on replay only the raw payload is refreshed and false comes back, so
// side effects must not run.
func (db *DB) RecordActivityIfNew(activity *domain.Activity) (error, bool) {
	isNew := false
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		res, err := tx.Exec(sqlInsertActivityIfNew,
			activity.Id.String(),
			activity.ActivityURI,
			activity.ActivityType,
			activity.ActorURI,
			activity.ObjectURI,
			activity.ObjectType,
			activity.RawJSON,
			activity.Direction,
			activity.CreatedAt,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			_, err := tx.Exec(sqlRefreshActivityPayload, activity.RawJSON, activity.ActivityURI)
			return err
		}
		isNew = true
		return nil
	})
	return err, isNew
}

func (db *DB) ReadActivityByURI(uri string) (error, *domain.Activity) {
	row := db.db.QueryRow(sqlSelectActivityByURI, uri)
	var activity domain.Activity
	var idStr string
	err := row.Scan(
		&idStr,
		&activity.ActivityURI,
		&activity.ActivityType,
		&activity.ActorURI,
		&activity.ObjectURI,
		&activity.ObjectType,
		&activity.RawJSON,
		&activity.Direction,
		&activity.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	activity.Id, _ = uuid.Parse(idStr)
	return nil, &activity
}
