package db

import (
	"database/sql"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertNotification = `INSERT INTO notifications(id, kind, actor_id, recipient_actor_id, post_id, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	sqlSelectNotificationsByRecipient = `SELECT id, kind, actor_id, recipient_actor_id, post_id, created_at FROM notifications WHERE recipient_actor_id = ? ORDER BY created_at DESC LIMIT ?`

	sqlDeleteNotificationForPost = `DELETE FROM notifications WHERE kind = ? AND actor_id = ? AND post_id = ?`
	sqlDeleteFollowNotification  = `DELETE FROM notifications WHERE kind = 'follow' AND actor_id = ? AND recipient_actor_id = ?`
)

func (db *DB) CreateNotification(n *domain.Notification) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertNotification,
			n.Id.String(),
			n.Kind,
			n.ActorId.String(),
			n.RecipientActorId.String(),
			nullUUIDString(n.PostId),
			n.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadNotificationsByRecipient(recipientActorId uuid.UUID, limit int) (error, *[]domain.Notification) {
	rows, err := db.db.Query(sqlSelectNotificationsByRecipient, recipientActorId.String(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var notifications []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var idStr, actorIdStr, recipientIdStr string
		var postId sql.NullString
		if err := rows.Scan(&idStr, &n.Kind, &actorIdStr, &recipientIdStr, &postId, &n.CreatedAt); err != nil {
			return err, &notifications
		}
		n.Id, _ = uuid.Parse(idStr)
		n.ActorId, _ = uuid.Parse(actorIdStr)
		n.RecipientActorId, _ = uuid.Parse(recipientIdStr)
		n.PostId = parseNullUUID(postId)
		notifications = append(notifications, n)
	}
	if err = rows.Err(); err != nil {
		return err, &notifications
	}
	return nil, &notifications
}

// DeleteNotificationForPost removes the matching engagement notification
// when its cause is undone.
func (db *DB) DeleteNotificationForPost(kind string, actorId, postId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteNotificationForPost, kind, actorId.String(), postId.String())
		return err
	})
}

// DeleteFollowNotification removes the follow notification when the follow
// is undone.
func (db *DB) DeleteFollowNotification(actorId, recipientActorId uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowNotification, actorId.String(), recipientActorId.String())
		return err
	})
}
