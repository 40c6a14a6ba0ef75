package db

import (
	"database/sql"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
)

const (
	sqlInsertAccount = `INSERT INTO accounts(id, username, password_hash, public_key_pem, private_key_pem, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	sqlSelectAccountById       = `SELECT id, username, password_hash, public_key_pem, private_key_pem, created_at FROM accounts WHERE id = ?`
	sqlSelectAccountByUsername = `SELECT id, username, password_hash, public_key_pem, private_key_pem, created_at FROM accounts WHERE username = ?`
)

// CreateAccountWithActor inserts the account and its local actor row in one
// transaction, so a registration can never end up half applied.
func (db *DB) CreateAccountWithActor(acc *domain.Account, actor *domain.Actor) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertAccount,
			acc.Id.String(),
			acc.Username,
			acc.PasswordHash,
			acc.PublicKeyPem,
			acc.PrivateKeyPem,
			acc.CreatedAt,
		)
		if err != nil {
			return err
		}

		_, err = tx.Exec(sqlInsertActor,
			actor.Id.String(),
			actor.URI,
			actor.Username,
			actor.Domain,
			actor.DisplayName,
			actor.Summary,
			actor.AvatarURL,
			actor.InboxURI,
			actor.SharedInboxURI,
			actor.ActorType,
			actor.PublicKeyPem,
			actor.FollowersCount,
			actor.FollowingCount,
			actor.CountsRefreshedAt,
			nullUUIDString(actor.AccountId),
			actor.CreatedAt,
			actor.UpdatedAt,
		)
		return err
	})
}

func (db *DB) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	return db.readAccount(db.db.QueryRow(sqlSelectAccountById, id.String()))
}

func (db *DB) ReadAccByUsername(username string) (error, *domain.Account) {
	return db.readAccount(db.db.QueryRow(sqlSelectAccountByUsername, username))
}

func (db *DB) readAccount(row *sql.Row) (error, *domain.Account) {
	var acc domain.Account
	var idStr string
	var createdAt time.Time
	err := row.Scan(
		&idStr,
		&acc.Username,
		&acc.PasswordHash,
		&acc.PublicKeyPem,
		&acc.PrivateKeyPem,
		&createdAt,
	)
	if err == sql.ErrNoRows {
		return err, nil
	}
	if err != nil {
		return err, nil
	}
	acc.Id, _ = uuid.Parse(idStr)
	acc.CreatedAt = createdAt
	return nil, &acc
}
