package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Account is a login on this instance. The federated identity lives in the
// actor row linked back to the account; the account only carries credentials
// and the signing keypair.
type Account struct {
	Id            uuid.UUID
	Username      string
	PasswordHash  string
	PublicKeyPem  string
	PrivateKeyPem string
	CreatedAt     time.Time
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tCreatedAt: %s)", acc.Id, acc.Username, acc.CreatedAt)
}
