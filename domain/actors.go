package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActorTypePerson = "Person"
	ActorTypeGroup  = "Group"
)

// Caps applied to fetched profile fields before they are stored.
const (
	MaxDisplayNameLen = 200
	MaxSummaryLen     = 5000
)

// Actor is a federated identity, local or remote, keyed by its ActivityPub
// URI. Local actors carry a non-nil AccountId; remote actors are cached
// copies of documents fetched from their home server.
type Actor struct {
	Id                uuid.UUID
	URI               string
	Username          string
	Domain            string
	DisplayName       string
	Summary           string
	AvatarURL         string
	InboxURI          string
	SharedInboxURI    string
	ActorType         string // Person or Group
	PublicKeyPem      string
	FollowersCount    int64
	FollowingCount    int64
	CountsRefreshedAt time.Time
	AccountId         *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Handle returns the @user@domain form of the actor.
func (a *Actor) Handle() string {
	return "@" + a.Username + "@" + a.Domain
}

func (a *Actor) IsLocal() bool {
	return a.AccountId != nil
}

func (a *Actor) IsGroup() bool {
	return a.ActorType == ActorTypeGroup
}

// BestInbox prefers the shared inbox when the actor's server announces one.
func (a *Actor) BestInbox() string {
	if a.SharedInboxURI != "" {
		return a.SharedInboxURI
	}
	return a.InboxURI
}
