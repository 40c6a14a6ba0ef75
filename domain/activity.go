package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Activity is a row in the deduplication ledger: every activity URI this
// instance has ever processed, inbound or outbound, with its raw payload
// kept for audit.
type Activity struct {
	Id           uuid.UUID
	ActivityURI  string
	ActivityType string // Follow, Create, Like, Announce, Undo, Accept, Delete
	ActorURI     string
	ObjectURI    string
	ObjectType   string // type of an embedded object, "" for bare references
	RawJSON      string
	Direction    string // in or out
	CreatedAt    time.Time
}
