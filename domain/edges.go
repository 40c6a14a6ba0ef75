package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	FollowPending  = "pending"
	FollowAccepted = "accepted"
)

// Follow is a follow edge between two actors. Edges toward remote actors
// start out pending and flip to accepted when the remote side sends an
// Accept; edges toward local actors are accepted immediately.
type Follow struct {
	Id            uuid.UUID
	ActorId       uuid.UUID
	TargetActorId uuid.UUID
	URI           string // Follow activity URI, used to match Accept and Undo
	Status        string
	CreatedAt     time.Time
}

func (f *Follow) IsAccepted() bool {
	return f.Status == FollowAccepted
}

// Like is a like edge from an actor to a post, at most one per pair.
type Like struct {
	Id        uuid.UUID
	ActorId   uuid.UUID
	PostId    uuid.UUID
	URI       string // Like activity URI, used to match Undo
	CreatedAt time.Time
}

// Boost is a boost (Announce) edge from an actor to a post, at most one
// per pair.
type Boost struct {
	Id        uuid.UUID
	ActorId   uuid.UUID
	PostId    uuid.UUID
	URI       string // Announce activity URI, used to match Undo
	CreatedAt time.Time
}
