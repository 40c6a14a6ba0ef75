package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	NotificationFollow  = "follow"
	NotificationLike    = "like"
	NotificationBoost   = "boost"
	NotificationMention = "mention"
)

// Notification records that an actor did something a local recipient should
// see. Kind decides whether PostId is set: follow notifications have none.
type Notification struct {
	Id               uuid.UUID
	Kind             string
	ActorId          uuid.UUID // who acted
	RecipientActorId uuid.UUID // local actor being notified
	PostId           *uuid.UUID
	CreatedAt        time.Time
}
