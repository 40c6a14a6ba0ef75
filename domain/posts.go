package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PublicAudience is the compact form of the ActivityStreams public
// collection. Builders emit this form; the relay path expands it to the
// full URI for servers that only accept the expanded spelling.
const PublicAudience = "as:Public"

// PublicAudienceExpanded is the full URI of the public collection.
const PublicAudienceExpanded = "https://www.w3.org/ns/activitystreams#Public"

// MaxContentWarningLen caps stored content warnings, local and remote.
const MaxContentWarningLen = 500

// LinkPreview is an Open Graph style summary card for the first link in a
// post.
type LinkPreview struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// VideoEmbed points at the player URL for a recognized video host.
type VideoEmbed struct {
	Provider string `json:"provider"`
	EmbedURL string `json:"embedUrl"`
}

// SavePost is the compose input for a new local post.
type SavePost struct {
	AccountId      uuid.UUID
	Content        string
	ReplyToId      string // public id of the parent, empty for a top-level post
	QuoteOf        string // public id or remote URL of the quoted post
	Community      string // handle or URI of a Group actor to submit to
	Sensitive      bool
	ContentWarning string
	Attachments    []string
}

// Post is a stored post, local or remote. Id is internal; PublicId is the
// opaque token used in local URLs and object URIs; URI is the ActivityPub
// object URI (derived from PublicId for local posts, remote otherwise).
type Post struct {
	Id             uuid.UUID
	PublicId       string
	URI            string
	ActorId        uuid.UUID
	Content        string
	Sensitive      bool
	ContentWarning string
	InReplyToId    *uuid.UUID
	QuoteOfId      *uuid.UUID
	Audience       []string
	Tags           []string
	Mentions       []string
	Attachments    []string
	LinkPreview    *LinkPreview
	VideoEmbed     *VideoEmbed
	LikesCount     int64
	BoostsCount    int64
	RepliesCount   int64
	CreatedAt      time.Time
	EditedAt       *time.Time
}

// IsPublic reports whether the post is addressed to the public collection,
// in either spelling.
func (p *Post) IsPublic() bool {
	for _, a := range p.Audience {
		if a == PublicAudience || a == PublicAudienceExpanded {
			return true
		}
	}
	return false
}

func (p *Post) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tPublicId: %s \n\tURI: %s \n\tCreatedAt: %s)", p.Id, p.PublicId, p.URI, p.CreatedAt)
}
