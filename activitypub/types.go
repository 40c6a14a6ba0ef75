package activitypub

import (
	"encoding/json"

	"github.com/anancus/anancus/domain"
)

const ContentType = "application/activity+json"

// apContext is the @context of every outbound document. The "as" alias
// keeps the compact public-audience term resolvable for JSON-LD consumers.
var apContext = []any{
	"https://www.w3.org/ns/activitystreams",
	"https://w3id.org/security/v1",
	map[string]string{"as": "https://www.w3.org/ns/activitystreams#"},
}

// DocumentContext returns the @context to attach when a document is
// served on its own rather than embedded in an activity.
func DocumentContext() any { return apContext }

// ActivityKind is the closed set of activity types the engine applies.
// Everything else is KindIgnored: logged and acknowledged, never an error.
type ActivityKind int

const (
	KindIgnored ActivityKind = iota
	KindFollow
	KindAccept
	KindUndo
	KindLike
	KindAnnounce
	KindCreate
	KindDelete
)

func KindOf(activityType string) ActivityKind {
	switch activityType {
	case "Follow":
		return KindFollow
	case "Accept":
		return KindAccept
	case "Undo":
		return KindUndo
	case "Like":
		return KindLike
	case "Announce":
		return KindAnnounce
	case "Create":
		return KindCreate
	case "Delete":
		return KindDelete
	default:
		return KindIgnored
	}
}

func (k ActivityKind) String() string {
	switch k {
	case KindFollow:
		return "Follow"
	case KindAccept:
		return "Accept"
	case KindUndo:
		return "Undo"
	case KindLike:
		return "Like"
	case KindAnnounce:
		return "Announce"
	case KindCreate:
		return "Create"
	case KindDelete:
		return "Delete"
	default:
		return "Ignored"
	}
}

// stringList accepts both a single JSON string and an array; mixed arrays
// keep only the string entries. It marshals as a plain array.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*s = stringList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err == nil {
		*s = many
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = nil
	for _, r := range raw {
		var v string
		if json.Unmarshal(r, &v) == nil {
			*s = append(*s, v)
		}
	}
	return nil
}

// uriRef accepts either a bare URI string or an embedded object, keeping
// only the id. It marshals as a string.
type uriRef string

func (u *uriRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = uriRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*u = uriRef(obj.ID)
	return nil
}

// Envelope is the outer shape of an inbound activity. Object stays raw
// until the kind-specific handler knows what to expect in it.
type Envelope struct {
	Context json.RawMessage `json:"@context,omitempty"`
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Actor   string          `json:"actor"`
	Object  json.RawMessage `json:"object,omitempty"`
	To      stringList      `json:"to,omitempty"`
	Cc      stringList      `json:"cc,omitempty"`
}

// objectURI returns the bare object reference: the string itself, or the
// id of an embedded object.
func (env *Envelope) objectURI() string {
	if len(env.Object) == 0 {
		return ""
	}
	var ref uriRef
	if err := json.Unmarshal(env.Object, &ref); err != nil {
		return ""
	}
	return string(ref)
}

// objectType returns the embedded object's type, or "" when the object is
// a bare URI.
func (env *Envelope) objectType() string {
	if len(env.Object) == 0 {
		return ""
	}
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(env.Object, &obj); err != nil {
		return ""
	}
	return obj.Type
}

// Document is the generic outbound activity shape.
type Document struct {
	Context   any      `json:"@context,omitempty"`
	ID        string   `json:"id"`
	Type      string   `json:"type"`
	Actor     string   `json:"actor,omitempty"`
	Published string   `json:"published,omitempty"`
	To        []string `json:"to,omitempty"`
	Cc        []string `json:"cc,omitempty"`
	Object    any      `json:"object,omitempty"`
}

// Note is the wire shape of a post: lenient on input, canonical on output.
// QuoteURL and QuoteURI are the two quote spellings in circulation; both
// are written so either family of servers picks the quote up.
type Note struct {
	Context      any                `json:"@context,omitempty"`
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	AttributedTo uriRef             `json:"attributedTo,omitempty"`
	Content      string             `json:"content,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	Sensitive    bool               `json:"sensitive,omitempty"`
	InReplyTo    uriRef             `json:"inReplyTo,omitempty"`
	QuoteURL     string             `json:"quoteUrl,omitempty"`
	QuoteURI     string             `json:"quoteUri,omitempty"`
	Published    string             `json:"published,omitempty"`
	Updated      string             `json:"updated,omitempty"`
	URL          string             `json:"url,omitempty"`
	To           stringList         `json:"to,omitempty"`
	Cc           stringList         `json:"cc,omitempty"`
	Tag          []TagObject        `json:"tag,omitempty"`
	Attachment   []AttachmentObject `json:"attachment,omitempty"`
}

// QuoteOf returns the quoted object URI under either spelling.
func (n *Note) QuoteOf() string {
	if n.QuoteURL != "" {
		return n.QuoteURL
	}
	return n.QuoteURI
}

type TagObject struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Href string `json:"href,omitempty"`
}

type AttachmentObject struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url"`
	Name      string `json:"name,omitempty"`
}

type Tombstone struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	FormerType string `json:"formerType,omitempty"`
}

// ActorDocument is the wire shape of an actor, fetched from remotes and
// served for local users.
type ActorDocument struct {
	Context           any             `json:"@context,omitempty"`
	ID                string          `json:"id"`
	Type              string          `json:"type"`
	PreferredUsername string          `json:"preferredUsername"`
	Name              string          `json:"name,omitempty"`
	Summary           string          `json:"summary,omitempty"`
	Inbox             string          `json:"inbox"`
	Outbox            string          `json:"outbox,omitempty"`
	Followers         string          `json:"followers,omitempty"`
	Following         string          `json:"following,omitempty"`
	Featured          string          `json:"featured,omitempty"`
	Endpoints         *ActorEndpoints `json:"endpoints,omitempty"`
	Icon              *ImageObject    `json:"icon,omitempty"`
	PublicKey         PublicKeyObject `json:"publicKey"`
}

type ActorEndpoints struct {
	SharedInbox string `json:"sharedInbox,omitempty"`
}

type ImageObject struct {
	Type      string `json:"type"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url"`
}

type PublicKeyObject struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	PublicKeyPem string `json:"publicKeyPem"`
}

// Collection is an OrderedCollection header, served locally with counts
// and parsed from remotes for count refreshes and featured posts.
type Collection struct {
	Context      any               `json:"@context,omitempty"`
	ID           string            `json:"id,omitempty"`
	Type         string            `json:"type"`
	TotalItems   int64             `json:"totalItems"`
	OrderedItems []json.RawMessage `json:"orderedItems,omitempty"`
	Items        []json.RawMessage `json:"items,omitempty"`
}

// publicAudience reports whether the list addresses the public collection
// under either the compact or the expanded spelling.
func publicAudience(audience []string) bool {
	for _, a := range audience {
		if a == domain.PublicAudience || a == domain.PublicAudienceExpanded {
			return true
		}
	}
	return false
}
