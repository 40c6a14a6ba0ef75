package activitypub

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/anancus/anancus/content"
	"github.com/anancus/anancus/db"
	"github.com/anancus/anancus/util"
	"github.com/google/uuid"
)

const (
	actorCacheTTL      = 24 * time.Hour
	countsRefreshAfter = 6 * time.Hour
	featuredLimit      = 20
)

// Engine drives federation: it resolves actors, fetches remote objects,
// applies inbound activities and fans out outbound ones. All network I/O
// of the module goes through its two clients.
type Engine struct {
	store *db.DB
	conf  *util.AppConfig

	// fetches: actor documents, webfinger, collections, remote objects
	client *http.Client
	// outbound activity POSTs, which tolerate slower peers
	deliverClient *http.Client
}

func NewEngine(store *db.DB, conf *util.AppConfig) *Engine {
	e := &Engine{
		store:         store,
		conf:          conf,
		client:        &http.Client{Timeout: 5 * time.Second},
		deliverClient: &http.Client{Timeout: 30 * time.Second},
	}
	// Redirects get the same treatment as the original target, so a public
	// URL cannot bounce a fetch into a private range.
	guard := func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return fmt.Errorf("too many redirects")
		}
		if e.blockedURL(req.URL.String()) {
			return fmt.Errorf("redirect to blocked address %s", req.URL)
		}
		return nil
	}
	e.client.CheckRedirect = guard
	e.deliverClient.CheckRedirect = guard
	return e
}

func (e *Engine) baseURL() string {
	return "https://" + e.conf.Conf.SslDomain
}

// ActorURI returns the canonical URI of a local user.
func (e *Engine) ActorURI(username string) string {
	return fmt.Sprintf("%s/users/%s", e.baseURL(), username)
}

// PostURI returns the canonical URI of a local post.
func (e *Engine) PostURI(publicId string) string {
	return fmt.Sprintf("%s/posts/%s", e.baseURL(), publicId)
}

// FollowersURI returns the followers collection URI of a local user.
func (e *Engine) FollowersURI(username string) string {
	return fmt.Sprintf("%s/users/%s/followers", e.baseURL(), username)
}

// FollowingURI returns the following collection URI of a local user.
func (e *Engine) FollowingURI(username string) string {
	return fmt.Sprintf("%s/users/%s/following", e.baseURL(), username)
}

// OutboxURI returns the outbox collection URI of a local user.
func (e *Engine) OutboxURI(username string) string {
	return fmt.Sprintf("%s/users/%s/outbox", e.baseURL(), username)
}

// InboxURI returns the per-user inbox URI of a local user.
func (e *Engine) InboxURI(username string) string {
	return fmt.Sprintf("%s/users/%s/inbox", e.baseURL(), username)
}

// SharedInboxURI returns the instance-wide inbox URI.
func (e *Engine) SharedInboxURI() string {
	return e.baseURL() + "/inbox"
}

// newActivityURI mints a URI for a locally-created activity.
func (e *Engine) newActivityURI() string {
	return fmt.Sprintf("%s/activities/%s", e.baseURL(), uuid.New().String())
}

// IsLocalURI reports whether the URI belongs to this instance.
func (e *Engine) IsLocalURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, e.conf.Conf.SslDomain)
}

// blockedURL reports whether a fetch or delivery target must not be
// contacted. With PermitLoopback set, loopback targets pass so a
// single-node setup can federate with itself; other private ranges stay
// blocked either way.
func (e *Engine) blockedURL(rawURL string) bool {
	if !content.IsPrivateAddress(rawURL) {
		return false
	}
	return !(e.conf.Conf.PermitLoopback && isLoopbackURL(rawURL))
}

func isLoopbackURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
