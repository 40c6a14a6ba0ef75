package activitypub

import (
	"bytes"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/anancus/anancus/util"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Recipient is one delivery target: the whole followers collection of a
// local actor, expanded at send time, or one explicit remote inbox.
type Recipient struct {
	FollowersOf *domain.Actor
	ActorURI    string
	InboxURI    string
}

// FollowersRecipient addresses every accepted follower of a local actor.
func FollowersRecipient(actor *domain.Actor) Recipient {
	return Recipient{FollowersOf: actor}
}

// ActorRecipient addresses one actor directly, preferring its shared inbox.
func ActorRecipient(actor *domain.Actor) Recipient {
	return Recipient{ActorURI: actor.URI, InboxURI: actor.BestInbox()}
}

// Deliver signs and posts one activity to every distinct inbox in the
// recipient set. The caller's local state is already committed; nothing
// here fails the caller, every failure is a log line.
func (e *Engine) Deliver(activity any, sender *domain.Account, recipients []Recipient) {
	if !e.conf.Conf.WithAp {
		return
	}
	body, err := json.Marshal(activity)
	if err != nil {
		log.Warn().Err(err).Msg("Delivery: activity not serializable")
		return
	}
	privateKey, err := ParsePrivateKey(sender.PrivateKeyPem)
	if err != nil {
		log.Warn().Err(err).Msgf("Delivery: key of %s unusable", sender.Username)
		return
	}
	keyId := e.ActorURI(sender.Username) + "#main-key"

	for _, target := range e.expandRecipients(recipients) {
		status, err := e.sendSigned(target.InboxURI, body, privateKey, keyId)
		if err != nil {
			log.Warn().Err(err).Msgf("Delivery: %s unreachable", target.InboxURI)
			continue
		}
		if status < 200 || status >= 300 {
			log.Warn().Msgf("Delivery: %s answered %d", target.InboxURI, status)
			continue
		}
		log.Info().Msgf("Delivery: delivered to %s", target.InboxURI)
	}
}

// expandRecipients flattens followers collections into concrete inboxes,
// drops local and guarded targets, and dedupes by inbox URI so a shared
// inbox gets one POST no matter how many followers live behind it.
func (e *Engine) expandRecipients(recipients []Recipient) []Recipient {
	var flat []Recipient
	for _, r := range recipients {
		if r.FollowersOf == nil {
			flat = append(flat, r)
			continue
		}
		err, followers := e.store.ReadFollowerActors(r.FollowersOf.Id)
		if err != nil {
			log.Warn().Err(err).Msgf("Delivery: could not expand followers of %s", r.FollowersOf.URI)
			continue
		}
		for _, follower := range *followers {
			flat = append(flat, ActorRecipient(&follower))
		}
	}

	flat = lo.Filter(flat, func(r Recipient, _ int) bool {
		if r.InboxURI == "" || e.IsLocalURI(r.InboxURI) {
			return false
		}
		if e.blockedURL(r.InboxURI) {
			log.Debug().Msgf("Delivery: skipping guarded inbox %s", r.InboxURI)
			return false
		}
		return true
	})
	return lo.UniqBy(flat, func(r Recipient) string { return r.InboxURI })
}

// sendSigned performs one signed POST of exactly the given bytes. Host and
// Digest are set before signing so the signature covers what goes on the
// wire. The status code comes back so callers can tell a remote rejection
// from a transport failure.
func (e *Engine) sendSigned(inboxURI string, body []byte, privateKey *rsa.PrivateKey, keyId string) (int, error) {
	if e.blockedURL(inboxURI) {
		return 0, fmt.Errorf("inbox %s is not allowed", inboxURI)
	}
	req, err := http.NewRequest(http.MethodPost, inboxURI, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)
	req.Header.Set("User-Agent", util.UserAgent())
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)
	req.Header.Set("Digest", DigestHeader(body))

	if err := SignRequest(req, privateKey, keyId); err != nil {
		return 0, err
	}

	resp, err := e.deliverClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
