package activitypub

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/anancus/anancus/domain"
	"github.com/rs/zerolog/log"
)

// RelayError reports a community server rejecting a relayed activity, with
// enough context for the route layer to surface it.
type RelayError struct {
	Community  string
	StatusCode int
	Err        error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("relay to %s failed: %v", e.Community, e.Err)
	}
	return fmt.Sprintf("relay to %s rejected with status %d", e.Community, e.StatusCode)
}

func (e *RelayError) Unwrap() error { return e.Err }

// RelayToCommunity posts an activity to a Group inbox with the public
// audience written out in full. Lemmy-family servers reject the compact
// as:Public spelling, and the signature covers the body, so the expansion
// has to happen on the exact bytes that get signed.
func (e *Engine) RelayToCommunity(activity any, sender *domain.Account, communityURI string) error {
	community, err := e.ResolveActor(communityURI)
	if err != nil {
		return &RelayError{Community: communityURI, Err: err}
	}
	if !community.IsGroup() {
		return &RelayError{Community: communityURI, Err: fmt.Errorf("%s is not a community", communityURI)}
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return &RelayError{Community: communityURI, Err: err}
	}
	body = bytes.ReplaceAll(body,
		[]byte(`"`+domain.PublicAudience+`"`),
		[]byte(`"`+domain.PublicAudienceExpanded+`"`))

	privateKey, err := ParsePrivateKey(sender.PrivateKeyPem)
	if err != nil {
		return &RelayError{Community: communityURI, Err: err}
	}
	keyId := e.ActorURI(sender.Username) + "#main-key"

	status, err := e.sendSigned(community.BestInbox(), body, privateKey, keyId)
	if err != nil {
		return &RelayError{Community: communityURI, Err: err}
	}
	if status < 200 || status >= 300 {
		return &RelayError{Community: communityURI, StatusCode: status}
	}
	log.Info().Msgf("Relay: delivered to %s", communityURI)
	return nil
}
