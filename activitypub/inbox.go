package activitypub

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Sentinel errors the HTTP layer maps to status codes: ErrMalformed to
// 400, ErrBadSignature to 401.
var (
	ErrMalformed    = errors.New("malformed activity")
	ErrBadSignature = errors.New("signature rejected")
)

// ProcessInbound verifies and applies one delivered activity. Order
// matters: nothing is written before the signature holds, and no side
// effect runs before the ledger confirms the activity is new. Handler
// failures are absorbed after the ledger write; returning an error there
// would make remote servers retry an activity that can never apply.
func (e *Engine) ProcessInbound(r *http.Request, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.ID == "" || env.Type == "" || env.Actor == "" {
		return fmt.Errorf("%w: id, type and actor are required", ErrMalformed)
	}
	if digest := r.Header.Get("Digest"); digest != "" && digest != DigestHeader(body) {
		return fmt.Errorf("%w: digest does not match the body", ErrBadSignature)
	}

	actor, err := e.ResolveActor(env.Actor)
	if err != nil {
		return fmt.Errorf("%w: actor %s not resolvable", ErrBadSignature, env.Actor)
	}
	if _, err := VerifyRequest(r, actor.PublicKeyPem); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	err, isNew := e.store.RecordActivityIfNew(&domain.Activity{
		Id:           uuid.New(),
		ActivityURI:  env.ID,
		ActivityType: env.Type,
		ActorURI:     actor.URI,
		ObjectURI:    env.objectURI(),
		ObjectType:   env.objectType(),
		RawJSON:      string(body),
		Direction:    domain.DirectionIn,
		CreatedAt:    time.Now(),
	})
	if err != nil {
		return err
	}
	if !isNew {
		log.Info().Msgf("Inbox: replay of %s, ignoring", env.ID)
		return nil
	}

	kind := KindOf(env.Type)
	if kind == KindIgnored {
		log.Info().Msgf("Inbox: ignoring %s from %s", env.Type, actor.URI)
		return nil
	}
	log.Info().Msgf("Inbox: %s from %s", env.Type, actor.URI)

	var applyErr error
	switch kind {
	case KindFollow:
		applyErr = e.applyFollow(&env, actor)
	case KindAccept:
		applyErr = e.applyAccept(&env, actor)
	case KindUndo:
		applyErr = e.applyUndo(&env, actor)
	case KindLike:
		applyErr = e.applyLike(&env, actor)
	case KindAnnounce:
		applyErr = e.applyAnnounce(&env, actor)
	case KindCreate:
		applyErr = e.applyCreate(&env, actor)
	case KindDelete:
		applyErr = e.applyDelete(&env, actor)
	}
	if applyErr != nil {
		log.Warn().Err(applyErr).Msgf("Inbox: dropped %s %s", env.Type, env.ID)
	}
	return nil
}
