package activitypub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/anancus/anancus/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// applyFollow records an inbound follow of a local actor. The edge is
// accepted right away and no Accept is sent back; followers-only delivery
// treats silence as consent.
func (e *Engine) applyFollow(env *Envelope, actor *domain.Actor) error {
	targetURI := env.objectURI()
	if targetURI == "" {
		return fmt.Errorf("follow without object")
	}
	if !e.IsLocalURI(targetURI) {
		return fmt.Errorf("follow target %s is not local", targetURI)
	}
	err, target := e.store.ReadActorByURI(targetURI)
	if err != nil {
		return fmt.Errorf("follow target %s unknown", targetURI)
	}
	err, inserted := e.store.CreateFollow(&domain.Follow{
		Id:            uuid.New(),
		ActorId:       actor.Id,
		TargetActorId: target.Id,
		URI:           env.ID,
		Status:        domain.FollowAccepted,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted || target.Id == actor.Id {
		return nil
	}
	return e.store.CreateNotification(&domain.Notification{
		Id:               uuid.New(),
		Kind:             domain.NotificationFollow,
		ActorId:          actor.Id,
		RecipientActorId: target.Id,
		CreatedAt:        time.Now(),
	})
}

// applyAccept promotes a pending follow this instance sent earlier. Only
// the follow's target may accept it.
func (e *Engine) applyAccept(env *Envelope, actor *domain.Actor) error {
	followURI := env.objectURI()
	if followURI == "" {
		return fmt.Errorf("accept without object")
	}
	err, follow := e.store.ReadFollowByURI(followURI)
	if err != nil {
		log.Info().Msgf("Inbox: accept for unknown follow %s", followURI)
		return nil
	}
	if follow.TargetActorId != actor.Id {
		return fmt.Errorf("%s is not the target of follow %s", actor.URI, followURI)
	}
	return e.store.AcceptFollowByURI(followURI)
}

// applyUndo reverts an earlier activity of the same actor. The undone URI
// must live on the actor's own host, which also covers ownership for like
// and boost edges.
func (e *Engine) applyUndo(env *Envelope, actor *domain.Actor) error {
	undoneURI := env.objectURI()
	if undoneURI == "" {
		return fmt.Errorf("undo without object")
	}
	if !sameHost(actor.URI, undoneURI) {
		return fmt.Errorf("%s cannot undo %s", actor.URI, undoneURI)
	}
	switch env.objectType() {
	case "Follow":
		return e.undoFollow(undoneURI)
	case "Like":
		return e.undoLike(undoneURI, actor)
	case "Announce":
		return e.undoBoost(undoneURI, actor)
	}
	// Bare URI with no embedded type; an activity URI lives in at most
	// one edge table, so trying each in turn is safe.
	if err, _ := e.store.ReadFollowByURI(undoneURI); err == nil {
		return e.undoFollow(undoneURI)
	}
	if err := e.undoLike(undoneURI, actor); err != nil {
		return err
	}
	return e.undoBoost(undoneURI, actor)
}

func (e *Engine) undoFollow(uri string) error {
	err, follow := e.store.ReadFollowByURI(uri)
	if err != nil {
		return nil
	}
	if err := e.store.DeleteFollowNotification(follow.ActorId, follow.TargetActorId); err != nil {
		return err
	}
	return e.store.DeleteFollowByURI(uri)
}

func (e *Engine) undoLike(uri string, actor *domain.Actor) error {
	err, postId := e.store.DeleteLikeByURI(uri)
	if err != nil {
		return err
	}
	if postId == nil {
		return nil
	}
	return e.store.DeleteNotificationForPost(domain.NotificationLike, actor.Id, *postId)
}

func (e *Engine) undoBoost(uri string, actor *domain.Actor) error {
	err, postId := e.store.DeleteBoostByURI(uri)
	if err != nil {
		return err
	}
	if postId == nil {
		return nil
	}
	return e.store.DeleteNotificationForPost(domain.NotificationBoost, actor.Id, *postId)
}

// applyLike records a like edge for a known post. Likes of posts this
// instance has never seen are acknowledged and dropped.
func (e *Engine) applyLike(env *Envelope, actor *domain.Actor) error {
	uri := env.objectURI()
	err, post := e.store.ReadPostByURI(uri)
	if err != nil {
		log.Info().Msgf("Inbox: like for unknown post %s", uri)
		return nil
	}
	err, inserted := e.store.CreateLike(&domain.Like{
		Id:        uuid.New(),
		ActorId:   actor.Id,
		PostId:    post.Id,
		URI:       env.ID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	return e.notifyPostAction(domain.NotificationLike, actor, post)
}

// applyAnnounce records a boost edge for a known post, mirroring applyLike.
func (e *Engine) applyAnnounce(env *Envelope, actor *domain.Actor) error {
	uri := env.objectURI()
	err, post := e.store.ReadPostByURI(uri)
	if err != nil {
		log.Info().Msgf("Inbox: announce for unknown post %s", uri)
		return nil
	}
	err, inserted := e.store.CreateBoost(&domain.Boost{
		Id:        uuid.New(),
		ActorId:   actor.Id,
		PostId:    post.Id,
		URI:       env.ID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return err
	}
	if !inserted {
		return nil
	}
	return e.notifyPostAction(domain.NotificationBoost, actor, post)
}

// notifyPostAction tells a local post author about a like or boost.
// Remote authors and self-actions get nothing.
func (e *Engine) notifyPostAction(kind string, actor *domain.Actor, post *domain.Post) error {
	if post.ActorId == actor.Id || !e.IsLocalURI(post.URI) {
		return nil
	}
	return e.store.CreateNotification(&domain.Notification{
		Id:               uuid.New(),
		Kind:             kind,
		ActorId:          actor.Id,
		RecipientActorId: post.ActorId,
		PostId:           &post.Id,
		CreatedAt:        time.Now(),
	})
}

// applyCreate stores a delivered note. The embedded object must belong to
// the signing actor and live on the actor's own host.
func (e *Engine) applyCreate(env *Envelope, actor *domain.Actor) error {
	if len(env.Object) == 0 {
		return fmt.Errorf("create without object")
	}
	var note Note
	if err := json.Unmarshal(env.Object, &note); err != nil {
		return fmt.Errorf("create with unreadable object: %w", err)
	}
	if note.Type != "Note" && note.Type != "Article" {
		log.Info().Msgf("Inbox: create of unsupported type %q from %s", note.Type, actor.URI)
		return nil
	}
	if string(note.AttributedTo) != actor.URI {
		return fmt.Errorf("note by %s delivered by %s", note.AttributedTo, actor.URI)
	}
	if env.ID != "" && !sameHost(env.ID, actor.URI) {
		return fmt.Errorf("activity %s does not match the actor host", env.ID)
	}
	if note.ID == "" || !sameHost(note.ID, actor.URI) {
		return fmt.Errorf("note id %q does not match the actor host", note.ID)
	}

	post, created, err := e.storeRemoteNote(&note, true)
	if err != nil {
		return err
	}
	if created {
		e.notifyMentions(post)
	}
	return nil
}

// notifyMentions fans mention notifications out to the local actors a new
// post names. Unresolvable mentions and self-mentions are skipped.
func (e *Engine) notifyMentions(post *domain.Post) {
	for _, mention := range post.Mentions {
		if !e.IsLocalURI(mention) {
			continue
		}
		err, mentioned := e.store.ReadActorByURI(mention)
		if err != nil || mentioned.Id == post.ActorId {
			continue
		}
		n := &domain.Notification{
			Id:               uuid.New(),
			Kind:             domain.NotificationMention,
			ActorId:          post.ActorId,
			RecipientActorId: mentioned.Id,
			PostId:           &post.Id,
			CreatedAt:        time.Now(),
		}
		if err := e.store.CreateNotification(n); err != nil {
			log.Warn().Err(err).Msgf("Inbox: could not notify %s", mention)
		}
	}
}

// applyDelete removes the actor's own post tree, or the whole actor when
// the deleted object is the actor itself.
func (e *Engine) applyDelete(env *Envelope, actor *domain.Actor) error {
	uri := env.objectURI()
	if uri == "" {
		return fmt.Errorf("delete without object")
	}
	if uri == actor.URI {
		log.Info().Msgf("Inbox: actor %s deleted itself", actor.URI)
		return e.store.DeleteActorCascade(actor.Id)
	}
	err, post := e.store.ReadPostByURI(uri)
	if err != nil {
		return nil
	}
	if post.ActorId != actor.Id {
		return fmt.Errorf("%s may not delete %s", actor.URI, uri)
	}
	err, _ = e.store.DeletePostCascade(post.Id)
	return err
}
