package outage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/model"
)

// recipients returns the creator and the application's key users, minus the actor.
func recipients(o *model.Outage, app *model.Application, actor model.Actor) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	add := func(id uuid.UUID) {
		if id == uuid.Nil || (!actor.System && id == actor.UserID) {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(o.CreatedBy)
	if app != nil {
		for _, id := range app.KeyUserIDs {
			add(id)
		}
	}
	return out
}

// emit hands a committed change to the sink. Delivery outlives the request.
func (s *Service) emit(ctx context.Context, t model.NotificationType, o *model.Outage, app *model.Application, actor model.Actor, msg string) {
	if s.sink == nil {
		return
	}
	snapshot := *o
	ev := model.NewOutageEvent(t, &snapshot, actor)
	ev.Message = msg
	ev.Recipients = recipients(o, app, actor)
	s.sink.Publish(context.WithoutCancel(ctx), ev)
}

func (s *Service) emitConflict(ctx context.Context, o *model.Outage, app *model.Application, actor model.Actor, res *ConflictResult) {
	msg := fmt.Sprintf("%d conflicting outage(s), highest severity %s", len(res.Conflicts), res.HighestSeverity())
	if s.sink == nil {
		return
	}
	snapshot := *o
	ev := model.NewOutageEvent(model.NotificationConflictDetected, &snapshot, actor)
	ev.Message = msg
	ev.Conflicts = len(res.Conflicts)
	ev.Recipients = recipients(o, app, model.SystemActor())
	s.sink.Publish(context.WithoutCancel(ctx), ev)
}
