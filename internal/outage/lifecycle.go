// Package outage implements the outage lifecycle: the status state machine,
// approval guards, conflict detection and the service that applies them
// transactionally.
package outage

import (
	"time"

	"github.com/google/uuid"

	"github.com/ioms/backend/internal/model"
)

// Event is a lifecycle event applied to an outage.
type Event string

const (
	EventApprove  Event = "approve"
	EventReject   Event = "reject"
	EventCancel   Event = "cancel"
	EventStart    Event = "start"
	EventComplete Event = "complete"
	EventEdit     Event = "edit"
	// EventReschedule is an edit of the window or placement. It sends an
	// approved outage back to pending.
	EventReschedule Event = "reschedule"
)

// transitions is the complete state machine. Statuses missing from the map are terminal.
var transitions = map[model.OutageStatus]map[Event]model.OutageStatus{
	model.OutageStatusPending: {
		EventApprove:    model.OutageStatusApproved,
		EventReject:     model.OutageStatusRejected,
		EventCancel:     model.OutageStatusCancelled,
		EventEdit:       model.OutageStatusPending,
		EventReschedule: model.OutageStatusPending,
	},
	model.OutageStatusApproved: {
		EventCancel:     model.OutageStatusCancelled,
		EventStart:      model.OutageStatusInProgress,
		EventEdit:       model.OutageStatusApproved,
		EventReschedule: model.OutageStatusPending,
	},
	model.OutageStatusInProgress: {
		EventComplete: model.OutageStatusCompleted,
	},
}

// NextStatus returns the status reached by applying ev in status from.
func NextStatus(from model.OutageStatus, ev Event) (model.OutageStatus, error) {
	if to, ok := transitions[from][ev]; ok {
		return to, nil
	}
	return "", &TransitionError{From: from, Event: ev}
}

// IsTerminal reports whether no event leads out of status s.
func IsTerminal(s model.OutageStatus) bool {
	return len(transitions[s]) == 0
}

// ValidateWindow checks the scheduling bounds of an outage.
func ValidateWindow(start, end time.Time) error {
	verr := &ValidationError{}
	if start.IsZero() {
		verr.add("scheduled_start", "is required")
	}
	if end.IsZero() {
		verr.add("scheduled_end", "is required")
	}
	if verr.empty() && !end.After(start) {
		verr.add("scheduled_end", "must be after scheduled_start")
	}
	if verr.empty() {
		return nil
	}
	return verr
}

// CheckRequester enforces who may request outages. Admins approve, they do not request.
func CheckRequester(actor model.Actor) error {
	if actor.System {
		return nil
	}
	switch actor.Role {
	case model.RoleDev, model.RoleKeyUser:
		return nil
	default:
		return ErrForbidden
	}
}

// CheckApprover enforces the approve/reject guard: the actor is a key user of
// the application or an admin, and never the creator. A creator who is the
// application's only key user gets ErrSoleApproverConflict.
func CheckApprover(actor model.Actor, o *model.Outage, app *model.Application) error {
	if actor.UserID == o.CreatedBy {
		if IsSoleApprover(app, o.CreatedBy) {
			return ErrSoleApproverConflict
		}
		return ErrForbidden
	}
	if actor.IsAdmin() || app.IsKeyUser(actor.UserID) {
		return nil
	}
	return ErrForbidden
}

// CheckCanceller allows the creator, key users of the application and admins.
func CheckCanceller(actor model.Actor, o *model.Outage, app *model.Application) error {
	if actor.System || actor.IsAdmin() || actor.UserID == o.CreatedBy || app.IsKeyUser(actor.UserID) {
		return nil
	}
	return ErrForbidden
}

// CheckEditor allows the creator and admins to edit an outage.
func CheckEditor(actor model.Actor, o *model.Outage) error {
	if actor.IsAdmin() || actor.UserID == o.CreatedBy {
		return nil
	}
	return ErrForbidden
}

// IsSoleApprover reports whether userID is the application's one and only key user.
func IsSoleApprover(app *model.Application, userID uuid.UUID) bool {
	return len(app.KeyUserIDs) == 1 && app.KeyUserIDs[0] == userID
}

// ApprovalCheck is the precheck exposed to clients before they submit an approval.
type ApprovalCheck struct {
	OutageID             uuid.UUID          `json:"outage_id"`
	Status               model.OutageStatus `json:"status"`
	CanApprove           bool               `json:"can_approve"`
	SoleApproverConflict bool               `json:"sole_approver_conflict"`
	Reason               string             `json:"reason,omitempty"`
}

// EvaluateApproval runs the approve guards without side effects.
func EvaluateApproval(actor model.Actor, o *model.Outage, app *model.Application) ApprovalCheck {
	res := ApprovalCheck{
		OutageID:             o.ID,
		Status:               o.Status,
		SoleApproverConflict: IsSoleApprover(app, o.CreatedBy),
	}
	if _, err := NextStatus(o.Status, EventApprove); err != nil {
		res.Reason = err.Error()
		return res
	}
	if err := CheckApprover(actor, o, app); err != nil {
		switch err {
		case ErrSoleApproverConflict:
			res.Reason = "you are the only key user of this application; another key user or an admin must approve"
		default:
			res.Reason = "you are not allowed to approve this outage"
		}
		return res
	}
	res.CanApprove = true
	return res
}
