package order

import (
	"storecore/internal/apperror"
)

type precondition int

const (
	anyMethod precondition = iota
	prepaidOnly
	codOnly
)

type rule struct {
	actors   []Role
	requires precondition
}

func (r rule) allows(role Role) bool {
	for _, a := range r.actors {
		if a == role {
			return true
		}
	}
	return false
}

var (
	system         = []Role{RoleSystem}
	adminOnly      = []Role{RoleAdmin}
	adminSystem    = []Role{RoleAdmin, RoleSystem}
	customerSystem = []Role{RoleCustomer, RoleSystem}
	anyActor       = []Role{RoleAdmin, RoleCustomer, RoleSystem}
)

// transitions is the complete lifecycle. A (from, to) pair missing here is
// not reachable by anyone.
var transitions = map[Status]map[Status]rule{
	StatusPending: {
		StatusPaid:           {system, prepaidOnly},
		StatusShipped:        {adminOnly, codOnly},
		StatusCancelled:      {anyActor, anyMethod},
		StatusPaymentPending: {customerSystem, prepaidOnly},
	},
	StatusPaymentPending: {
		StatusPaid:          {system, prepaidOnly},
		StatusPaymentFailed: {system, prepaidOnly},
		StatusCancelled:     {anyActor, anyMethod},
	},
	StatusPaymentFailed: {
		StatusPaymentPending: {customerSystem, prepaidOnly},
		StatusCancelled:      {anyActor, anyMethod},
	},
	StatusPaid: {
		StatusShipped:   {adminSystem, anyMethod},
		StatusCancelled: {adminSystem, anyMethod},
	},
	StatusShipped: {
		StatusDelivered:    {adminSystem, prepaidOnly},
		StatusCancelled:    {adminOnly, anyMethod},
		StatusCashReceived: {adminSystem, codOnly},
	},
}

// CanTransition reports whether to is reachable from from by some actor.
func CanTransition(from, to Status) bool {
	_, ok := transitions[from][to]
	return ok
}

// AllowedActors lists the roles that may move an order from from to to.
func AllowedActors(from, to Status) []Role {
	r, ok := transitions[from][to]
	if !ok {
		return nil
	}
	return append([]Role(nil), r.actors...)
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s Status) []Status {
	var out []Status
	for _, to := range AllStatuses {
		if CanTransition(s, to) {
			out = append(out, to)
		}
	}
	return out
}

// checkTransition validates the move of o to target by actor. It does not
// handle the same-status case; callers treat that as a no-op first.
func checkTransition(o *Order, target Status, actor Actor) error {
	if !target.Valid() {
		return apperror.Validation(ErrInvalidOrder.Code, "unknown status %q", target)
	}
	r, ok := transitions[o.Status][target]
	if !ok {
		return apperror.Order(ErrInvalidTransition.Code, "cannot move order from %s to %s", o.Status, target)
	}
	if !r.allows(actor.Role) {
		return apperror.Permission(ErrActorNotAllowed.Code, "%s may not move order from %s to %s", actor.Role, o.Status, target)
	}
	switch r.requires {
	case prepaidOnly:
		if !o.Prepaid() {
			return apperror.Order(ErrPrecondition.Code, "%s to %s requires a prepaid order", o.Status, target)
		}
	case codOnly:
		if o.PaymentMethod != PaymentCOD {
			return apperror.Order(ErrPrecondition.Code, "%s to %s requires a cash on delivery order", o.Status, target)
		}
	}
	return nil
}
