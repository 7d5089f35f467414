package stocktaking

import "github.com/shopspring/decimal"

// State derives the acceptance state from the record.
func (it *Item) State() State {
	switch {
	case !it.CountedQuantity.Valid:
		return StatePending
	case it.Accepted:
		return StateAccepted
	default:
		return StateCounted
	}
}

// RecordCount stores a counted quantity. Accepted items must be unaccepted
// before they can be recounted.
func (it *Item) RecordCount(q decimal.Decimal) error {
	if it.Accepted {
		return ErrItemAccepted
	}
	if q.IsNegative() {
		return ErrInvalidQuantity
	}
	it.CountedQuantity = decimal.NewNullDecimal(q)
	return nil
}

// Accept moves a counted item to accepted. A reservation conflict blocks the
// transition under PolicyRequireClear; PolicyForce accepts anyway. Either way
// the conflict is reported in the outcome, not as an error.
// PolicyCancelReservations behaves like PolicyRequireClear here: cancelling is
// the caller's job, after which it retries with fresh reservations.
func (it *Item) Accept(reservations []Reservation, policy Policy) (AcceptOutcome, error) {
	out := AcceptOutcome{ItemID: it.ID, State: it.State()}
	switch out.State {
	case StatePending:
		return out, ErrNotCounted
	case StateAccepted:
		out.Accepted = true
		return out, nil
	}
	out.Conflict = CheckReservationImpact(*it, it.CountedQuantity.Decimal, reservations)
	if out.Conflict != nil && policy != PolicyForce {
		return out, nil
	}
	it.Accepted = true
	out.State = StateAccepted
	out.Accepted = true
	out.Forced = out.Conflict != nil
	return out, nil
}

// Unaccept returns an accepted item to counted.
func (it *Item) Unaccept() error {
	if it.State() != StateAccepted {
		return ErrNotAccepted
	}
	it.Accepted = false
	return nil
}
