package stocktaking

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// State is the acceptance state of a counted item. It is derived from the
// item record, never stored.
type State string

const (
	StatePending  State = "pending"
	StateCounted  State = "counted"
	StateAccepted State = "accepted"
)

// Policy decides what accepting does when the count would starve reservations.
type Policy string

const (
	// PolicyRequireClear refuses the transition while a conflict exists.
	PolicyRequireClear Policy = "require_clear"
	// PolicyForce accepts despite the conflict and still reports it.
	PolicyForce Policy = "force"
	// PolicyCancelReservations cancels the conflicting reservations first.
	PolicyCancelReservations Policy = "cancel_reservations"
)

// ParsePolicy maps the wire value; an empty string means PolicyRequireClear.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyRequireClear:
		return PolicyRequireClear, nil
	case PolicyForce, PolicyCancelReservations:
		return Policy(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// Status is the lifecycle of a stocktaking session.
type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

// Stocktaking groups the items counted in one session.
type Stocktaking struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CompletedBy int64      `json:"completedBy,omitempty"`
}

// Item is one counted line. BatchID is empty for items that are not lot
// tracked; such items never conflict with reservations.
type Item struct {
	ID              string              `json:"id"`
	StocktakingID   string              `json:"stocktakingId"`
	ProductName     string              `json:"productName"`
	BatchID         string              `json:"batchId,omitempty"`
	SystemQuantity  decimal.Decimal     `json:"systemQuantity"`
	CountedQuantity decimal.NullDecimal `json:"countedQuantity"`
	UnitPrice       decimal.NullDecimal `json:"unitPrice"`
	Accepted        bool                `json:"accepted"`
}

// Reservation commits part of a batch to a task or an order.
type Reservation struct {
	ID             string          `json:"id"`
	BatchID        string          `json:"batchId"`
	Quantity       decimal.Decimal `json:"quantity"`
	TaskOrOrderRef string          `json:"taskOrOrderRef,omitempty"`
	DisplayName    string          `json:"displayName,omitempty"`
}

// Discrepancy is counted minus system quantity and its valuation. Value is
// invalid when the item has no unit price.
type Discrepancy struct {
	Quantity decimal.Decimal     `json:"quantity"`
	Value    decimal.NullDecimal `json:"value"`
}

// ReconciliationResult describes a batch whose reservations exceed the
// quantity that would remain after applying a count.
type ReconciliationResult struct {
	ItemID          string              `json:"itemId"`
	ProductName     string              `json:"productName,omitempty"`
	BatchID         string              `json:"batchId"`
	CurrentQuantity decimal.Decimal     `json:"currentQuantity"`
	NewQuantity     decimal.Decimal     `json:"newQuantity"`
	TotalReserved   decimal.Decimal     `json:"totalReserved"`
	Shortage        decimal.Decimal     `json:"shortage"`
	Discrepancy     decimal.Decimal     `json:"discrepancy"`
	DifferenceValue decimal.NullDecimal `json:"differenceValue"`
	Reservations    []Reservation       `json:"reservations"`
}

// AcceptOutcome reports the result of an accept attempt. Conflict is set
// whenever the count starves reservations, whatever the policy did about it.
type AcceptOutcome struct {
	ItemID    string                `json:"itemId"`
	State     State                 `json:"state"`
	Accepted  bool                  `json:"accepted"`
	Forced    bool                  `json:"forced,omitempty"`
	Conflict  *ReconciliationResult `json:"conflict,omitempty"`
	Cancelled []Reservation         `json:"cancelled,omitempty"`
}

// Summary aggregates a stocktaking session.
type Summary struct {
	StocktakingID string          `json:"stocktakingId"`
	Status        Status          `json:"status"`
	Items         int             `json:"items"`
	Pending       int             `json:"pending"`
	Counted       int             `json:"counted"`
	Accepted      int             `json:"accepted"`
	QuantityDelta decimal.Decimal `json:"quantityDelta"`
	ValueDelta    decimal.Decimal `json:"valueDelta"`
	Unpriced      int             `json:"unpriced"`
}

var (
	ErrItemAccepted         = errors.New("stocktaking: item already accepted")
	ErrNotCounted           = errors.New("stocktaking: item has not been counted")
	ErrNotAccepted          = errors.New("stocktaking: item is not accepted")
	ErrInvalidQuantity      = errors.New("stocktaking: counted quantity must not be negative")
	ErrInvalidPolicy        = errors.New("stocktaking: unknown accept policy")
	ErrItemNotFound         = errors.New("stocktaking: item not found")
	ErrStocktakingNotFound  = errors.New("stocktaking: stocktaking not found")
	ErrStocktakingCompleted = errors.New("stocktaking: stocktaking already completed")
	ErrItemsNotAccepted     = errors.New("stocktaking: not every counted item is accepted")
	ErrInvalidSheet         = errors.New("stocktaking: invalid count sheet")
)

// ConflictError blocks completion while reservations would be starved.
type ConflictError struct {
	Results []ReconciliationResult
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("stocktaking: %d batch(es) would not cover their reservations", len(e.Results))
}
