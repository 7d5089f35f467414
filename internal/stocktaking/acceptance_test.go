package stocktaking

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestItemStateTransitions(t *testing.T) {
	item := &Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("40")}
	require.Equal(t, StatePending, item.State())

	_, err := item.Accept(nil, PolicyForce)
	require.ErrorIs(t, err, ErrNotCounted)
	require.ErrorIs(t, item.Unaccept(), ErrNotAccepted)

	require.NoError(t, item.RecordCount(dec("35")))
	require.Equal(t, StateCounted, item.State())
	require.NoError(t, item.RecordCount(dec("36")))
	requireDecimal(t, "36", item.CountedQuantity.Decimal)

	out, err := item.Accept(nil, PolicyRequireClear)
	require.NoError(t, err)
	require.True(t, out.Accepted)
	require.False(t, out.Forced)
	require.Nil(t, out.Conflict)
	require.Equal(t, StateAccepted, item.State())

	require.ErrorIs(t, item.RecordCount(dec("1")), ErrItemAccepted)

	out, err = item.Accept(nil, PolicyRequireClear)
	require.NoError(t, err)
	require.True(t, out.Accepted)

	require.NoError(t, item.Unaccept())
	require.Equal(t, StateCounted, item.State())
}

func TestAcceptRefusesConflictUnlessForced(t *testing.T) {
	reservations := []Reservation{{ID: "R-1", BatchID: "LOT-1", Quantity: dec("50")}}
	item := &Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("60"), CountedQuantity: ndec("30")}

	out, err := item.Accept(reservations, PolicyRequireClear)
	require.NoError(t, err)
	require.False(t, out.Accepted)
	require.Equal(t, StateCounted, out.State)
	require.NotNil(t, out.Conflict)
	requireDecimal(t, "20", out.Conflict.Shortage)
	require.Equal(t, StateCounted, item.State())

	out, err = item.Accept(reservations, PolicyCancelReservations)
	require.NoError(t, err)
	require.False(t, out.Accepted)

	out, err = item.Accept(reservations, PolicyForce)
	require.NoError(t, err)
	require.True(t, out.Accepted)
	require.True(t, out.Forced)
	require.NotNil(t, out.Conflict)
	require.Equal(t, StateAccepted, item.State())
}

func TestRecordCountRejectsNegative(t *testing.T) {
	item := &Item{ID: "IT-1"}
	require.ErrorIs(t, item.RecordCount(dec("-1")), ErrInvalidQuantity)
	require.Equal(t, StatePending, item.State())
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	require.Equal(t, PolicyRequireClear, p)

	p, err = ParsePolicy("cancel_reservations")
	require.NoError(t, err)
	require.Equal(t, PolicyCancelReservations, p)

	_, err = ParsePolicy("yolo")
	require.ErrorIs(t, err, ErrInvalidPolicy)
}
