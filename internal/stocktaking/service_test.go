package stocktaking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/mrp/internal/platform/cache"
	"github.com/odyssey-erp/mrp/internal/shared"
)

type memoryRepo struct {
	stocktakings map[string]Stocktaking
	items        []Item
	batches      map[string]decimal.Decimal
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(st Stocktaking, items ...Item) *memoryRepo {
	repo := &memoryRepo{
		stocktakings: map[string]Stocktaking{st.ID: st},
		batches:      make(map[string]decimal.Decimal),
	}
	for _, item := range items {
		item.StocktakingID = st.ID
		repo.items = append(repo.items, item)
		if item.BatchID != "" {
			repo.batches[item.BatchID] = item.SystemQuantity
		}
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetStocktaking(ctx context.Context, id string) (Stocktaking, error) {
	st, ok := r.stocktakings[id]
	if !ok {
		return Stocktaking{}, ErrStocktakingNotFound
	}
	return st, nil
}

func (r *memoryRepo) GetItem(ctx context.Context, id string) (Item, error) {
	for _, item := range r.items {
		if item.ID == id {
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}

func (r *memoryRepo) ListItems(ctx context.Context, stocktakingID string) ([]Item, error) {
	var out []Item
	for _, item := range r.items {
		if item.StocktakingID == stocktakingID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memoryRepo) item(id string) Item {
	item, _ := r.GetItem(context.Background(), id)
	return item
}

func (tx *memoryTx) GetStocktakingForUpdate(ctx context.Context, id string) (Stocktaking, error) {
	return tx.repo.GetStocktaking(ctx, id)
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, id string) (Item, error) {
	return tx.repo.GetItem(ctx, id)
}

func (tx *memoryTx) ListItems(ctx context.Context, stocktakingID string) ([]Item, error) {
	return tx.repo.ListItems(ctx, stocktakingID)
}

func (tx *memoryTx) UpdateItem(ctx context.Context, item Item) error {
	for i := range tx.repo.items {
		if tx.repo.items[i].ID == item.ID {
			tx.repo.items[i] = item
			return nil
		}
	}
	return ErrItemNotFound
}

func (tx *memoryTx) ApplyCount(ctx context.Context, item Item) error {
	if item.BatchID != "" {
		tx.repo.batches[item.BatchID] = item.CountedQuantity.Decimal
	}
	item.SystemQuantity = item.CountedQuantity.Decimal
	return tx.UpdateItem(ctx, item)
}

func (tx *memoryTx) MarkCompleted(ctx context.Context, id string, at time.Time, actorID int64) error {
	st := tx.repo.stocktakings[id]
	st.Status = StatusCompleted
	st.CompletedAt = &at
	st.CompletedBy = actorID
	tx.repo.stocktakings[id] = st
	return nil
}

type fakeReservations struct {
	active    map[string][]Reservation
	cancelled []string
	reads     int
}

func (f *fakeReservations) ListActiveByBatch(ctx context.Context, batchID string) ([]Reservation, error) {
	f.reads++
	return append([]Reservation(nil), f.active[batchID]...), nil
}

func (f *fakeReservations) Cancel(ctx context.Context, ids []string, reason string) error {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	for batch, list := range f.active {
		kept := list[:0]
		for _, r := range list {
			if drop[r.ID] {
				f.cancelled = append(f.cancelled, r.ID)
				continue
			}
			kept = append(kept, r)
		}
		f.active[batch] = kept
	}
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type memoryAudit struct {
	logs []shared.AuditLog
}

func (m *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

type recordingObserver struct {
	accepts   []string
	conflicts []int
}

func (o *recordingObserver) ObserveAccept(outcome string) { o.accepts = append(o.accepts, outcome) }
func (o *recordingObserver) ObserveConflicts(n int)       { o.conflicts = append(o.conflicts, n) }

var fixedNow = time.Date(2025, 6, 30, 17, 0, 0, 0, time.UTC)

type fixture struct {
	repo         *memoryRepo
	reservations *fakeReservations
	idem         *memoryIdempotency
	audit        *memoryAudit
	observer     *recordingObserver
	svc          *Service
}

func newFixture(items ...Item) *fixture {
	f := &fixture{
		repo:         newMemoryRepo(Stocktaking{ID: "ST-1", Name: "June", Status: StatusOpen}, items...),
		reservations: &fakeReservations{active: make(map[string][]Reservation)},
		idem:         &memoryIdempotency{},
		audit:        &memoryAudit{},
		observer:     &recordingObserver{},
	}
	f.svc = NewService(f.repo, f.reservations, ServiceConfig{
		Audit:       f.audit,
		Idempotency: f.idem,
		Cache:       cache.New(cache.Options{Name: "reservations", TTL: time.Hour}),
		Observer:    f.observer,
		Clock:       func() time.Time { return fixedNow },
	})
	return f
}

func TestServiceCountAndAccept(t *testing.T) {
	f := newFixture(Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("20")})
	ctx := context.Background()

	item, err := f.svc.RecordCount(ctx, RecordCountInput{ItemID: "IT-1", Quantity: dec("18"), ActorID: 7})
	require.NoError(t, err)
	require.Equal(t, StateCounted, item.State())

	out, err := f.svc.AcceptItem(ctx, AcceptInput{ItemID: "IT-1", ActorID: 7})
	require.NoError(t, err)
	require.True(t, out.Accepted)
	require.True(t, f.repo.item("IT-1").Accepted)
	require.Equal(t, []string{"accepted"}, f.observer.accepts)
	require.Len(t, f.audit.logs, 2)
	require.Equal(t, "stocktaking:accept", f.audit.logs[1].Action)

	_, err = f.svc.RecordCount(ctx, RecordCountInput{ItemID: "IT-1", Quantity: dec("1")})
	require.ErrorIs(t, err, ErrItemAccepted)

	unaccepted, err := f.svc.UnacceptItem(ctx, "IT-1", 7)
	require.NoError(t, err)
	require.Equal(t, StateCounted, unaccepted.State())

	_, err = f.svc.UnacceptItem(ctx, "IT-1", 7)
	require.ErrorIs(t, err, ErrNotAccepted)
}

func TestServiceAcceptConflictRequiresPolicy(t *testing.T) {
	f := newFixture(Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("60"), CountedQuantity: ndec("30")})
	f.reservations.active["LOT-1"] = []Reservation{{ID: "R-1", BatchID: "LOT-1", Quantity: dec("50"), DisplayName: "Order 17"}}
	ctx := context.Background()

	out, err := f.svc.AcceptItem(ctx, AcceptInput{ItemID: "IT-1", Policy: PolicyRequireClear})
	require.NoError(t, err)
	require.False(t, out.Accepted)
	require.NotNil(t, out.Conflict)
	requireDecimal(t, "20", out.Conflict.Shortage)
	require.False(t, f.repo.item("IT-1").Accepted)

	out, err = f.svc.AcceptItem(ctx, AcceptInput{ItemID: "IT-1", Policy: PolicyForce})
	require.NoError(t, err)
	require.True(t, out.Accepted)
	require.True(t, out.Forced)
	require.Equal(t, []string{"conflict", "forced"}, f.observer.accepts)
	require.Equal(t, 1, f.reservations.reads)
}

func TestServiceAcceptCancelsReservationsAndRereads(t *testing.T) {
	f := newFixture(Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("60"), CountedQuantity: ndec("30")})
	f.reservations.active["LOT-1"] = []Reservation{
		{ID: "R-1", BatchID: "LOT-1", Quantity: dec("25")},
		{ID: "R-2", BatchID: "LOT-1", Quantity: dec("25")},
	}
	ctx := context.Background()

	out, err := f.svc.AcceptItem(ctx, AcceptInput{ItemID: "IT-1"})
	require.NoError(t, err)
	require.False(t, out.Accepted)

	out, err = f.svc.AcceptItem(ctx, AcceptInput{ItemID: "IT-1", Policy: PolicyCancelReservations})
	require.NoError(t, err)
	require.True(t, out.Accepted)
	require.False(t, out.Forced)
	require.Nil(t, out.Conflict)
	require.Len(t, out.Cancelled, 2)
	require.ElementsMatch(t, []string{"R-1", "R-2"}, f.reservations.cancelled)
	require.Equal(t, 2, f.reservations.reads)
	require.Equal(t, "cancelled_reservations", f.observer.accepts[1])
}

func TestServiceAcceptOnCompletedStocktakingKeepsReservations(t *testing.T) {
	f := newFixture(Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("60"), CountedQuantity: ndec("30")})
	f.reservations.active["LOT-1"] = []Reservation{{ID: "R-1", BatchID: "LOT-1", Quantity: dec("50")}}
	f.repo.stocktakings["ST-1"] = Stocktaking{ID: "ST-1", Name: "June", Status: StatusCompleted}

	_, err := f.svc.AcceptItem(context.Background(), AcceptInput{ItemID: "IT-1", Policy: PolicyCancelReservations})
	require.ErrorIs(t, err, ErrStocktakingCompleted)
	require.Empty(t, f.reservations.cancelled)
	require.Len(t, f.reservations.active["LOT-1"], 1)
	require.False(t, f.repo.item("IT-1").Accepted)
	require.Empty(t, f.audit.logs)
}

func TestServiceAcceptCancelUsesLockedCount(t *testing.T) {
	f := newFixture(Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("60"), CountedQuantity: ndec("30")})
	f.reservations.active["LOT-1"] = []Reservation{{ID: "R-1", BatchID: "LOT-1", Quantity: dec("50")}}
	ctx := context.Background()

	_, err := f.svc.RecordCount(ctx, RecordCountInput{ItemID: "IT-1", Quantity: dec("55")})
	require.NoError(t, err)

	out, err := f.svc.AcceptItem(ctx, AcceptInput{ItemID: "IT-1", Policy: PolicyCancelReservations})
	require.NoError(t, err)
	require.True(t, out.Accepted)
	require.Empty(t, out.Cancelled)
	require.Empty(t, f.reservations.cancelled)
}

func TestServiceAcceptPendingItem(t *testing.T) {
	f := newFixture(Item{ID: "IT-1", SystemQuantity: dec("5")})
	_, err := f.svc.AcceptItem(context.Background(), AcceptInput{ItemID: "IT-1"})
	require.ErrorIs(t, err, ErrNotCounted)

	_, err = f.svc.AcceptItem(context.Background(), AcceptInput{ItemID: "missing"})
	require.ErrorIs(t, err, ErrItemNotFound)

	_, err = f.svc.AcceptItem(context.Background(), AcceptInput{ItemID: "IT-1", Policy: "sometimes"})
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestServiceCompleteRequiresAcceptedItems(t *testing.T) {
	f := newFixture(
		Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("10"), CountedQuantity: ndec("8"), Accepted: true},
		Item{ID: "IT-2", BatchID: "LOT-2", SystemQuantity: dec("5")},
	)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, CompleteInput{StocktakingID: "ST-1", IdempotencyKey: "k1"})
	require.ErrorIs(t, err, ErrItemsNotAccepted)
	require.Empty(t, f.idem.keys)

	res, err := f.svc.Complete(ctx, CompleteInput{StocktakingID: "ST-1", Override: true, IdempotencyKey: "k1", ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, 1, res.Applied)
	require.Equal(t, 1, res.Skipped)
	require.True(t, res.Overridden)
	require.Equal(t, fixedNow, res.CompletedAt)
	requireDecimal(t, "8", f.repo.batches["LOT-1"])
	requireDecimal(t, "5", f.repo.batches["LOT-2"])

	st, err := f.repo.GetStocktaking(ctx, "ST-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, st.Status)
	require.Equal(t, int64(3), st.CompletedBy)

	_, err = f.svc.Complete(ctx, CompleteInput{StocktakingID: "ST-1", Override: true, IdempotencyKey: "k1"})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)

	_, err = f.svc.Complete(ctx, CompleteInput{StocktakingID: "ST-1", Override: true})
	require.ErrorIs(t, err, ErrStocktakingCompleted)

	_, err = f.svc.RecordCount(ctx, RecordCountInput{ItemID: "IT-2", Quantity: dec("5")})
	require.ErrorIs(t, err, ErrStocktakingCompleted)
}

func TestServiceCompleteBlocksOnConflicts(t *testing.T) {
	f := newFixture(Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("60"), CountedQuantity: ndec("30"), Accepted: true})
	f.reservations.active["LOT-1"] = []Reservation{{ID: "R-1", BatchID: "LOT-1", Quantity: dec("50")}}
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, CompleteInput{StocktakingID: "ST-1"})
	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	require.Len(t, conflict.Results, 1)
	requireDecimal(t, "20", conflict.Results[0].Shortage)
	require.Equal(t, []int{1}, f.observer.conflicts)
	requireDecimal(t, "60", f.repo.batches["LOT-1"])

	res, err := f.svc.Complete(ctx, CompleteInput{StocktakingID: "ST-1", Override: true})
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	require.True(t, res.Overridden)
	requireDecimal(t, "30", f.repo.batches["LOT-1"])
}

func TestServicePreflightAndSummary(t *testing.T) {
	f := newFixture(
		Item{ID: "IT-1", BatchID: "LOT-1", SystemQuantity: dec("10"), CountedQuantity: ndec("4"), UnitPrice: ndec("2.5")},
		Item{ID: "IT-2", BatchID: "LOT-2", SystemQuantity: dec("10"), CountedQuantity: ndec("12"), Accepted: true},
		Item{ID: "IT-3", SystemQuantity: dec("3")},
	)
	f.reservations.active["LOT-1"] = []Reservation{{ID: "R-1", BatchID: "LOT-1", Quantity: dec("6")}}
	ctx := context.Background()

	conflicts, err := f.svc.Preflight(ctx, "ST-1")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, "IT-1", conflicts[0].ItemID)

	summary, err := f.svc.Summary(ctx, "ST-1")
	require.NoError(t, err)
	require.Equal(t, 3, summary.Items)
	require.Equal(t, 1, summary.Pending)
	require.Equal(t, 1, summary.Counted)
	require.Equal(t, 1, summary.Accepted)
	requireDecimal(t, "-4", summary.QuantityDelta)
	requireDecimal(t, "-15", summary.ValueDelta)
	require.Equal(t, 1, summary.Unpriced)

	_, err = f.svc.Summary(ctx, "ST-404")
	require.ErrorIs(t, err, ErrStocktakingNotFound)

	_, err = f.svc.Preflight(ctx, "ST-404")
	require.ErrorIs(t, err, ErrStocktakingNotFound)

	views, err := f.svc.Items(ctx, "ST-1")
	require.NoError(t, err)
	require.Len(t, views, 3)
	require.Equal(t, StateCounted, views[0].State)
	require.NotNil(t, views[0].Discrepancy)
	require.Nil(t, views[2].Discrepancy)
}
