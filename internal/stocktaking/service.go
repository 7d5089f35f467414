package stocktaking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/mrp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetStocktaking(ctx context.Context, id string) (Stocktaking, error)
	GetItem(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context, stocktakingID string) ([]Item, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetStocktakingForUpdate(ctx context.Context, id string) (Stocktaking, error)
	GetItemForUpdate(ctx context.Context, id string) (Item, error)
	ListItems(ctx context.Context, stocktakingID string) ([]Item, error)
	UpdateItem(ctx context.Context, item Item) error
	ApplyCount(ctx context.Context, item Item) error
	MarkCompleted(ctx context.Context, id string, at time.Time, actorID int64) error
}

// ReservationPort reads and cancels batch reservations.
type ReservationPort interface {
	ListActiveByBatch(ctx context.Context, batchID string) ([]Reservation, error)
	Cancel(ctx context.Context, ids []string, reason string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards completion against replays.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CachePort is the read-through cache used for reservation lookups.
type CachePort interface {
	Fetch(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, key string) error
}

// Observer receives reconciliation outcomes for metrics.
type Observer interface {
	ObserveAccept(outcome string)
	ObserveConflicts(n int)
}

// ServiceConfig groups optional collaborators.
type ServiceConfig struct {
	Audit       AuditPort
	Idempotency IdempotencyPort
	Cache       CachePort
	Observer    Observer
	Clock       func() time.Time
}

// Service coordinates stocktaking counts, acceptance and completion.
type Service struct {
	repo         RepositoryPort
	reservations ReservationPort
	audit        AuditPort
	idempotency  IdempotencyPort
	cache        CachePort
	observer     Observer
	clock        func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, reservations ReservationPort, cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:         repo,
		reservations: reservations,
		audit:        cfg.Audit,
		idempotency:  cfg.Idempotency,
		cache:        cfg.Cache,
		observer:     cfg.Observer,
		clock:        clock,
	}
}

const idempotencyModule = "stocktaking"

// RecordCountInput carries a physical count for one item.
type RecordCountInput struct {
	ItemID   string
	Quantity decimal.Decimal
	ActorID  int64
}

// RecordCount stores the counted quantity of an item.
func (s *Service) RecordCount(ctx context.Context, input RecordCountInput) (Item, error) {
	if input.ItemID == "" {
		return Item{}, errors.New("stocktaking: item id required")
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = s.lockOpenItem(ctx, tx, input.ItemID)
		if err != nil {
			return err
		}
		if err := item.RecordCount(input.Quantity); err != nil {
			return err
		}
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, input.ActorID, "stocktaking:count", item.ID, map[string]any{
		"stocktaking_id": item.StocktakingID,
		"counted":        input.Quantity.String(),
	})
	return item, nil
}

// AcceptInput selects the item and the conflict policy.
type AcceptInput struct {
	ItemID  string
	Policy  Policy
	ActorID int64
}

// AcceptItem tries to accept the count of an item. Under
// PolicyCancelReservations the conflicting reservations are cancelled and the
// batch is checked again against what remains. Nothing is cancelled unless
// the item is counted and its stocktaking still open.
func (s *Service) AcceptItem(ctx context.Context, input AcceptInput) (AcceptOutcome, error) {
	policy, err := ParsePolicy(string(input.Policy))
	if err != nil {
		return AcceptOutcome{}, err
	}

	var outcome AcceptOutcome
	var cancelled []Reservation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		item, err := s.lockOpenItem(ctx, tx, input.ItemID)
		if err != nil {
			return err
		}
		reservations, err := s.batchReservations(ctx, item.BatchID)
		if err != nil {
			return err
		}
		if policy == PolicyCancelReservations && item.State() == StateCounted {
			if conflict := CheckReservationImpact(item, item.CountedQuantity.Decimal, reservations); conflict != nil {
				if err := s.cancelReservations(ctx, conflict.Reservations, item); err != nil {
					return err
				}
				cancelled = conflict.Reservations
				if reservations, err = s.batchReservations(ctx, item.BatchID); err != nil {
					return err
				}
			}
		}
		wasAccepted := item.Accepted
		outcome, err = item.Accept(reservations, policy)
		if err != nil {
			return err
		}
		if item.Accepted && !wasAccepted {
			return tx.UpdateItem(ctx, item)
		}
		return nil
	})
	if err != nil {
		return AcceptOutcome{}, err
	}
	outcome.Cancelled = cancelled
	s.observeAccept(outcome)
	if outcome.Accepted {
		meta := map[string]any{"policy": string(policy), "forced": outcome.Forced}
		if len(cancelled) > 0 {
			meta["cancelled_reservations"] = reservationIDs(cancelled)
		}
		s.record(ctx, input.ActorID, "stocktaking:accept", input.ItemID, meta)
	}
	return outcome, nil
}

// UnacceptItem reopens an accepted item for recounting.
func (s *Service) UnacceptItem(ctx context.Context, itemID string, actorID int64) (Item, error) {
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = s.lockOpenItem(ctx, tx, itemID)
		if err != nil {
			return err
		}
		if err := item.Unaccept(); err != nil {
			return err
		}
		return tx.UpdateItem(ctx, item)
	})
	if err != nil {
		return Item{}, err
	}
	s.record(ctx, actorID, "stocktaking:unaccept", item.ID, nil)
	return item, nil
}

// Preflight lists the reservation conflicts completing the stocktaking would
// cause, based on reservations read directly from the source.
func (s *Service) Preflight(ctx context.Context, stocktakingID string) ([]ReconciliationResult, error) {
	if _, err := s.repo.GetStocktaking(ctx, stocktakingID); err != nil {
		return nil, fmt.Errorf("stocktaking: load %s: %w", stocktakingID, err)
	}
	items, err := s.repo.ListItems(ctx, stocktakingID)
	if err != nil {
		return nil, fmt.Errorf("stocktaking: list items: %w", err)
	}
	byBatch, err := s.freshReservations(ctx, items)
	if err != nil {
		return nil, err
	}
	conflicts := AggregateStocktakingImpact(items, byBatch)
	if s.observer != nil {
		s.observer.ObserveConflicts(len(conflicts))
	}
	return conflicts, nil
}

// CompleteInput controls completion. Override applies the counts despite
// unaccepted items and reservation conflicts.
type CompleteInput struct {
	StocktakingID  string
	Override       bool
	IdempotencyKey string
	ActorID        int64
}

// CompleteResult reports what completion applied.
type CompleteResult struct {
	StocktakingID string                 `json:"stocktakingId"`
	Applied       int                    `json:"applied"`
	Skipped       int                    `json:"skipped"`
	Overridden    bool                   `json:"overridden"`
	Conflicts     []ReconciliationResult `json:"conflicts,omitempty"`
	CompletedAt   time.Time              `json:"completedAt"`
}

// Complete applies every counted quantity to its batch and closes the
// stocktaking in one transaction.
func (s *Service) Complete(ctx context.Context, input CompleteInput) (CompleteResult, error) {
	if input.StocktakingID == "" {
		return CompleteResult{}, errors.New("stocktaking: stocktaking id required")
	}
	key := ""
	if s.idempotency != nil && input.IdempotencyKey != "" {
		key = fmt.Sprintf("stocktaking:complete:%s:%s", input.StocktakingID, input.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, idempotencyModule); err != nil {
			return CompleteResult{}, err
		}
	}

	now := s.clock().UTC()
	result := CompleteResult{StocktakingID: input.StocktakingID, CompletedAt: now}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, err := tx.GetStocktakingForUpdate(ctx, input.StocktakingID)
		if err != nil {
			return err
		}
		if st.Status == StatusCompleted {
			return ErrStocktakingCompleted
		}
		items, err := tx.ListItems(ctx, input.StocktakingID)
		if err != nil {
			return err
		}
		unaccepted := 0
		for i := range items {
			if items[i].State() != StateAccepted {
				unaccepted++
			}
		}
		if unaccepted > 0 && !input.Override {
			return fmt.Errorf("%w: %d item(s) outstanding", ErrItemsNotAccepted, unaccepted)
		}
		byBatch, err := s.freshReservations(ctx, items)
		if err != nil {
			return err
		}
		conflicts := AggregateStocktakingImpact(items, byBatch)
		if len(conflicts) > 0 && !input.Override {
			return &ConflictError{Results: conflicts}
		}
		result.Conflicts = conflicts
		result.Overridden = input.Override && (unaccepted > 0 || len(conflicts) > 0)
		for _, item := range items {
			if !item.CountedQuantity.Valid {
				result.Skipped++
				continue
			}
			if err := tx.ApplyCount(ctx, item); err != nil {
				return err
			}
			result.Applied++
		}
		return tx.MarkCompleted(ctx, input.StocktakingID, now, input.ActorID)
	})
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key)
		}
		var conflict *ConflictError
		if errors.As(err, &conflict) && s.observer != nil {
			s.observer.ObserveConflicts(len(conflict.Results))
		}
		return CompleteResult{}, err
	}
	s.invalidateBatches(ctx, result.Conflicts)
	s.record(ctx, input.ActorID, "stocktaking:complete", input.StocktakingID, map[string]any{
		"applied":    result.Applied,
		"skipped":    result.Skipped,
		"overridden": result.Overridden,
		"conflicts":  len(result.Conflicts),
	})
	return result, nil
}

// Summary counts items per state and totals the discrepancies.
func (s *Service) Summary(ctx context.Context, stocktakingID string) (Summary, error) {
	st, err := s.repo.GetStocktaking(ctx, stocktakingID)
	if err != nil {
		return Summary{}, fmt.Errorf("stocktaking: load %s: %w", stocktakingID, err)
	}
	items, err := s.repo.ListItems(ctx, stocktakingID)
	if err != nil {
		return Summary{}, fmt.Errorf("stocktaking: list items: %w", err)
	}
	out := Summary{
		StocktakingID: st.ID,
		Status:        st.Status,
		Items:         len(items),
		QuantityDelta: decimal.Zero,
		ValueDelta:    decimal.Zero,
	}
	for _, item := range items {
		switch item.State() {
		case StatePending:
			out.Pending++
			continue
		case StateCounted:
			out.Counted++
		case StateAccepted:
			out.Accepted++
		}
		d, _ := ComputeDiscrepancy(item)
		out.QuantityDelta = out.QuantityDelta.Add(d.Quantity)
		if d.Value.Valid {
			out.ValueDelta = out.ValueDelta.Add(d.Value.Decimal)
		} else if !d.Quantity.IsZero() {
			out.Unpriced++
		}
	}
	return out, nil
}

// ItemView is an item with its derived state and discrepancy.
type ItemView struct {
	Item
	State       State        `json:"state"`
	Discrepancy *Discrepancy `json:"discrepancy,omitempty"`
}

// Items lists the items of a stocktaking with their derived state.
func (s *Service) Items(ctx context.Context, stocktakingID string) ([]ItemView, error) {
	if _, err := s.repo.GetStocktaking(ctx, stocktakingID); err != nil {
		return nil, fmt.Errorf("stocktaking: load %s: %w", stocktakingID, err)
	}
	items, err := s.repo.ListItems(ctx, stocktakingID)
	if err != nil {
		return nil, fmt.Errorf("stocktaking: list items: %w", err)
	}
	out := make([]ItemView, 0, len(items))
	for _, item := range items {
		view := ItemView{Item: item, State: item.State()}
		if d, ok := ComputeDiscrepancy(item); ok {
			view.Discrepancy = &d
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *Service) lockOpenItem(ctx context.Context, tx TxRepository, itemID string) (Item, error) {
	item, err := tx.GetItemForUpdate(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	st, err := tx.GetStocktakingForUpdate(ctx, item.StocktakingID)
	if err != nil {
		return Item{}, err
	}
	if st.Status == StatusCompleted {
		return Item{}, ErrStocktakingCompleted
	}
	return item, nil
}

func batchCacheKey(batchID string) string {
	return "batch:" + batchID
}

func (s *Service) batchReservations(ctx context.Context, batchID string) ([]Reservation, error) {
	if batchID == "" {
		return nil, nil
	}
	if s.cache == nil {
		list, err := s.reservations.ListActiveByBatch(ctx, batchID)
		if err != nil {
			return nil, fmt.Errorf("stocktaking: reservations for %s: %w", batchID, err)
		}
		return list, nil
	}
	var list []Reservation
	load := func(ctx context.Context) (any, error) {
		return s.reservations.ListActiveByBatch(ctx, batchID)
	}
	if err := s.cache.Fetch(ctx, batchCacheKey(batchID), &list, load); err != nil {
		return nil, fmt.Errorf("stocktaking: reservations for %s: %w", batchID, err)
	}
	return list, nil
}

func (s *Service) freshReservations(ctx context.Context, items []Item) (map[string][]Reservation, error) {
	byBatch := make(map[string][]Reservation)
	for _, item := range items {
		if item.BatchID == "" || !item.CountedQuantity.Valid {
			continue
		}
		if _, seen := byBatch[item.BatchID]; seen {
			continue
		}
		list, err := s.reservations.ListActiveByBatch(ctx, item.BatchID)
		if err != nil {
			return nil, fmt.Errorf("stocktaking: reservations for %s: %w", item.BatchID, err)
		}
		if list == nil {
			list = []Reservation{}
		}
		byBatch[item.BatchID] = list
	}
	return byBatch, nil
}

func (s *Service) cancelReservations(ctx context.Context, list []Reservation, item Item) error {
	ids := reservationIDs(list)
	reason := fmt.Sprintf("stocktaking %s recount of batch %s", item.StocktakingID, item.BatchID)
	if err := s.reservations.Cancel(ctx, ids, reason); err != nil {
		return fmt.Errorf("stocktaking: cancel reservations: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, batchCacheKey(item.BatchID)); err != nil {
			return fmt.Errorf("stocktaking: invalidate reservations: %w", err)
		}
	}
	return nil
}

func (s *Service) invalidateBatches(ctx context.Context, results []ReconciliationResult) {
	if s.cache == nil {
		return
	}
	for _, r := range results {
		_ = s.cache.Invalidate(ctx, batchCacheKey(r.BatchID))
	}
}

func (s *Service) observeAccept(outcome AcceptOutcome) {
	if s.observer == nil {
		return
	}
	label := "accepted"
	switch {
	case outcome.Forced:
		label = "forced"
	case !outcome.Accepted:
		label = "conflict"
	case len(outcome.Cancelled) > 0:
		label = "cancelled_reservations"
	}
	s.observer.ObserveAccept(label)
}

func (s *Service) record(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stocktaking",
		EntityID: entityID,
		Meta:     meta,
		At:       s.clock().UTC(),
	})
}

func reservationIDs(list []Reservation) []string {
	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}
