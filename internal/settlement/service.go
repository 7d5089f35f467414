package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RepositoryPort abstracts invoice storage for the service.
type RepositoryPort interface {
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListOpenInvoices(ctx context.Context) ([]Invoice, error)
	ListInvoicesByProforma(ctx context.Context, proformaID string) ([]Invoice, error)
}

// StatusObserver receives one call per derived status.
type StatusObserver interface {
	ObserveSettlement(status string)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	Tolerance decimal.Decimal
	Clock     func() time.Time
	Observer  StatusObserver
}

// Service annotates stored invoices with their settlement state.
type Service struct {
	repo      RepositoryPort
	tolerance decimal.Decimal
	clock     func() time.Time
	observer  StatusObserver
}

// NewService builds Service. A zero tolerance in cfg falls back to
// DefaultTolerance; a nil clock falls back to time.Now.
func NewService(repo RepositoryPort, cfg ServiceConfig) (*Service, error) {
	tol := cfg.Tolerance
	if tol.IsNegative() {
		return nil, ErrInvalidTolerance
	}
	if tol.IsZero() {
		tol = DefaultTolerance
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{repo: repo, tolerance: tol, clock: clock, observer: cfg.Observer}, nil
}

// Tolerance returns the configured comparison tolerance.
func (s *Service) Tolerance() decimal.Decimal {
	return s.tolerance
}

// Annotate loads an invoice and derives its settlement. Proformas also get
// their availability, computed from every invoice that draws on them.
func (s *Service) Annotate(ctx context.Context, id string) (Annotation, error) {
	if id == "" {
		return Annotation{}, errors.New("settlement: invoice id required")
	}
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return Annotation{}, fmt.Errorf("settlement: load invoice %s: %w", id, err)
	}
	applied := decimal.Zero
	if inv.IsProforma {
		linked, err := s.repo.ListInvoicesByProforma(ctx, inv.ID)
		if err != nil {
			return Annotation{}, fmt.Errorf("settlement: load allocations for %s: %w", id, err)
		}
		applied = AppliedToProforma(inv.ID, linked)
	}
	return s.Evaluate(inv, applied), nil
}

// Evaluate derives the annotation for an already loaded invoice. applied is
// only used for proformas.
func (s *Service) Evaluate(inv Invoice, applied decimal.Decimal) Annotation {
	st := DeriveStatus(inv, s.tolerance, s.clock())
	out := Annotation{
		InvoiceID:     inv.ID,
		Number:        inv.Number,
		Settlement:    st,
		DisplayStatus: st.DisplayStatus(),
	}
	if inv.IsProforma {
		avail := DeriveProformaAvailability(inv, applied, s.tolerance)
		out.Proforma = &avail
	}
	if s.observer != nil {
		s.observer.ObserveSettlement(string(out.DisplayStatus))
	}
	return out
}

// ListOverdue returns annotations of open invoices whose due date passed.
func (s *Service) ListOverdue(ctx context.Context) ([]Annotation, error) {
	invoices, err := s.repo.ListOpenInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("settlement: list open invoices: %w", err)
	}
	var out []Annotation
	for _, inv := range invoices {
		if inv.IsProforma {
			continue
		}
		ann := s.Evaluate(inv, decimal.Zero)
		if ann.Settlement.IsOverdue {
			out = append(out, ann)
		}
	}
	return out, nil
}

// OverdueReport summarises overdue exposure.
type OverdueReport struct {
	Count       int             `json:"count"`
	Outstanding decimal.Decimal `json:"outstanding"`
	AsOf        time.Time       `json:"asOf"`
}

// OverdueSummary totals the remaining amount of overdue invoices.
func (s *Service) OverdueSummary(ctx context.Context) (OverdueReport, error) {
	overdue, err := s.ListOverdue(ctx)
	if err != nil {
		return OverdueReport{}, err
	}
	report := OverdueReport{Count: len(overdue), Outstanding: decimal.Zero, AsOf: s.clock()}
	for _, ann := range overdue {
		report.Outstanding = report.Outstanding.Add(ann.Settlement.Remaining)
	}
	return report, nil
}
