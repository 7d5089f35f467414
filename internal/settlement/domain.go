package settlement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates derived payment statuses.
type Status string

const (
	// StatusPaid means the settled amount reached the settlement target.
	StatusPaid Status = "paid"
	// StatusPartiallyPaid means something was settled but the target is not reached.
	StatusPartiallyPaid Status = "partially_paid"
	// StatusUnpaid means nothing was settled.
	StatusUnpaid Status = "unpaid"
	// StatusOverdue is a display status for unpaid or partially paid invoices past due.
	StatusOverdue Status = "overdue"
)

// DefaultTolerance absorbs rounding residue when comparing currency amounts.
var DefaultTolerance = decimal.RequireFromString("0.01")

// ProformaAllocation is an amount settled on an invoice through a proforma.
type ProformaAllocation struct {
	ProformaID string          `json:"proformaId"`
	Amount     decimal.Decimal `json:"amount"`
}

// Invoice is the normalised input of the settlement calculator.
type Invoice struct {
	ID                               string
	Number                           string
	Total                            decimal.Decimal
	TotalPaid                        decimal.Decimal
	ProformAllocation                []ProformaAllocation
	SettledAdvancePayments           decimal.Decimal
	RequiredAdvancePaymentPercentage decimal.Decimal
	DueDate                          *time.Time
	IsProforma                       bool
}

// SettlementStatus is the derived view of an invoice.
type SettlementStatus struct {
	Status          Status          `json:"status"`
	TotalSettled    decimal.Decimal `json:"totalSettled"`
	Target          decimal.Decimal `json:"target"`
	AdvancePayments decimal.Decimal `json:"advancePayments"`
	Remaining       decimal.Decimal `json:"remaining"`
	Overpayment     decimal.Decimal `json:"overpayment"`
	IsOverdue       bool            `json:"isOverdue"`
}

// DisplayStatus folds the overdue flag into the status for presentation.
func (s SettlementStatus) DisplayStatus() Status {
	if s.IsOverdue && s.Status != StatusPaid {
		return StatusOverdue
	}
	return s.Status
}

// ProformaAvailability describes how much of a proforma can still be applied.
// Available is meaningful only when RequiresPayment is false.
type ProformaAvailability struct {
	FullyPaid       bool            `json:"fullyPaid"`
	RequiresPayment bool            `json:"requiresPayment"`
	Applied         decimal.Decimal `json:"applied"`
	Available       decimal.Decimal `json:"available"`
}

// Annotation is what the service layer returns for a stored invoice.
type Annotation struct {
	InvoiceID     string                `json:"invoiceId"`
	Number        string                `json:"number"`
	Settlement    SettlementStatus      `json:"settlement"`
	DisplayStatus Status                `json:"displayStatus"`
	Proforma      *ProformaAvailability `json:"proforma,omitempty"`
}

// ErrInvoiceNotFound is returned when the repository has no such invoice.
var ErrInvoiceNotFound = errors.New("settlement: invoice not found")

// ErrInvalidTolerance indicates a negative tolerance.
var ErrInvalidTolerance = errors.New("settlement: tolerance must be >= 0")
