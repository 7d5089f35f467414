package quotation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PackFormat identifies a production pack size in the labor matrix.
type PackFormat string

// Component is one ingredient line of a quotation.
type Component struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      Unit            `json:"unit"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Packaging is the optional packaging line.
type Packaging struct {
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Request is the input of a full quotation.
type Request struct {
	Components    []Component         `json:"components" validate:"required,min=1"`
	Packaging     *Packaging          `json:"packaging,omitempty"`
	Flavored      bool                `json:"flavored"`
	Quantity      decimal.Decimal     `json:"quantity"`
	CostPerMinute decimal.Decimal     `json:"costPerMinute"`
	ManualTimeSec decimal.NullDecimal `json:"manualTimeSec"`
	PackFormat    string              `json:"packFormat,omitempty"`
}

// Labor is the production time and cost of a run. Estimated is set when the
// minutes come from the per-gram rate instead of the matrix.
type Labor struct {
	Minutes   decimal.Decimal `json:"minutes"`
	Cost      decimal.Decimal `json:"cost"`
	Estimated bool            `json:"estimated"`
	Manual    bool            `json:"manual,omitempty"`
}

// Result is the full cost breakdown of a quotation.
type Result struct {
	TotalWeightGrams decimal.Decimal `json:"totalWeightGrams"`
	PackFormat       PackFormat      `json:"packFormat,omitempty"`
	LaborMinutes     decimal.Decimal `json:"laborMinutes"`
	LaborCost        decimal.Decimal `json:"laborCost"`
	ComponentsCost   decimal.Decimal `json:"componentsCost"`
	PackagingCost    decimal.Decimal `json:"packagingCost"`
	TotalCOGS        decimal.Decimal `json:"totalCogs"`
	Estimated        bool            `json:"estimated"`
}

var (
	ErrInvalidQuantity = errors.New("quotation: quantity must be positive")
	ErrNegativeInput   = errors.New("quotation: prices, times and rates must not be negative")
	ErrInvalidMatrix   = errors.New("quotation: invalid labor matrix")
)

// UnsupportedFormatError reports a pack format missing from the matrix.
type UnsupportedFormatError struct {
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("quotation: unsupported pack format %q", e.Format)
}
