package quotation

import (
	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// TotalWeightGrams sums the mass of every component in grams. Components in
// volume or count units do not contribute.
func TotalWeightGrams(components []Component) decimal.Decimal {
	total := decimal.Zero
	for _, c := range components {
		if g, ok := c.Unit.Grams(c.Quantity); ok {
			total = total.Add(g)
		}
	}
	return total
}

// SelectPackFormat returns the smallest bracket that holds grams. ok is false
// when grams exceeds every bracket.
func SelectPackFormat(m Matrix, grams decimal.Decimal) (PackFormat, bool) {
	for _, b := range m.Brackets {
		if b.CapacityGrams.GreaterThanOrEqual(grams) {
			return b.Format, true
		}
	}
	return "", false
}

// LaborInput parameterises LaborCost. WeightGrams feeds the linear estimate
// used when the matrix has no time for the format.
type LaborInput struct {
	Format        PackFormat
	Flavored      bool
	Quantity      decimal.Decimal
	CostPerMinute decimal.Decimal
	ManualTimeSec decimal.NullDecimal
	WeightGrams   decimal.Decimal
}

// LaborCost computes production minutes and their cost. A manual time
// replaces the matrix value for this call only.
func LaborCost(m Matrix, in LaborInput) (Labor, error) {
	if in.Quantity.IsNegative() {
		return Labor{}, ErrInvalidQuantity
	}
	if in.CostPerMinute.IsNegative() || (in.ManualTimeSec.Valid && in.ManualTimeSec.Decimal.IsNegative()) {
		return Labor{}, ErrNegativeInput
	}
	var out Labor
	switch sec, ok := m.Seconds(in.Format, in.Flavored); {
	case in.ManualTimeSec.Valid:
		out.Minutes = in.ManualTimeSec.Decimal.Div(sixty).Mul(in.Quantity)
		out.Manual = true
	case ok:
		out.Minutes = sec.Div(sixty).Mul(in.Quantity)
	default:
		out.Minutes = in.WeightGrams.Mul(m.RatePerGram).Mul(in.Quantity)
		out.Estimated = true
	}
	out.Cost = out.Minutes.Mul(in.CostPerMinute)
	return out, nil
}

// ComponentsCost sums quantity times unit price over the components.
func ComponentsCost(components []Component) decimal.Decimal {
	total := decimal.Zero
	for _, c := range components {
		total = total.Add(c.Quantity.Mul(c.UnitPrice))
	}
	return total
}

// PackagingCost is zero without packaging.
func PackagingCost(p *Packaging) decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	return p.Quantity.Mul(p.UnitPrice)
}

// TotalCOGS adds components, packaging and labor cost.
func TotalCOGS(components []Component, packaging *Packaging, labor Labor) decimal.Decimal {
	return ComponentsCost(components).Add(PackagingCost(packaging)).Add(labor.Cost)
}

// Calculate runs the whole quotation pipeline.
func Calculate(m Matrix, req Request) (Result, error) {
	if !req.Quantity.IsPositive() {
		return Result{}, ErrInvalidQuantity
	}
	for _, c := range req.Components {
		if !c.Unit.Valid() {
			return Result{}, &UnsupportedUnitError{Unit: string(c.Unit)}
		}
		if c.Quantity.IsNegative() || c.UnitPrice.IsNegative() {
			return Result{}, ErrNegativeInput
		}
	}
	if req.Packaging != nil && (req.Packaging.Quantity.IsNegative() || req.Packaging.UnitPrice.IsNegative()) {
		return Result{}, ErrNegativeInput
	}

	weight := TotalWeightGrams(req.Components)
	var format PackFormat
	if req.PackFormat != "" {
		f, err := m.ParseFormat(req.PackFormat)
		if err != nil {
			return Result{}, err
		}
		format = f
	} else if f, ok := SelectPackFormat(m, weight); ok {
		format = f
	}

	labor, err := LaborCost(m, LaborInput{
		Format:        format,
		Flavored:      req.Flavored,
		Quantity:      req.Quantity,
		CostPerMinute: req.CostPerMinute,
		ManualTimeSec: req.ManualTimeSec,
		WeightGrams:   weight,
	})
	if err != nil {
		return Result{}, err
	}
	components := ComponentsCost(req.Components)
	packaging := PackagingCost(req.Packaging)
	return Result{
		TotalWeightGrams: weight,
		PackFormat:       format,
		LaborMinutes:     labor.Minutes,
		LaborCost:        labor.Cost,
		ComponentsCost:   components,
		PackagingCost:    packaging,
		TotalCOGS:        components.Add(packaging).Add(labor.Cost),
		Estimated:        labor.Estimated,
	}, nil
}
