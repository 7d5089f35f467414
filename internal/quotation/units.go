package quotation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit is a closed set of measurement units accepted on components.
type Unit string

const (
	UnitKilogram   Unit = "kg"
	UnitGram       Unit = "g"
	UnitMilligram  Unit = "mg"
	UnitMicrogram  Unit = "µg"
	UnitLitre      Unit = "l"
	UnitMillilitre Unit = "ml"
	UnitPiece      Unit = "szt."
	UnitCapsule    Unit = "caps"
)

var unitSpellings = map[string]Unit{
	"kg":   UnitKilogram,
	"g":    UnitGram,
	"mg":   UnitMilligram,
	"µg":   UnitMicrogram,
	"μg":   UnitMicrogram,
	"ug":   UnitMicrogram,
	"mcg":  UnitMicrogram,
	"l":    UnitLitre,
	"ml":   UnitMillilitre,
	"szt.": UnitPiece,
	"szt":  UnitPiece,
	"caps": UnitCapsule,
}

// gramsPerUnit holds the mass units only; other known units carry no weight.
var gramsPerUnit = map[Unit]decimal.Decimal{
	UnitKilogram:  decimal.NewFromInt(1000),
	UnitGram:      decimal.NewFromInt(1),
	UnitMilligram: decimal.New(1, -3),
	UnitMicrogram: decimal.New(1, -6),
}

// UnsupportedUnitError reports a unit outside the known set.
type UnsupportedUnitError struct {
	Unit string
}

func (e *UnsupportedUnitError) Error() string {
	return fmt.Sprintf("quotation: unsupported unit %q", e.Unit)
}

// ParseUnit maps a spelling onto a Unit.
func ParseUnit(s string) (Unit, error) {
	if u, ok := unitSpellings[strings.ToLower(strings.TrimSpace(s))]; ok {
		return u, nil
	}
	return "", &UnsupportedUnitError{Unit: s}
}

// Valid reports whether u is one of the known units.
func (u Unit) Valid() bool {
	switch u {
	case UnitKilogram, UnitGram, UnitMilligram, UnitMicrogram, UnitLitre, UnitMillilitre, UnitPiece, UnitCapsule:
		return true
	}
	return false
}

// IsMass reports whether u contributes to the weight basis.
func (u Unit) IsMass() bool {
	_, ok := gramsPerUnit[u]
	return ok
}

// Grams converts q in unit u to grams. ok is false for units without mass.
func (u Unit) Grams(q decimal.Decimal) (decimal.Decimal, bool) {
	factor, ok := gramsPerUnit[u]
	if !ok {
		return decimal.Zero, false
	}
	return q.Mul(factor), true
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *Unit) UnmarshalText(text []byte) error {
	parsed, err := ParseUnit(string(text))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (u Unit) MarshalText() ([]byte, error) {
	return []byte(u), nil
}
