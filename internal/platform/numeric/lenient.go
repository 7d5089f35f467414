// Package numeric normalises loosely typed numeric input into decimals.
package numeric

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Lenient is a decimal that never fails to decode. Missing, null, empty or
// non-numeric values decode to zero; strings with a numeric prefix keep the
// prefix ("12.5kg" decodes to 12.5).
type Lenient struct {
	decimal.Decimal
	// Set reports whether the source carried a usable number.
	Set bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Lenient) UnmarshalJSON(data []byte) error {
	l.Decimal, l.Set = decodeJSON(data)
	return nil
}

// MarshalJSON renders the value as a JSON number.
func (l Lenient) MarshalJSON() ([]byte, error) {
	return []byte(l.Decimal.String()), nil
}

// Value returns the decoded decimal, zero when unset.
func (l Lenient) Value() decimal.Decimal {
	if !l.Set {
		return decimal.Zero
	}
	return l.Decimal
}

// Nullable returns the decoded value as a NullDecimal, invalid when unset.
func (l Lenient) Nullable() decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: l.Decimal, Valid: l.Set}
}

func decodeJSON(data []byte) (decimal.Decimal, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return decimal.Zero, false
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return decimal.Zero, false
		}
		return Parse(s)
	}
	switch string(data) {
	case "true", "false":
		return decimal.Zero, false
	}
	return Parse(string(data))
}

// Parse reads the longest numeric prefix of s. The boolean is false when no
// digits were found, in which case the returned value is zero.
func Parse(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	if d, err := decimal.NewFromString(s); err == nil {
		return d, true
	}
	prefix := numericPrefix(s)
	if prefix == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(prefix)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// OrZero parses s and discards the presence flag.
func OrZero(s string) decimal.Decimal {
	d, _ := Parse(s)
	return d
}

// NullFrom parses an optional database text value. nil and unparsable
// input yield an invalid NullDecimal.
func NullFrom(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, ok := Parse(*s)
	if !ok {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// NullText renders a NullDecimal as an optional SQL parameter.
func NullText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func numericPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		j := i + 1
		frac := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			frac++
		}
		if digits > 0 || frac > 0 {
			i = j
			digits += frac
		}
	}
	if digits == 0 {
		return ""
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		exp := 0
		for j < len(s) && isDigit(s[j]) {
			j++
			exp++
		}
		if exp > 0 {
			i = j
		}
	}
	out := s[:i]
	if strings.HasSuffix(out, ".") {
		out = strings.TrimSuffix(out, ".")
	}
	if strings.HasPrefix(out, ".") || strings.HasPrefix(out, "-.") || strings.HasPrefix(out, "+.") {
		out = strings.Replace(out, ".", "0.", 1)
	}
	return out
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
