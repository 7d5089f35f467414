package quotation

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Bracket maps a pack format to the largest total weight it can hold.
type Bracket struct {
	Format        PackFormat      `json:"format"`
	CapacityGrams decimal.Decimal `json:"capacityGrams"`
}

// TimeEntry holds target seconds per unit for plain and flavored runs.
// A missing side means the matrix has no entry for it.
type TimeEntry struct {
	Plain    decimal.NullDecimal `json:"plain"`
	Flavored decimal.NullDecimal `json:"flavored"`
}

// Matrix is the injected pack-format and labor-time configuration.
// Brackets are ordered by ascending capacity.
type Matrix struct {
	Brackets    []Bracket                `json:"brackets"`
	Times       map[PackFormat]TimeEntry `json:"times"`
	RatePerGram decimal.Decimal          `json:"ratePerGram"`
}

// Seconds returns the target time per unit for format.
func (m Matrix) Seconds(format PackFormat, flavored bool) (decimal.Decimal, bool) {
	entry, ok := m.Times[format]
	if !ok {
		return decimal.Zero, false
	}
	side := entry.Plain
	if flavored {
		side = entry.Flavored
	}
	if !side.Valid {
		return decimal.Zero, false
	}
	return side.Decimal, true
}

// ParseFormat validates an explicit pack format against the matrix.
func (m Matrix) ParseFormat(s string) (PackFormat, error) {
	f := PackFormat(strings.TrimSpace(s))
	if _, ok := m.Times[f]; ok {
		return f, nil
	}
	for _, b := range m.Brackets {
		if b.Format == f {
			return f, nil
		}
	}
	return "", &UnsupportedFormatError{Format: s}
}

// Validate checks bracket ordering and that no value is negative.
func (m Matrix) Validate() error {
	seen := make(map[PackFormat]bool, len(m.Brackets))
	for i, b := range m.Brackets {
		if b.Format == "" {
			return fmt.Errorf("%w: bracket %d has no format", ErrInvalidMatrix, i)
		}
		if seen[b.Format] {
			return fmt.Errorf("%w: duplicate bracket %s", ErrInvalidMatrix, b.Format)
		}
		seen[b.Format] = true
		if !b.CapacityGrams.IsPositive() {
			return fmt.Errorf("%w: bracket %s capacity must be positive", ErrInvalidMatrix, b.Format)
		}
		if i > 0 && !b.CapacityGrams.GreaterThan(m.Brackets[i-1].CapacityGrams) {
			return fmt.Errorf("%w: bracket %s is not in ascending order", ErrInvalidMatrix, b.Format)
		}
	}
	for f, e := range m.Times {
		if (e.Plain.Valid && e.Plain.Decimal.IsNegative()) || (e.Flavored.Valid && e.Flavored.Decimal.IsNegative()) {
			return fmt.Errorf("%w: negative time for %s", ErrInvalidMatrix, f)
		}
	}
	if m.RatePerGram.IsNegative() {
		return fmt.Errorf("%w: negative rate per gram", ErrInvalidMatrix)
	}
	return nil
}

// yamlDecimal decodes a YAML scalar straight from its text so configured
// rates keep every digit.
type yamlDecimal struct {
	decimal.Decimal
}

func (d *yamlDecimal) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a number", node.Line)
	}
	v, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid number %q", node.Line, node.Value)
	}
	d.Decimal = v
	return nil
}

type matrixFile struct {
	RatePerGram yamlDecimal `yaml:"ratePerGram"`
	Brackets    []struct {
		Format        string      `yaml:"format"`
		CapacityGrams yamlDecimal `yaml:"capacityGrams"`
	} `yaml:"brackets"`
	Times map[string]struct {
		Plain    *yamlDecimal `yaml:"plain"`
		Flavored *yamlDecimal `yaml:"flavored"`
	} `yaml:"times"`
}

// ParseMatrix decodes a YAML matrix document. Brackets may be listed in any
// order; they are sorted by capacity.
func ParseMatrix(data []byte) (Matrix, error) {
	var file matrixFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Matrix{}, fmt.Errorf("%w: %v", ErrInvalidMatrix, err)
	}
	m := Matrix{
		RatePerGram: file.RatePerGram.Decimal,
		Times:       make(map[PackFormat]TimeEntry, len(file.Times)),
	}
	for _, b := range file.Brackets {
		m.Brackets = append(m.Brackets, Bracket{Format: PackFormat(b.Format), CapacityGrams: b.CapacityGrams.Decimal})
	}
	sort.SliceStable(m.Brackets, func(i, j int) bool {
		return m.Brackets[i].CapacityGrams.LessThan(m.Brackets[j].CapacityGrams)
	})
	for name, t := range file.Times {
		m.Times[PackFormat(name)] = TimeEntry{Plain: nullDecimal(t.Plain), Flavored: nullDecimal(t.Flavored)}
	}
	if err := m.Validate(); err != nil {
		return Matrix{}, err
	}
	return m, nil
}

// LoadMatrix reads a YAML matrix from path.
func LoadMatrix(path string) (Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("quotation: read matrix: %w", err)
	}
	return ParseMatrix(data)
}

func nullDecimal(d *yamlDecimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d.Decimal)
}

// defaultMatrixYAML is used when no matrix file is configured.
const defaultMatrixYAML = `
ratePerGram: 0.002
brackets:
  - {format: sachet_50g, capacityGrams: 50}
  - {format: jar_100g, capacityGrams: 100}
  - {format: jar_250g, capacityGrams: 250}
  - {format: pouch_500g, capacityGrams: 500}
  - {format: bag_1kg, capacityGrams: 1000}
times:
  sachet_50g: {plain: 20, flavored: 30}
  jar_100g: {plain: 30, flavored: 45}
  jar_250g: {plain: 45, flavored: 60}
  pouch_500g: {plain: 60, flavored: 90}
  bag_1kg: {plain: 90}
  capsules_60: {plain: 40, flavored: 40}
`

// DefaultMatrix returns the built-in matrix.
func DefaultMatrix() Matrix {
	m, err := ParseMatrix([]byte(defaultMatrixYAML))
	if err != nil {
		panic(err)
	}
	return m
}
