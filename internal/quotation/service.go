package quotation

import (
	"github.com/shopspring/decimal"
)

// Observer is notified of every computed quotation.
type Observer interface {
	ObserveQuotation(estimated bool)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	// CostPerMinute applies to requests that do not carry their own rate.
	CostPerMinute decimal.Decimal
	Observer      Observer
}

// Service computes quotations against a fixed matrix.
type Service struct {
	matrix        Matrix
	costPerMinute decimal.Decimal
	observer      Observer
}

// NewService validates the matrix and builds Service.
func NewService(matrix Matrix, cfg ServiceConfig) (*Service, error) {
	if err := matrix.Validate(); err != nil {
		return nil, err
	}
	if cfg.CostPerMinute.IsNegative() {
		return nil, ErrNegativeInput
	}
	return &Service{matrix: matrix, costPerMinute: cfg.CostPerMinute, observer: cfg.Observer}, nil
}

// Matrix returns the configured matrix.
func (s *Service) Matrix() Matrix {
	return s.matrix
}

// Quote runs Calculate with the configured defaults.
func (s *Service) Quote(req Request) (Result, error) {
	if req.CostPerMinute.IsZero() {
		req.CostPerMinute = s.costPerMinute
	}
	res, err := Calculate(s.matrix, req)
	if err != nil {
		return Result{}, err
	}
	if s.observer != nil {
		s.observer.ObserveQuotation(res.Estimated)
	}
	return res, nil
}

// Weight reports the weight basis and the bracket it falls into.
func (s *Service) Weight(components []Component) (decimal.Decimal, PackFormat, bool) {
	grams := TotalWeightGrams(components)
	format, ok := SelectPackFormat(s.matrix, grams)
	return grams, format, ok
}
