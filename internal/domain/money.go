package domain

import (
	"fmt"
	"math"
)

// Money is a non-negative currency amount.
type Money float64

// NewMoney rejects negative, NaN and infinite amounts.
func NewMoney(v float64) (Money, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: "amount", Reason: "must be a finite number"}
	}
	if v < 0 {
		return 0, &ValidationError{Field: "amount", Reason: fmt.Sprintf("must not be negative, got %v", v)}
	}
	return Money(v), nil
}

// NewPositiveMoney is NewMoney that also rejects zero.
func NewPositiveMoney(v float64) (Money, error) {
	m, err := NewMoney(v)
	if err != nil {
		return 0, err
	}
	if m == 0 {
		return 0, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	return m, nil
}

func (m Money) Float() float64 { return float64(m) }

// Percentage is a share in the closed range [0,100].
type Percentage float64

func NewPercentage(v float64) (Percentage, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
		return 0, &ValidationError{Field: "percentage", Reason: fmt.Sprintf("must be within [0,100], got %v", v)}
	}
	return Percentage(v), nil
}

func (p Percentage) Float() float64 { return float64(p) }

// Of returns p percent of m.
func (p Percentage) Of(m Money) Money {
	return Money(float64(m) * float64(p) / 100)
}

// PercentTolerance bounds float drift when comparing percentage sums.
const PercentTolerance = 1e-9

// SumsTo reports whether total is equal to want within PercentTolerance.
func SumsTo(total, want float64) bool {
	return math.Abs(total-want) <= PercentTolerance
}
