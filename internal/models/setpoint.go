package models

import "github.com/shopspring/decimal"

// Range is an acceptable value band for one measured dimension.
type Range struct {
	Min decimal.Decimal `json:"min"`
	Max decimal.Decimal `json:"max"`
}

// NewRange builds a Range from float bounds.
func NewRange(min, max float64) Range {
	return Range{Min: decimal.NewFromFloat(min), Max: decimal.NewFromFloat(max)}
}

// Contains reports whether min <= v <= max.
func (r Range) Contains(v decimal.Decimal) bool {
	return v.GreaterThanOrEqual(r.Min) && v.LessThanOrEqual(r.Max)
}

// Inverted reports whether Min is greater than Max.
func (r Range) Inverted() bool {
	return r.Min.GreaterThan(r.Max)
}

// Setpoints holds the alarm ranges for both dimensions.
type Setpoints struct {
	Temperature Range `json:"temperature"`
	Humidity    Range `json:"humidity"`
}

// DefaultSetpoints returns the ranges used until the operator commits an edit.
func DefaultSetpoints() Setpoints {
	return Setpoints{
		Temperature: NewRange(24, 30),
		Humidity:    NewRange(50, 70),
	}
}
