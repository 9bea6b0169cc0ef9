package setpoint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Field names one bound of one dimension.
type Field string

const (
	TemperatureMin Field = "temperature-min"
	TemperatureMax Field = "temperature-max"
	HumidityMin    Field = "humidity-min"
	HumidityMax    Field = "humidity-max"
)

var fields = []Field{TemperatureMin, TemperatureMax, HumidityMin, HumidityMax}

// ParseField validates a field name.
func ParseField(name string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range fields {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown setpoint field %q", name)
}

// Dimension is a measured quantity with one setpoint range.
type Dimension string

const (
	Temperature Dimension = "temperature"
	Humidity    Dimension = "humidity"
)

// ParseDimension validates a dimension name.
func ParseDimension(name string) (Dimension, error) {
	switch d := Dimension(strings.ToLower(strings.TrimSpace(name))); d {
	case Temperature, Humidity:
		return d, nil
	default:
		return "", fmt.Errorf("unknown setpoint dimension %q", name)
	}
}

// Bounds returns the min and max fields of the dimension.
func (d Dimension) Bounds() (Field, Field) {
	if d == Humidity {
		return HumidityMin, HumidityMax
	}
	return TemperatureMin, TemperatureMax
}

// Edit is one pending value. It is either operator text that has not been
// parsed yet, or a decimal that is known to be valid.
type Edit struct {
	text      string
	value     decimal.Decimal
	validated bool
}

// Raw holds text as typed, without parsing it.
func Raw(text string) Edit {
	return Edit{text: text}
}

// Validated holds a parsed value.
func Validated(v decimal.Decimal) Edit {
	return Edit{value: v, validated: true}
}

// IsValidated reports whether the edit carries a parsed decimal.
func (e Edit) IsValidated() bool {
	return e.validated
}

// Text returns the edit as the operator sees it.
func (e Edit) Text() string {
	if e.validated {
		return e.value.String()
	}
	return e.text
}

// resolve parses a raw edit. Validated edits return their value unchanged.
func (e Edit) resolve() (decimal.Decimal, error) {
	if e.validated {
		return e.value, nil
	}
	return decimal.NewFromString(strings.TrimSpace(e.text))
}

func (e Edit) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text      string `json:"text"`
		Validated bool   `json:"validated"`
	}{e.Text(), e.validated})
}

// DecodeEdit reads a JSON value into an edit. Strings stay Raw so partially
// typed text survives until commit; numbers, as sent by a slider, become
// Validated. A missing value or null is empty text.
func DecodeEdit(raw json.RawMessage) (Edit, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Raw(""), nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return Edit{}, err
		}
		return Raw(text), nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return Edit{}, fmt.Errorf("setpoint value must be a string or a number")
	}
	v, err := decimal.NewFromString(num.String())
	if err != nil {
		return Edit{}, fmt.Errorf("setpoint value %s: %w", num, err)
	}
	return Validated(v), nil
}

// ParseError reports a staged value that could not be parsed at commit.
type ParseError struct {
	Field Field
	Text  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("setpoint %s: cannot parse %q: %v", e.Field, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
