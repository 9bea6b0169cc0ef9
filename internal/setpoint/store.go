package setpoint

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/afroash/ledger-monitor/internal/models"
)

// PendingRange is the edit buffer for one dimension.
type PendingRange struct {
	Min Edit `json:"min"`
	Max Edit `json:"max"`
}

// Pending is a copy of the whole edit buffer.
type Pending struct {
	Temperature PendingRange `json:"temperature"`
	Humidity    PendingRange `json:"humidity"`
}

// Store keeps the active setpoints apart from the pending edit buffer.
// Staging never touches the active ranges; Commit is the only transition.
type Store struct {
	mu      sync.RWMutex
	active  models.Setpoints
	pending map[Field]Edit
	logger  zerolog.Logger
}

// NewStore creates a store whose active and pending values both start at
// initial.
func NewStore(initial models.Setpoints, logger zerolog.Logger) *Store {
	s := &Store{active: initial, logger: logger}
	s.pending = pendingFrom(initial)
	return s
}

func pendingFrom(sp models.Setpoints) map[Field]Edit {
	return map[Field]Edit{
		TemperatureMin: Validated(sp.Temperature.Min),
		TemperatureMax: Validated(sp.Temperature.Max),
		HumidityMin:    Validated(sp.Humidity.Min),
		HumidityMax:    Validated(sp.Humidity.Max),
	}
}

// Active returns the last committed setpoints.
func (s *Store) Active() models.Setpoints {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Pending returns the edit buffer.
func (s *Store) Pending() Pending {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Pending{
		Temperature: PendingRange{Min: s.pending[TemperatureMin], Max: s.pending[TemperatureMax]},
		Humidity:    PendingRange{Min: s.pending[HumidityMin], Max: s.pending[HumidityMax]},
	}
}

// Stage stores text for one field as typed. Malformed text is kept until
// commit.
func (s *Store) Stage(field Field, text string) error {
	return s.StageEdit(field, Raw(text))
}

// StageValue stores an already parsed value for one field.
func (s *Store) StageValue(field Field, v decimal.Decimal) error {
	return s.StageEdit(field, Validated(v))
}

// StageEdit stores one pending edit, raw or validated.
func (s *Store) StageEdit(field Field, edit Edit) error {
	if _, err := ParseField(string(field)); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending[field] = edit
	s.mu.Unlock()
	return nil
}

// StageRange stores both bounds of a dimension at once.
func (s *Store) StageRange(dim Dimension, min, max string) error {
	return s.StageRangeEdits(dim, Raw(min), Raw(max))
}

// StageRangeEdits stores both bounds of a dimension from edits of either kind.
func (s *Store) StageRangeEdits(dim Dimension, min, max Edit) error {
	if _, err := ParseDimension(string(dim)); err != nil {
		return err
	}
	lo, hi := dim.Bounds()
	s.mu.Lock()
	s.pending[lo] = min
	s.pending[hi] = max
	s.mu.Unlock()
	return nil
}

// Commit parses the pending buffer and replaces the active setpoints in one
// step. A field that fails to parse keeps its previous active value and is
// reported in the returned error; the other fields still apply. An inverted
// range is stored with its bounds swapped. Afterwards the pending buffer
// equals the new active values.
func (s *Store) Commit() (models.Setpoints, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.active
	var errs []error

	resolve := func(f Field, current decimal.Decimal) decimal.Decimal {
		edit := s.pending[f]
		v, err := edit.resolve()
		if err != nil {
			errs = append(errs, &ParseError{Field: f, Text: edit.Text(), Err: err})
			s.logger.Warn().Str("field", string(f)).Str("text", edit.Text()).Msg("Keeping previous setpoint value")
			return current
		}
		return v
	}

	next.Temperature.Min = resolve(TemperatureMin, s.active.Temperature.Min)
	next.Temperature.Max = resolve(TemperatureMax, s.active.Temperature.Max)
	next.Humidity.Min = resolve(HumidityMin, s.active.Humidity.Min)
	next.Humidity.Max = resolve(HumidityMax, s.active.Humidity.Max)

	next.Temperature = s.normalize(Temperature, next.Temperature)
	next.Humidity = s.normalize(Humidity, next.Humidity)

	s.active = next
	s.pending = pendingFrom(next)

	s.logger.Info().
		Str("temperature", next.Temperature.Min.String()+"-"+next.Temperature.Max.String()).
		Str("humidity", next.Humidity.Min.String()+"-"+next.Humidity.Max.String()).
		Msg("Setpoints committed")

	return next, errors.Join(errs...)
}

func (s *Store) normalize(dim Dimension, r models.Range) models.Range {
	if !r.Inverted() {
		return r
	}
	s.logger.Warn().
		Str("dimension", string(dim)).
		Str("min", r.Min.String()).
		Str("max", r.Max.String()).
		Msg("Inverted setpoint range, swapping bounds")
	return models.Range{Min: r.Max, Max: r.Min}
}
