package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Parameter keys as the OG model names them
const (
	KeyGrowthRate              = "g_y_annual"
	KeyLaborShare              = "gamma"
	KeyTransfers               = "alpha_T"
	KeyGovSpending             = "alpha_G"
	KeyInitialDebtRatio        = "initial_debt_ratio"
	KeyInitialForeignDebtRatio = "initial_foreign_debt_ratio"
	KeyForeignDebtPurchase     = "zeta_D"
	KeyRGovShift               = "r_gov_shift"
	KeyRGovScale               = "r_gov_scale"
)

var (
	// ErrShapeMismatch is returned when a value does not have its key's registered shape
	ErrShapeMismatch = errors.New("parameter shape mismatch")

	// ErrUnknownParam is returned when a key is not in the registry
	ErrUnknownParam = errors.New("unknown parameter")

	// ErrNonFinite is returned when a value contains NaN or Inf
	ErrNonFinite = errors.New("parameter value is not finite")
)

// Spec describes the shape the consuming model expects for one key
type Spec struct {
	Key      string
	Shape    Shape
	Len      int  // vector length; 0 means any
	Nullable bool // Null() is accepted as "no estimate"
}

// Specs is the parameter registry
// ⭐ SSOT: 파라미터 형태(shape) 정의는 여기서만
var Specs = map[string]Spec{
	KeyGrowthRate:              {Key: KeyGrowthRate, Shape: ShapeScalar, Nullable: true},
	KeyLaborShare:              {Key: KeyLaborShare, Shape: ShapeVector, Len: 1},
	KeyTransfers:               {Key: KeyTransfers, Shape: ShapeVector, Len: 1},
	KeyGovSpending:             {Key: KeyGovSpending, Shape: ShapeVector, Len: 1},
	KeyInitialDebtRatio:        {Key: KeyInitialDebtRatio, Shape: ShapeScalar},
	KeyInitialForeignDebtRatio: {Key: KeyInitialForeignDebtRatio, Shape: ShapeScalar},
	KeyForeignDebtPurchase:     {Key: KeyForeignDebtPurchase, Shape: ShapeVector, Len: 1},
	KeyRGovShift:               {Key: KeyRGovShift, Shape: ShapeVector, Len: 1},
	KeyRGovScale:               {Key: KeyRGovScale, Shape: ShapeVector, Len: 1},
}

// Check validates the shape and length of v
func (s Spec) Check(v Value) error {
	if v.Shape() == ShapeNull {
		if s.Nullable {
			return nil
		}
		return fmt.Errorf("%w: %s is not nullable", ErrShapeMismatch, s.Key)
	}
	if v.Shape() != s.Shape {
		return fmt.Errorf("%w: %s wants %s, got %s", ErrShapeMismatch, s.Key, s.Shape, v.Shape())
	}
	if s.Shape == ShapeVector && s.Len > 0 && v.Len() != s.Len {
		return fmt.Errorf("%w: %s wants length %d, got %d", ErrShapeMismatch, s.Key, s.Len, v.Len())
	}
	if !v.finite() {
		return fmt.Errorf("%w: %s = %s", ErrNonFinite, s.Key, v)
	}
	return nil
}

// Params is the parameter mapping produced by a calibration run.
// Absence of a key means "keep the existing default". Keys are never removed.
type Params struct {
	values map[string]Value
}

// NewParams returns an empty mapping
func NewParams() *Params {
	return &Params{values: make(map[string]Value)}
}

// Set validates v against the registry and stores it
func (p *Params) Set(key string, v Value) error {
	spec, ok := Specs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParam, key)
	}
	if err := spec.Check(v); err != nil {
		return err
	}

	p.values[key] = v
	return nil
}

// Get returns the value for key
func (p *Params) Get(key string) (Value, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

// Keys returns the present keys in sorted order
func (p *Params) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of present keys
func (p *Params) Len() int {
	return len(p.values)
}

// Merge copies every key of other into p, overwriting
func (p *Params) Merge(other *Params) {
	if other == nil {
		return
	}
	for k, v := range other.values {
		p.values[k] = v
	}
}

// MergeInto overwrites the keys of defaults that are present in p and
// leaves every other default untouched. defaults may be nil.
func (p *Params) MergeInto(defaults map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(defaults)+len(p.values))
	for k, raw := range defaults {
		out[k] = raw
	}

	for k, v := range p.values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		out[k] = raw
	}

	return out, nil
}

// MarshalJSON encodes the mapping as a JSON object
func (p *Params) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.values)
}

// UnmarshalJSON decodes a JSON object, validating every key
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.values = make(map[string]Value, len(raw))
	for k, v := range raw {
		if err := p.Set(k, v); err != nil {
			return err
		}
	}
	return nil
}
