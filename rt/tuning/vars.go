package tuning

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Int64Var is a registered int64 variable. Get is lock-free.
type Int64Var struct {
	k        string
	def      int64
	min, max int64
	v        atomic.Int64
}

// Int64 registers an int64 variable and returns its handle.
func (t *Tuning) Int64(key string, defaultValue int64) (*Int64Var, error) {
	return t.Int64Range(key, defaultValue, math.MinInt64, math.MaxInt64)
}

// Int64Range registers an int64 variable constrained to [min, max].
func (t *Tuning) Int64Range(key string, defaultValue, min, max int64) (*Int64Var, error) {
	if min > max {
		return nil, fmt.Errorf("%w: %q min(%d) > max(%d)", ErrInvalidConfig, key, min, max)
	}
	if defaultValue < min || defaultValue > max {
		return nil, fmt.Errorf("%w: %q default %d out of [%d, %d]", ErrInvalidConfig, key, defaultValue, min, max)
	}
	v := &Int64Var{k: key, def: defaultValue, min: min, max: max}
	v.v.Store(defaultValue)
	if err := t.register(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// MustInt64 is like Int64Range but panics on error. Intended for init-time
// registration where an error is a programming mistake.
func (t *Tuning) MustInt64(key string, defaultValue, min, max int64) *Int64Var {
	v, err := t.Int64Range(key, defaultValue, min, max)
	if err != nil {
		panic(err)
	}
	return v
}

// Get returns the current value.
func (v *Int64Var) Get() int64 { return v.v.Load() }

// Set updates the value, validating constraints.
func (v *Int64Var) Set(value int64) error {
	if value < v.min || value > v.max {
		return fmt.Errorf("%w: %q=%d out of [%d, %d]", ErrInvalidValue, v.k, value, v.min, v.max)
	}
	v.v.Store(value)
	return nil
}

func (v *Int64Var) key() string { return v.k }
func (v *Int64Var) item() Item {
	return Item{
		Key:          v.k,
		Type:         TypeInt64,
		Value:        strconv.FormatInt(v.Get(), 10),
		DefaultValue: strconv.FormatInt(v.def, 10),
	}
}
func (v *Int64Var) setFromString(s string) error {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidValue, v.k, err)
	}
	return v.Set(n)
}

// Float64Var is a registered float64 variable. Get is lock-free.
type Float64Var struct {
	k        string
	def      float64
	min, max float64
	v        atomic.Uint64 // math.Float64bits
}

// Float64 registers a float64 variable and returns its handle.
func (t *Tuning) Float64(key string, defaultValue float64) (*Float64Var, error) {
	return t.Float64Range(key, defaultValue, math.Inf(-1), math.Inf(1))
}

// Float64Range registers a float64 variable constrained to [min, max].
func (t *Tuning) Float64Range(key string, defaultValue, min, max float64) (*Float64Var, error) {
	if min > max {
		return nil, fmt.Errorf("%w: %q min(%v) > max(%v)", ErrInvalidConfig, key, min, max)
	}
	if defaultValue < min || defaultValue > max || math.IsNaN(defaultValue) {
		return nil, fmt.Errorf("%w: %q default %v out of [%v, %v]", ErrInvalidConfig, key, defaultValue, min, max)
	}
	v := &Float64Var{k: key, def: defaultValue, min: min, max: max}
	v.v.Store(math.Float64bits(defaultValue))
	if err := t.register(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// MustFloat64 is like Float64Range but panics on error.
func (t *Tuning) MustFloat64(key string, defaultValue, min, max float64) *Float64Var {
	v, err := t.Float64Range(key, defaultValue, min, max)
	if err != nil {
		panic(err)
	}
	return v
}

// Get returns the current value.
func (v *Float64Var) Get() float64 { return math.Float64frombits(v.v.Load()) }

// Set updates the value, validating constraints.
func (v *Float64Var) Set(value float64) error {
	if math.IsNaN(value) || value < v.min || value > v.max {
		return fmt.Errorf("%w: %q=%v out of [%v, %v]", ErrInvalidValue, v.k, value, v.min, v.max)
	}
	v.v.Store(math.Float64bits(value))
	return nil
}

func (v *Float64Var) key() string { return v.k }
func (v *Float64Var) item() Item {
	return Item{
		Key:          v.k,
		Type:         TypeFloat64,
		Value:        strconv.FormatFloat(v.Get(), 'g', -1, 64),
		DefaultValue: strconv.FormatFloat(v.def, 'g', -1, 64),
	}
}
func (v *Float64Var) setFromString(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidValue, v.k, err)
	}
	return v.Set(f)
}

// DurationVar is a registered time.Duration variable. Get is lock-free.
type DurationVar struct {
	k        string
	def      time.Duration
	min, max time.Duration
	v        atomic.Int64
}

// Duration registers a duration variable constrained to [min, max].
func (t *Tuning) Duration(key string, defaultValue, min, max time.Duration) (*DurationVar, error) {
	if min > max {
		return nil, fmt.Errorf("%w: %q min(%v) > max(%v)", ErrInvalidConfig, key, min, max)
	}
	if defaultValue < min || defaultValue > max {
		return nil, fmt.Errorf("%w: %q default %v out of [%v, %v]", ErrInvalidConfig, key, defaultValue, min, max)
	}
	v := &DurationVar{k: key, def: defaultValue, min: min, max: max}
	v.v.Store(int64(defaultValue))
	if err := t.register(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// MustDuration is like Duration but panics on error.
func (t *Tuning) MustDuration(key string, defaultValue, min, max time.Duration) *DurationVar {
	v, err := t.Duration(key, defaultValue, min, max)
	if err != nil {
		panic(err)
	}
	return v
}

// Get returns the current value.
func (v *DurationVar) Get() time.Duration { return time.Duration(v.v.Load()) }

// Set updates the value, validating constraints.
func (v *DurationVar) Set(value time.Duration) error {
	if value < v.min || value > v.max {
		return fmt.Errorf("%w: %q=%v out of [%v, %v]", ErrInvalidValue, v.k, value, v.min, v.max)
	}
	v.v.Store(int64(value))
	return nil
}

func (v *DurationVar) key() string { return v.k }
func (v *DurationVar) item() Item {
	return Item{
		Key:          v.k,
		Type:         TypeDuration,
		Value:        v.Get().String(),
		DefaultValue: v.def.String(),
	}
}
func (v *DurationVar) setFromString(s string) error {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidValue, v.k, err)
	}
	return v.Set(d)
}

// BoolVar is a registered bool variable. Get is lock-free.
type BoolVar struct {
	k   string
	def bool
	v   atomic.Bool
}

// Bool registers a bool variable and returns its handle.
func (t *Tuning) Bool(key string, defaultValue bool) (*BoolVar, error) {
	v := &BoolVar{k: key, def: defaultValue}
	v.v.Store(defaultValue)
	if err := t.register(key, v); err != nil {
		return nil, err
	}
	return v, nil
}

// MustBool is like Bool but panics on error.
func (t *Tuning) MustBool(key string, defaultValue bool) *BoolVar {
	v, err := t.Bool(key, defaultValue)
	if err != nil {
		panic(err)
	}
	return v
}

// Get returns the current value.
func (v *BoolVar) Get() bool { return v.v.Load() }

// Set updates the value.
func (v *BoolVar) Set(value bool) { v.v.Store(value) }

func (v *BoolVar) key() string { return v.k }
func (v *BoolVar) item() Item {
	return Item{
		Key:          v.k,
		Type:         TypeBool,
		Value:        strconv.FormatBool(v.Get()),
		DefaultValue: strconv.FormatBool(v.def),
	}
}
func (v *BoolVar) setFromString(s string) error {
	// Lenient parsing for ops input.
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y", "on":
		v.Set(true)
	case "false", "f", "0", "no", "n", "off":
		v.Set(false)
	default:
		return fmt.Errorf("%w: %q: not a bool: %q", ErrInvalidValue, v.k, s)
	}
	return nil
}
