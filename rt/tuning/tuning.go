package tuning

import (
	"fmt"
	"sort"
	"sync"
)

// Tuning holds a set of runtime-tunable variables.
//
// It is safe for concurrent use.
type Tuning struct {
	mu   sync.Mutex
	vars map[string]varEntry
}

// New creates a new Tuning registry.
func New() *Tuning {
	return &Tuning{vars: make(map[string]varEntry)}
}

var (
	defaultOnce sync.Once
	defaultT    *Tuning
)

// Default returns the process-wide default Tuning instance.
func Default() *Tuning {
	defaultOnce.Do(func() { defaultT = New() })
	return defaultT
}

// Type indicates a tuning variable type.
type Type string

const (
	TypeBool     Type = "bool"
	TypeInt64    Type = "int64"
	TypeFloat64  Type = "float64"
	TypeDuration Type = "duration"
)

// Item is a point-in-time view of a single variable.
type Item struct {
	Key          string
	Type         Type
	Value        string
	DefaultValue string
}

// Snapshot returns a point-in-time view of all registered variables,
// sorted by key for stable output.
func (t *Tuning) Snapshot() []Item {
	t.mu.Lock()
	entries := make([]varEntry, 0, len(t.vars))
	for _, v := range t.vars {
		entries = append(entries, v)
	}
	t.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].key() < entries[j].key() })

	items := make([]Item, 0, len(entries))
	for _, v := range entries {
		items = append(items, v.item())
	}
	return items
}

// SetFromString sets a registered key from its string representation
// (ops usage). The key must already be registered; SetFromString never
// changes a variable's type.
func (t *Tuning) SetFromString(key, value string) error {
	t.mu.Lock()
	v, ok := t.vars[key]
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return v.setFromString(value)
}

type varEntry interface {
	key() string
	item() Item
	setFromString(v string) error
}

func (t *Tuning) register(key string, v varEntry) error {
	if err := validateKey(key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.vars[key]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, key)
	}
	t.vars[key] = v
	return nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
