package prefs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/kalambet/tunnelprefs/internal/kv"
)

// ErrInvalidValue is returned when a textual or JSON value cannot be converted
// to a setting's type.
var ErrInvalidValue = errors.New("invalid value")

// ValueType is the stored type of a setting.
type ValueType int

const (
	TypeBool ValueType = iota
	TypeString
	TypeStringSet
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeStringSet:
		return "string_set"
	default:
		return "unknown"
	}
}

// Setting is the untyped view of a Pref, used by the name-keyed table that
// the HTTP, MCP and CLI surfaces work against.
type Setting interface {
	Name() string
	Key() string
	Type() ValueType
	SideEffect() SideEffect
	Default() any
	Value() any
	// SetText parses a human-entered value: "true"/"false" for bools, the
	// verbatim text for strings, a comma or whitespace separated list for
	// string sets.
	SetText(text string) error
	SetJSON(raw json.RawMessage) error
}

// Pref is a single typed setting. It caches the stored value after the first
// Get and drops the cache on every write or external change notification.
type Pref[T any] struct {
	name   string
	key    string
	typ    ValueType
	def    T
	effect SideEffect

	load    func(key string, def T) T
	save    func(key string, v T) error
	parse   func(text string) (T, error)
	clone   func(v T) T
	dispose func(old T)
	fire    func(SideEffect)

	mu     sync.Mutex
	cached bool
	value  T
}

// PrefOption configures a Pref at declaration.
type PrefOption[T any] func(*Pref[T])

// WithDispose registers fn to release whatever an invalidated cached value
// holds. It is called once per invalidation of a present cache.
func WithDispose[T any](fn func(old T)) PrefOption[T] {
	return func(p *Pref[T]) { p.dispose = fn }
}

func (p *Pref[T]) Name() string           { return p.name }
func (p *Pref[T]) Key() string            { return p.key }
func (p *Pref[T]) Type() ValueType        { return p.typ }
func (p *Pref[T]) SideEffect() SideEffect { return p.effect }
func (p *Pref[T]) Default() any           { return p.clone(p.def) }
func (p *Pref[T]) Value() any             { return p.Get() }

// Get returns the cached value, loading it from the store on a miss.
func (p *Pref[T]) Get() T {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cached {
		p.value = p.load(p.key, p.def)
		p.cached = true
	}
	return p.clone(p.value)
}

// Set writes v through to the store and then fires the side effect. The cache
// is dropped before the write and the lock is held until the store has the
// new value, so no reader of this Pref can re-cache the old one.
func (p *Pref[T]) Set(v T) error {
	p.mu.Lock()
	p.discardLocked()
	err := p.save(p.key, v)
	p.mu.Unlock()

	if err != nil {
		return fmt.Errorf("writing %s: %w", p.key, err)
	}
	p.fire(p.effect)
	return nil
}

func (p *Pref[T]) SetText(text string) error {
	v, err := p.parse(text)
	if err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidValue, p.name, err)
	}
	return p.Set(v)
}

// SetJSON decodes raw as the setting's type. A JSON null is rejected rather
// than stored as the zero value.
func (p *Pref[T]) SetJSON(raw json.RawMessage) error {
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("%w for %s: null", ErrInvalidValue, p.name)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidValue, p.name, err)
	}
	return p.Set(v)
}

// onValueChanged is the registry action: the key changed somewhere else.
func (p *Pref[T]) onValueChanged() {
	p.mu.Lock()
	p.discardLocked()
	p.mu.Unlock()

	p.fire(p.effect)
}

func (p *Pref[T]) discardLocked() {
	if !p.cached {
		return
	}
	old := p.value
	var zero T
	p.cached = false
	p.value = zero
	if p.dispose != nil {
		p.dispose(old)
	}
}

// --- declarations ---

// declare wires a Pref into the facade: side-effect dispatch, change
// notification and the name table.
func declare[T any](prefs *Preferences, p *Pref[T], opts ...PrefOption[T]) *Pref[T] {
	for _, opt := range opts {
		opt(p)
	}
	p.fire = prefs.dispatch
	prefs.registry.register(p.key, p.onValueChanged)
	prefs.settings = append(prefs.settings, p)
	prefs.byName[p.name] = p
	return p
}

func boolPref(prefs *Preferences, name, key string, def bool, effect SideEffect, opts ...PrefOption[bool]) *Pref[bool] {
	return declare(prefs, &Pref[bool]{
		name:   name,
		key:    key,
		typ:    TypeBool,
		def:    def,
		effect: effect,
		load:   prefs.store.GetBool,
		save:   prefs.store.PutBool,
		parse:  strconv.ParseBool,
		clone:  func(v bool) bool { return v },
	}, opts...)
}

func stringPref(prefs *Preferences, name, key, def string, effect SideEffect, opts ...PrefOption[string]) *Pref[string] {
	return declare(prefs, &Pref[string]{
		name:   name,
		key:    key,
		typ:    TypeString,
		def:    def,
		effect: effect,
		load:   prefs.store.GetString,
		save:   prefs.store.PutString,
		parse:  func(text string) (string, error) { return text, nil },
		clone:  func(v string) string { return v },
	}, opts...)
}

func stringSetPref(prefs *Preferences, name, key string, def []string, effect SideEffect, opts ...PrefOption[[]string]) *Pref[[]string] {
	return declare(prefs, &Pref[[]string]{
		name:   name,
		key:    key,
		typ:    TypeStringSet,
		def:    kv.NormalizeSet(def),
		effect: effect,
		load: func(key string, def []string) []string {
			return kv.NormalizeSet(prefs.store.GetStringSet(key, def))
		},
		save: func(key string, v []string) error {
			return prefs.store.PutStringSet(key, kv.NormalizeSet(v))
		},
		parse: func(text string) ([]string, error) { return splitList(text), nil },
		clone: func(v []string) []string {
			out := make([]string, len(v))
			copy(out, v)
			return out
		},
	}, opts...)
}

// splitList splits a comma or whitespace delimited list, dropping empty items.
func splitList(s string) []string {
	items := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	if items == nil {
		return []string{}
	}
	return items
}
